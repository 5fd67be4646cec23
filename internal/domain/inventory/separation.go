package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SeparationRule is the derivation policy of one component type.
type SeparationRule struct {
	Type ComponentType
	// ShelfDays from separation. Zero means the component inherits the
	// unit's own expiry.
	ShelfDays int
	// VolumeML is a fixed volume. Zero means the unit's full volume.
	VolumeML     int
	Storage      string
	StorageTempC decimal.Decimal
}

var separationRules = map[ComponentType]SeparationRule{
	ComponentRBC: {
		Type: ComponentRBC, ShelfDays: 42, VolumeML: 200,
		Storage: "Refrigerator (2-6°C)", StorageTempC: decimal.NewFromInt(4),
	},
	ComponentPlasma: {
		Type: ComponentPlasma, ShelfDays: 365, VolumeML: 200,
		Storage: "Freezer (-18°C)", StorageTempC: decimal.NewFromInt(-18),
	},
	ComponentPlatelets: {
		Type: ComponentPlatelets, ShelfDays: 5, VolumeML: 50,
		Storage: "Room Temperature (20-24°C)", StorageTempC: decimal.NewFromInt(22),
	},
	ComponentWholeBlood: {
		Type: ComponentWholeBlood, ShelfDays: WholeBloodShelfDays,
		Storage: "Refrigerator (2-6°C)", StorageTempC: decimal.NewFromInt(4),
	},
}

// RuleFor returns the derivation rule of a component type.
func RuleFor(t ComponentType) SeparationRule {
	return separationRules[t]
}

// SeparatedTypes returns the component types a donation type yields.
func SeparatedTypes(donationType ComponentType) []ComponentType {
	if donationType == ComponentWholeBlood || donationType == "" {
		return AllComponentTypes
	}
	return []ComponentType{donationType}
}

// Separate derives the components of a tested, passed unit, stamped with the
// day of now. It does not change the unit.
func Separate(u *BloodUnit, now time.Time) ([]BloodComponent, error) {
	if u.Status != UnitTested {
		return nil, shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("Blood must be tested before separation: unit %s is %s", u.UnitNumber, u.Status))
	}
	if u.TestStatus != TestStatusPassed {
		return nil, shared.NewDomainError(shared.CodeValidationFailed,
			fmt.Sprintf("Blood must pass all tests before separation: unit %s is %s", u.UnitNumber, u.TestStatus))
	}

	today := shared.StartOfDay(now)
	types := SeparatedTypes(u.DonationType)
	out := make([]BloodComponent, 0, len(types))
	for _, t := range types {
		rule := RuleFor(t)
		c := BloodComponent{
			ID:                 ComponentID(t, u.Serial),
			BloodUnitID:        u.UnitNumber,
			Type:               t,
			BloodGroup:         u.BloodGroup,
			SeparationDate:     today,
			Status:             ComponentAvailable,
			VolumeML:           rule.VolumeML,
			StorageRequirement: rule.Storage,
			StorageTempC:       rule.StorageTempC,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if t == ComponentWholeBlood {
			c.ExpiryDate = u.ExpiryDate
			c.VolumeML = u.VolumeML
		} else {
			c.ExpiryDate = today.AddDate(0, 0, rule.ShelfDays)
		}
		out = append(out, c)
	}
	return out, nil
}

// DescribeTypes renders the produced types for the ledger entry.
func DescribeTypes(components []BloodComponent) string {
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = string(c.Type)
	}
	return strings.Join(names, ", ")
}
