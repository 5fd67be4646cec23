package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// UnitRepository persists blood units. Units are never deleted.
type UnitRepository interface {
	// Create inserts a new unit
	Create(ctx context.Context, unit *BloodUnit) error

	// Save updates a unit's mutable fields
	Save(ctx context.Context, unit *BloodUnit) error

	// FindByNumber finds a unit by its external unit number
	FindByNumber(ctx context.Context, unitNumber string) (*BloodUnit, error)

	// ExistsByNumber checks whether a unit number is taken
	ExistsByNumber(ctx context.Context, unitNumber string) (bool, error)

	// NextSerial returns the next unused unit serial
	NextSerial(ctx context.Context) (int64, error)

	// FindExpiredBefore finds units in one of statuses whose expiry date is before day
	FindExpiredBefore(ctx context.Context, day time.Time, statuses []UnitStatus) ([]BloodUnit, error)

	// CountByStatus counts units per status
	CountByStatus(ctx context.Context) (map[UnitStatus]int64, error)
}

// ComponentRepository persists blood components. Status changes go through
// CompareAndSetStatus so concurrent writers cannot both win the same
// component.
type ComponentRepository interface {
	// CreateBatch inserts the components produced by one separation
	CreateBatch(ctx context.Context, components []BloodComponent) error

	// FindByID finds a component by id
	FindByID(ctx context.Context, id string) (*BloodComponent, error)

	// FindByUnit lists a unit's components
	FindByUnit(ctx context.Context, unitNumber string) ([]BloodComponent, error)

	// FindAvailable lists AVAILABLE components of a type and group expiring
	// after day, earliest expiry first, at most limit rows
	FindAvailable(ctx context.Context, componentType ComponentType, bloodGroup BloodGroup, day time.Time, limit int) ([]BloodComponent, error)

	// CountAvailable counts what FindAvailable would return without a limit
	CountAvailable(ctx context.Context, componentType ComponentType, bloodGroup BloodGroup, day time.Time) (int64, error)

	// CountByType counts every component of a type regardless of status
	CountByType(ctx context.Context, componentType ComponentType) (int64, error)

	// CompareAndSetStatus sets status to `to` only if it is currently `from`.
	// It reports false when another writer changed the status first.
	CompareAndSetStatus(ctx context.Context, id string, from, to ComponentStatus, now time.Time) (bool, error)

	// FindExpiredBefore finds components in one of statuses whose expiry date is before day
	FindExpiredBefore(ctx context.Context, day time.Time, statuses []ComponentStatus) ([]BloodComponent, error)

	// SummarizeAvailable groups allocatable stock by type and blood group
	SummarizeAvailable(ctx context.Context, day time.Time) ([]StockLevel, error)
}

// StockLevel is the allocatable stock of one type and blood group.
type StockLevel struct {
	ComponentType ComponentType   `json:"component_type"`
	BloodGroup    BloodGroup      `json:"blood_group"`
	Count         int64           `json:"count"`
	VolumeML      decimal.Decimal `json:"volume_ml"`
}
