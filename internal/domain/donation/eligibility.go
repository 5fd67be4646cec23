package donation

import (
	"fmt"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Policy holds the eligibility bounds.
type Policy struct {
	MinAge      int
	MaxAge      int
	GapDays     int
	MinWeightKg decimal.Decimal
}

// DefaultPolicy is 18 to 65 years, 90 days between donations, at least 50 kg.
func DefaultPolicy() Policy {
	return Policy{MinAge: 18, MaxAge: 65, GapDays: 90, MinWeightKg: decimal.NewFromInt(50)}
}

// Eligibility is the outcome of an eligibility check. NextEligibleDate is set
// only when the donation gap is what blocks the donor.
type Eligibility struct {
	Eligible         bool       `json:"eligible"`
	Reason           string     `json:"reason"`
	NextEligibleDate *time.Time `json:"next_eligible_date,omitempty"`
}

// Evaluate applies the age, gap and active-request rules in that order.
func (p Policy) Evaluate(d *Donor, hasActiveRequest bool, now time.Time) Eligibility {
	if d.Age != nil && *d.Age < p.MinAge {
		return Eligibility{Reason: fmt.Sprintf("You must be at least %d years old to donate blood", p.MinAge)}
	}
	if d.Age != nil && *d.Age > p.MaxAge {
		return Eligibility{Reason: fmt.Sprintf("Blood donation is not recommended for donors over %d years old", p.MaxAge)}
	}

	if d.LastDonationDate != nil {
		today := shared.StartOfDay(now)
		last := shared.StartOfDay(d.LastDonationDate.In(now.Location()))
		next := last.AddDate(0, 0, p.GapDays)
		if today.Before(next) {
			remaining := int(next.Sub(today).Hours()/24 + 0.5)
			return Eligibility{
				Reason:           fmt.Sprintf("You must wait %d more days. You can donate again on %s", remaining, next.Format("2006-01-02")),
				NextEligibleDate: &next,
			}
		}
	}

	if hasActiveRequest {
		return Eligibility{Reason: "You already have an active donation request. Please wait for it to be completed or cancelled"}
	}
	return Eligibility{Eligible: true, Reason: "Eligible to donate"}
}

// CheckDeclaration validates the age and weight stated on a submission.
func (p Policy) CheckDeclaration(age int, weightKg decimal.Decimal) error {
	if age < p.MinAge || age > p.MaxAge {
		return shared.Validation("age %d is outside %d-%d", age, p.MinAge, p.MaxAge)
	}
	if weightKg.LessThan(p.MinWeightKg) {
		return shared.Validation("weight %s kg is below the minimum of %s kg", weightKg.String(), p.MinWeightKg.String())
	}
	return nil
}
