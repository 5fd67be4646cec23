package inventory

import (
	"fmt"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ComponentStatus is the lifecycle status of a blood component.
type ComponentStatus string

const (
	ComponentAvailable  ComponentStatus = "AVAILABLE"
	ComponentReserved   ComponentStatus = "RESERVED"
	ComponentDispatched ComponentStatus = "DISPATCHED"
	ComponentReceived   ComponentStatus = "RECEIVED"
	ComponentUsed       ComponentStatus = "USED"
	ComponentExpired    ComponentStatus = "EXPIRED"
)

// ComponentTransitions is the component state machine. RESERVED -> AVAILABLE
// is the release taken when a request holding the reservation is cancelled.
var ComponentTransitions = shared.NewTransitionTable("blood component", map[ComponentStatus][]ComponentStatus{
	ComponentAvailable:  {ComponentReserved, ComponentExpired},
	ComponentReserved:   {ComponentDispatched, ComponentExpired, ComponentAvailable},
	ComponentDispatched: {ComponentReceived},
	ComponentReceived:   {ComponentUsed},
})

// String returns the string representation
func (s ComponentStatus) String() string {
	return string(s)
}

// CanTransitionTo checks the component transition table
func (s ComponentStatus) CanTransitionTo(target ComponentStatus) bool {
	return ComponentTransitions.Allows(s, target)
}

// BloodComponent is one typed fraction of a unit. BloodUnitID never changes
// after separation.
type BloodComponent struct {
	ID                 string
	BloodUnitID        string
	Type               ComponentType
	BloodGroup         BloodGroup
	SeparationDate     time.Time
	ExpiryDate         time.Time
	Status             ComponentStatus
	VolumeML           int
	StorageRequirement string
	StorageTempC       decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ComponentID builds the external id of a component, e.g. RBC-1024.
func ComponentID(t ComponentType, unitSerial int64) string {
	return fmt.Sprintf("%s-%d", t.IDPrefix(), unitSerial)
}

// TransitionTo moves the component to target if the table allows it and
// returns the previous status.
func (c *BloodComponent) TransitionTo(target ComponentStatus, now time.Time) (ComponentStatus, error) {
	from := c.Status
	if err := ComponentTransitions.Check(from, target); err != nil {
		return from, err
	}
	c.Status = target
	c.UpdatedAt = now
	return from, nil
}

// IsAvailableAt reports whether the component can be allocated on the day of
// now: AVAILABLE and expiring strictly after today.
func (c *BloodComponent) IsAvailableAt(now time.Time) bool {
	return c.Status == ComponentAvailable && c.ExpiryDate.After(shared.StartOfDay(now))
}

// IsExpiredAt reports whether the expiry date is before the day of now.
func (c *BloodComponent) IsExpiredAt(now time.Time) bool {
	return c.ExpiryDate.Before(shared.StartOfDay(now))
}
