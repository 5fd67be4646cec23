// Package donation models a donor's intent to donate, from submission to the
// completed collection that creates a blood unit.
package donation

import (
	"fmt"
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a donation request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusScheduled Status = "SCHEDULED"
	StatusRejected  Status = "REJECTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// AllStatuses lists every donation status.
var AllStatuses = []Status{
	StatusPending, StatusApproved, StatusScheduled, StatusRejected, StatusCompleted, StatusCancelled,
}

// Transitions is the donation state machine. SCHEDULED -> SCHEDULED is a
// reschedule.
var Transitions = shared.NewTransitionTable("donation request", map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected, StatusCancelled, StatusCompleted},
	StatusApproved:  {StatusScheduled, StatusRejected, StatusCancelled, StatusCompleted},
	StatusScheduled: {StatusScheduled, StatusRejected, StatusCancelled, StatusCompleted},
})

// IsActive reports whether the request blocks another submission by the same donor.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusApproved || s == StatusScheduled
}

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// DonationRequest is a donor's intent to donate.
type DonationRequest struct {
	shared.BaseEntity
	DonorID           string
	DonorEmail        string
	BloodBankID       string
	BloodGroup        inventory.BloodGroup
	DonationType      inventory.ComponentType
	PreferredDate     *time.Time
	Location          string
	HealthDeclaration string
	Age               int
	WeightKg          decimal.Decimal
	Status            Status
	ApprovedBy        string
	ApprovedAt        *time.Time
	RejectionReason   string
	AppointmentDate   *time.Time
	AppointmentTime   string
	AppointmentNotes  string
	BloodUnitID       string
	CompletedAt       *time.Time
}

// SubjectID is the ledger subject of the request's own transitions.
func (d *DonationRequest) SubjectID() string {
	return "DR-" + d.ID.String()
}

func (d *DonationRequest) transition(target Status, now time.Time) (Status, error) {
	from := d.Status
	if err := Transitions.Check(from, target); err != nil {
		return from, err
	}
	d.Status = target
	d.Touch(now)
	return from, nil
}

func (d *DonationRequest) requirePending(op string) error {
	if d.Status != StatusPending {
		return shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("Cannot %s donation request in status %s", op, d.Status))
	}
	return nil
}

// Approve approves a PENDING request.
func (d *DonationRequest) Approve(approver string, now time.Time) (Status, error) {
	if err := d.requirePending("approve"); err != nil {
		return d.Status, err
	}
	from, err := d.transition(StatusApproved, now)
	if err != nil {
		return from, err
	}
	d.ApprovedBy = approver
	d.ApprovedAt = &now
	return from, nil
}

// Reject rejects a PENDING request.
func (d *DonationRequest) Reject(reason string, now time.Time) (Status, error) {
	if err := d.requirePending("reject"); err != nil {
		return d.Status, err
	}
	from, err := d.transition(StatusRejected, now)
	if err != nil {
		return from, err
	}
	d.RejectionReason = reason
	return from, nil
}

// Schedule books or rebooks the appointment of an APPROVED or SCHEDULED request.
func (d *DonationRequest) Schedule(date time.Time, at, notes string, now time.Time) (Status, error) {
	if d.Status != StatusApproved && d.Status != StatusScheduled {
		return d.Status, shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("Cannot schedule donation request in status %s", d.Status))
	}
	from, err := d.transition(StatusScheduled, now)
	if err != nil {
		return from, err
	}
	day := shared.StartOfDay(date)
	d.AppointmentDate = &day
	d.AppointmentTime = at
	d.AppointmentNotes = notes
	return from, nil
}

// Complete closes the request and links the unit it produced.
func (d *DonationRequest) Complete(unitNumber string, now time.Time) (Status, error) {
	from, err := d.transition(StatusCompleted, now)
	if err != nil {
		return from, err
	}
	d.BloodUnitID = unitNumber
	d.CompletedAt = &now
	return from, nil
}

// Cancel withdraws a non-terminal request.
func (d *DonationRequest) Cancel(now time.Time) (Status, error) {
	return d.transition(StatusCancelled, now)
}
