// Package request models a requester's ask for blood components and the
// assignments binding reserved components to it.
package request

import (
	"fmt"
	"sort"
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/shared"
)

// Status is the lifecycle status of a blood request.
type Status string

const (
	StatusRequested         Status = "REQUESTED"
	StatusApproved          Status = "APPROVED"
	StatusPartiallyApproved Status = "PARTIALLY_APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusDispatched        Status = "DISPATCHED"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

// AllStatuses lists every request status.
var AllStatuses = []Status{
	StatusRequested, StatusApproved, StatusPartiallyApproved, StatusRejected,
	StatusDispatched, StatusCompleted, StatusCancelled,
}

// Transitions is the request state machine.
var Transitions = shared.NewTransitionTable("blood request", map[Status][]Status{
	StatusRequested:         {StatusApproved, StatusPartiallyApproved, StatusRejected, StatusCancelled},
	StatusApproved:          {StatusDispatched, StatusCancelled},
	StatusPartiallyApproved: {StatusDispatched, StatusCancelled},
	StatusDispatched:        {StatusCompleted, StatusCancelled},
})

// String returns the string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return Transitions.IsTerminal(s)
}

// HoldsReservations reports whether components assigned in this status are
// still RESERVED rather than shipped.
func (s Status) HoldsReservations() bool {
	return s == StatusApproved || s == StatusPartiallyApproved
}

// Urgency orders the pending queue.
type Urgency string

const (
	UrgencyRoutine   Urgency = "ROUTINE"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyEmergency Urgency = "EMERGENCY"
)

// Rank is higher for more urgent requests.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyEmergency:
		return 2
	case UrgencyUrgent:
		return 1
	default:
		return 0
	}
}

// IsValid checks if the urgency is known
func (u Urgency) IsValid() bool {
	return u == UrgencyRoutine || u == UrgencyUrgent || u == UrgencyEmergency
}

// BloodRequest is a requester's ask for Quantity components of one type and
// blood group. ApprovedQuantity never exceeds Quantity.
type BloodRequest struct {
	shared.BaseEntity
	RequestNumber    string
	HospitalID       string
	HospitalEmail    string
	ComponentType    inventory.ComponentType
	BloodGroup       inventory.BloodGroup
	Quantity         int
	Urgency          Urgency
	PatientName      string
	PatientAge       int
	Reason           string
	RequiredBy       *time.Time
	Status           Status
	ApprovedBy       string
	ApprovedAt       *time.Time
	ApprovedQuantity int
	RejectionReason  string
	DispatchedAt     *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// NewBloodRequestParams holds a submitted request.
type NewBloodRequestParams struct {
	RequestNumber string
	HospitalID    string
	HospitalEmail string
	ComponentType inventory.ComponentType
	BloodGroup    inventory.BloodGroup
	Quantity      int
	Urgency       Urgency
	PatientName   string
	PatientAge    int
	Reason        string
	RequiredBy    *time.Time
}

// NewBloodRequest creates a REQUESTED request.
func NewBloodRequest(p NewBloodRequestParams, now time.Time) (*BloodRequest, error) {
	if p.RequestNumber == "" {
		return nil, shared.Validation("request number is required")
	}
	if p.HospitalID == "" {
		return nil, shared.Validation("requester is required")
	}
	if !p.ComponentType.IsValid() {
		return nil, shared.Validation("invalid component type: %s", p.ComponentType)
	}
	if !p.BloodGroup.IsValid() {
		return nil, shared.Validation("invalid blood group: %s", p.BloodGroup)
	}
	if p.Quantity <= 0 {
		return nil, shared.Validation("quantity must be positive")
	}
	if p.Urgency == "" {
		p.Urgency = UrgencyRoutine
	}
	if !p.Urgency.IsValid() {
		return nil, shared.Validation("invalid urgency: %s", p.Urgency)
	}
	return &BloodRequest{
		BaseEntity:    shared.NewBaseEntityAt(now),
		RequestNumber: p.RequestNumber,
		HospitalID:    p.HospitalID,
		HospitalEmail: p.HospitalEmail,
		ComponentType: p.ComponentType,
		BloodGroup:    p.BloodGroup,
		Quantity:      p.Quantity,
		Urgency:       p.Urgency,
		PatientName:   p.PatientName,
		PatientAge:    p.PatientAge,
		Reason:        p.Reason,
		RequiredBy:    p.RequiredBy,
		Status:        StatusRequested,
	}, nil
}

func (r *BloodRequest) transition(target Status, now time.Time) (Status, error) {
	from := r.Status
	if err := Transitions.Check(from, target); err != nil {
		return from, err
	}
	r.Status = target
	r.Touch(now)
	return from, nil
}

// Approve records the approval of reserved components. reserved must be in
// 1..Quantity; fewer than Quantity makes the approval partial.
func (r *BloodRequest) Approve(approver string, reserved int, now time.Time) (Status, error) {
	if reserved <= 0 || reserved > r.Quantity {
		return r.Status, shared.Validation("approved quantity %d out of range 1..%d", reserved, r.Quantity)
	}
	target := StatusApproved
	if reserved < r.Quantity {
		target = StatusPartiallyApproved
	}
	from, err := r.transition(target, now)
	if err != nil {
		return from, err
	}
	r.ApprovedBy = approver
	r.ApprovedAt = &now
	r.ApprovedQuantity = reserved
	return from, nil
}

// Reject rejects a REQUESTED request.
func (r *BloodRequest) Reject(reason string, now time.Time) (Status, error) {
	if r.Status != StatusRequested {
		return r.Status, shared.NewDomainError(shared.CodeInvalidTransition,
			fmt.Sprintf("Cannot reject blood request in status %s", r.Status))
	}
	from, err := r.transition(StatusRejected, now)
	if err != nil {
		return from, err
	}
	r.RejectionReason = reason
	return from, nil
}

// Dispatch marks an approved request as shipped.
func (r *BloodRequest) Dispatch(now time.Time) (Status, error) {
	from, err := r.transition(StatusDispatched, now)
	if err != nil {
		return from, err
	}
	r.DispatchedAt = &now
	return from, nil
}

// Complete marks a dispatched request as received.
func (r *BloodRequest) Complete(now time.Time) (Status, error) {
	from, err := r.transition(StatusCompleted, now)
	if err != nil {
		return from, err
	}
	r.CompletedAt = &now
	return from, nil
}

// Cancel cancels a request that is not COMPLETED, REJECTED or already CANCELLED.
func (r *BloodRequest) Cancel(now time.Time) (Status, error) {
	from, err := r.transition(StatusCancelled, now)
	if err != nil {
		return from, err
	}
	r.CancelledAt = &now
	return from, nil
}

// SortPending orders requests by urgency, most urgent first, then oldest first.
func SortPending(requests []BloodRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		ri, rj := requests[i].Urgency.Rank(), requests[j].Urgency.Rank()
		if ri != rj {
			return ri > rj
		}
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}
