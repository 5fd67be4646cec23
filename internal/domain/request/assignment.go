package request

import (
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Assignment binds one reserved component to one request. A component has at
// most one active (unreleased) assignment at a time.
type Assignment struct {
	shared.BaseEntity
	RequestID    uuid.UUID
	ComponentID  string
	BloodUnitID  string
	AssignedAt   time.Time
	DispatchedAt *time.Time
	ReceivedAt   *time.Time
	ReleasedAt   *time.Time
}

// NewAssignment binds componentID to requestID.
func NewAssignment(requestID uuid.UUID, componentID, bloodUnitID string, now time.Time) *Assignment {
	return &Assignment{
		BaseEntity:  shared.NewBaseEntityAt(now),
		RequestID:   requestID,
		ComponentID: componentID,
		BloodUnitID: bloodUnitID,
		AssignedAt:  now,
	}
}

// IsActive reports whether the assignment still holds its component.
func (a *Assignment) IsActive() bool {
	return a.ReleasedAt == nil
}

// MarkDispatched stamps the dispatch time.
func (a *Assignment) MarkDispatched(now time.Time) {
	a.DispatchedAt = &now
	a.Touch(now)
}

// MarkReceived stamps the receipt time.
func (a *Assignment) MarkReceived(now time.Time) {
	a.ReceivedAt = &now
	a.Touch(now)
}

// Release frees the component from the request.
func (a *Assignment) Release(now time.Time) {
	a.ReleasedAt = &now
	a.Touch(now)
}
