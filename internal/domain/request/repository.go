package request

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists blood requests.
type Repository interface {
	Create(ctx context.Context, r *BloodRequest) error
	Save(ctx context.Context, r *BloodRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*BloodRequest, error)
	FindByNumber(ctx context.Context, requestNumber string) (*BloodRequest, error)
	ExistsByNumber(ctx context.Context, requestNumber string) (bool, error)
	// Count returns the number of requests ever created
	Count(ctx context.Context) (int64, error)
	FindByStatus(ctx context.Context, status Status) ([]BloodRequest, error)
}

// AssignmentRepository persists request-component assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	Save(ctx context.Context, a *Assignment) error
	// FindByRequest lists a request's assignments, active or not
	FindByRequest(ctx context.Context, requestID uuid.UUID) ([]Assignment, error)
	// FindActiveByComponent returns the active assignment of a component, or
	// a NOT_FOUND error
	FindActiveByComponent(ctx context.Context, componentID string) (*Assignment, error)
}

// TransfusionRepository persists transfusion records.
type TransfusionRepository interface {
	Create(ctx context.Context, t *TransfusionRecord) error
	FindByComponent(ctx context.Context, componentID string) ([]TransfusionRecord, error)
}
