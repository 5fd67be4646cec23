package donation

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists donation requests.
type Repository interface {
	Create(ctx context.Context, d *DonationRequest) error
	Save(ctx context.Context, d *DonationRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*DonationRequest, error)
	FindByDonor(ctx context.Context, donorID string) ([]DonationRequest, error)
	// HasActiveForDonor reports whether the donor has a PENDING, APPROVED or
	// SCHEDULED request
	HasActiveForDonor(ctx context.Context, donorID string) (bool, error)
}
