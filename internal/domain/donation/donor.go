package donation

import (
	"context"
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
)

// Donor is the part of an identity record the core reads.
type Donor struct {
	ID               string
	Name             string
	Email            string
	BloodGroup       inventory.BloodGroup
	City             string
	Role             string
	Age              *int
	LastDonationDate *time.Time
}

// DonorDirectory is the identity collaborator. The core only reads donors and
// writes back the last-donation marker.
type DonorDirectory interface {
	FindDonor(ctx context.Context, donorID string) (*Donor, error)
	UpdateLastDonation(ctx context.Context, donorID string, date time.Time) error
}
