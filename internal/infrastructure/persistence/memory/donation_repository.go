package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/google/uuid"
)

type donationRepo struct {
	st *state
}

func (r *donationRepo) Create(_ context.Context, d *donation.DonationRequest) error {
	r.st.donations[d.ID] = *d
	return nil
}

func (r *donationRepo) Save(_ context.Context, d *donation.DonationRequest) error {
	if _, ok := r.st.donations[d.ID]; !ok {
		return shared.NotFound("donation request", d.ID.String())
	}
	r.st.donations[d.ID] = *d
	return nil
}

func (r *donationRepo) FindByID(_ context.Context, id uuid.UUID) (*donation.DonationRequest, error) {
	d, ok := r.st.donations[id]
	if !ok {
		return nil, shared.NotFound("donation request", id.String())
	}
	return &d, nil
}

func (r *donationRepo) FindByDonor(_ context.Context, donorID string) ([]donation.DonationRequest, error) {
	var out []donation.DonationRequest
	for _, d := range r.st.donations {
		if d.DonorID == donorID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *donationRepo) HasActiveForDonor(_ context.Context, donorID string) (bool, error) {
	for _, d := range r.st.donations {
		if d.DonorID == donorID && d.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

type donorDirectory struct {
	st *state
}

func (r *donorDirectory) FindDonor(_ context.Context, donorID string) (*donation.Donor, error) {
	d, ok := r.st.donors[donorID]
	if !ok {
		return nil, shared.NotFound("donor", donorID)
	}
	return &d, nil
}

func (r *donorDirectory) UpdateLastDonation(_ context.Context, donorID string, date time.Time) error {
	d, ok := r.st.donors[donorID]
	if !ok {
		return shared.NotFound("donor", donorID)
	}
	d.LastDonationDate = &date
	r.st.donors[donorID] = d
	return nil
}
