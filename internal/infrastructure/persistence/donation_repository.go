package persistence

import (
	"context"
	"time"

	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDonationRepository implements donation.Repository using GORM
type GormDonationRepository struct {
	db *gorm.DB
}

// NewGormDonationRepository creates a new GormDonationRepository
func NewGormDonationRepository(db *gorm.DB) *GormDonationRepository {
	return &GormDonationRepository{db: db}
}

// Create inserts a donation request
func (r *GormDonationRepository) Create(ctx context.Context, d *donation.DonationRequest) error {
	err := r.db.WithContext(ctx).Create(models.DonationRequestModelFromDomain(d)).Error
	return translateError(err, "donation request", d.ID.String())
}

// Save writes every column of an existing donation request
func (r *GormDonationRepository) Save(ctx context.Context, d *donation.DonationRequest) error {
	m := models.DonationRequestModelFromDomain(d)
	result := r.db.WithContext(ctx).Model(m).Select("*").Omit("id", "created_at").Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("donation request", d.ID.String())
	}
	return nil
}

// FindByID finds a donation request by id
func (r *GormDonationRepository) FindByID(ctx context.Context, id uuid.UUID) (*donation.DonationRequest, error) {
	var m models.DonationRequestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err, "donation request", id.String())
	}
	return m.ToDomain(), nil
}

// FindByDonor lists a donor's requests newest first
func (r *GormDonationRepository) FindByDonor(ctx context.Context, donorID string) ([]donation.DonationRequest, error) {
	var rows []models.DonationRequestModel
	if err := r.db.WithContext(ctx).
		Where("donor_id = ?", donorID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]donation.DonationRequest, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// HasActiveForDonor reports whether the donor has a PENDING, APPROVED or SCHEDULED request
func (r *GormDonationRepository) HasActiveForDonor(ctx context.Context, donorID string) (bool, error) {
	var active []string
	for _, s := range donation.AllStatuses {
		if s.IsActive() {
			active = append(active, string(s))
		}
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DonationRequestModel{}).
		Where("donor_id = ? AND status IN ?", donorID, active).
		Count(&count).Error
	return count > 0, err
}

// GormDonorDirectory implements donation.DonorDirectory over the donors table
type GormDonorDirectory struct {
	db *gorm.DB
}

// NewGormDonorDirectory creates a new GormDonorDirectory
func NewGormDonorDirectory(db *gorm.DB) *GormDonorDirectory {
	return &GormDonorDirectory{db: db}
}

// FindDonor finds a donor by id
func (r *GormDonorDirectory) FindDonor(ctx context.Context, donorID string) (*donation.Donor, error) {
	var m models.DonorModel
	if err := r.db.WithContext(ctx).Where("id = ?", donorID).First(&m).Error; err != nil {
		return nil, translateError(err, "donor", donorID)
	}
	return m.ToDomain(), nil
}

// UpdateLastDonation writes the donor's last-donation marker
func (r *GormDonorDirectory) UpdateLastDonation(ctx context.Context, donorID string, date time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.DonorModel{}).
		Where("id = ?", donorID).
		Update("last_donation_date", date)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("donor", donorID)
	}
	return nil
}

// Upsert inserts or replaces a donor record. It is used to seed the
// directory; the identity service owns these rows in production.
func (r *GormDonorDirectory) Upsert(ctx context.Context, d *donation.Donor) error {
	return r.db.WithContext(ctx).Save(models.DonorModelFromDomain(d)).Error
}

var (
	_ donation.Repository     = (*GormDonationRepository)(nil)
	_ donation.DonorDirectory = (*GormDonorDirectory)(nil)
)
