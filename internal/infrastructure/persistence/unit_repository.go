package persistence

import (
	"context"
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormUnitRepository implements inventory.UnitRepository using GORM
type GormUnitRepository struct {
	db *gorm.DB
}

// NewGormUnitRepository creates a new GormUnitRepository
func NewGormUnitRepository(db *gorm.DB) *GormUnitRepository {
	return &GormUnitRepository{db: db}
}

// Create inserts a new unit
func (r *GormUnitRepository) Create(ctx context.Context, u *inventory.BloodUnit) error {
	err := r.db.WithContext(ctx).Create(models.BloodUnitModelFromDomain(u)).Error
	return translateError(err, "blood unit", u.UnitNumber)
}

// Save updates the fields that change after collection
func (r *GormUnitRepository) Save(ctx context.Context, u *inventory.BloodUnit) error {
	result := r.db.WithContext(ctx).
		Model(&models.BloodUnitModel{}).
		Where("unit_number = ?", u.UnitNumber).
		Updates(map[string]any{
			"status":           string(u.Status),
			"hiv":              string(u.HIV),
			"hbv":              string(u.HBV),
			"hcv":              string(u.HCV),
			"test_status":      string(u.TestStatus),
			"storage_location": u.StorageLocation,
			"updated_at":       u.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("blood unit", u.UnitNumber)
	}
	return nil
}

// FindByNumber finds a unit by its external unit number
func (r *GormUnitRepository) FindByNumber(ctx context.Context, unitNumber string) (*inventory.BloodUnit, error) {
	var m models.BloodUnitModel
	if err := r.db.WithContext(ctx).Where("unit_number = ?", unitNumber).First(&m).Error; err != nil {
		return nil, translateError(err, "blood unit", unitNumber)
	}
	return m.ToDomain(), nil
}

// ExistsByNumber checks whether a unit number is taken
func (r *GormUnitRepository) ExistsByNumber(ctx context.Context, unitNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.BloodUnitModel{}).
		Where("unit_number = ?", unitNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// NextSerial returns one past the highest serial in use. It takes no lock
// of its own: callers run inside a write transaction that already holds the
// ledger head, and a serial that still collides fails Create with CONFLICT.
func (r *GormUnitRepository) NextSerial(ctx context.Context) (int64, error) {
	var max int64
	if err := r.db.WithContext(ctx).Model(&models.BloodUnitModel{}).
		Select("COALESCE(MAX(serial), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max + 1, nil
}

// FindExpiredBefore finds units in one of statuses whose expiry date is before day
func (r *GormUnitRepository) FindExpiredBefore(ctx context.Context, day time.Time, statuses []inventory.UnitStatus) ([]inventory.BloodUnit, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var rows []models.BloodUnitModel
	if err := r.db.WithContext(ctx).
		Where("expiry_date < ? AND status IN ?", day, stringsOf(statuses)).
		Order("serial ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	units := make([]inventory.BloodUnit, len(rows))
	for i := range rows {
		units[i] = *rows[i].ToDomain()
	}
	return units, nil
}

// CountByStatus counts units per status
func (r *GormUnitRepository) CountByStatus(ctx context.Context) (map[inventory.UnitStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.BloodUnitModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[inventory.UnitStatus]int64, len(rows))
	for _, row := range rows {
		out[inventory.UnitStatus(row.Status)] = row.Count
	}
	return out, nil
}

// Ensure GormUnitRepository implements inventory.UnitRepository
var _ inventory.UnitRepository = (*GormUnitRepository)(nil)
