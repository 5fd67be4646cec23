package persistence

import (
	"context"
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormComponentRepository implements inventory.ComponentRepository using GORM
type GormComponentRepository struct {
	db *gorm.DB
}

// NewGormComponentRepository creates a new GormComponentRepository
func NewGormComponentRepository(db *gorm.DB) *GormComponentRepository {
	return &GormComponentRepository{db: db}
}

// CreateBatch inserts the components of one separation in a single statement
func (r *GormComponentRepository) CreateBatch(ctx context.Context, components []inventory.BloodComponent) error {
	if len(components) == 0 {
		return nil
	}
	rows := make([]*models.BloodComponentModel, len(components))
	for i := range components {
		rows[i] = models.BloodComponentModelFromDomain(&components[i])
	}
	err := r.db.WithContext(ctx).Create(rows).Error
	return translateError(err, "blood component", components[0].BloodUnitID)
}

// FindByID finds a component by id
func (r *GormComponentRepository) FindByID(ctx context.Context, id string) (*inventory.BloodComponent, error) {
	var m models.BloodComponentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err, "blood component", id)
	}
	c := m.ToDomain()
	return &c, nil
}

func (r *GormComponentRepository) list(db *gorm.DB) ([]inventory.BloodComponent, error) {
	var rows []models.BloodComponentModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]inventory.BloodComponent, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByUnit lists a unit's components
func (r *GormComponentRepository) FindByUnit(ctx context.Context, unitNumber string) ([]inventory.BloodComponent, error) {
	return r.list(r.db.WithContext(ctx).
		Where("blood_unit_id = ?", unitNumber).
		Order("id ASC"))
}

func (r *GormComponentRepository) allocatable(ctx context.Context, componentType inventory.ComponentType, bloodGroup inventory.BloodGroup, day time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.BloodComponentModel{}).
		Where("component_type = ? AND blood_group = ? AND status = ? AND expiry_date > ?",
			string(componentType), string(bloodGroup), string(inventory.ComponentAvailable), day)
}

// FindAvailable lists allocatable components earliest expiry first
func (r *GormComponentRepository) FindAvailable(ctx context.Context, componentType inventory.ComponentType, bloodGroup inventory.BloodGroup, day time.Time, limit int) ([]inventory.BloodComponent, error) {
	db := r.allocatable(ctx, componentType, bloodGroup, day).Order("expiry_date ASC, id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	return r.list(db)
}

// CountAvailable counts allocatable components
func (r *GormComponentRepository) CountAvailable(ctx context.Context, componentType inventory.ComponentType, bloodGroup inventory.BloodGroup, day time.Time) (int64, error) {
	var count int64
	err := r.allocatable(ctx, componentType, bloodGroup, day).Count(&count).Error
	return count, err
}

// CountByType counts every component of a type regardless of status
func (r *GormComponentRepository) CountByType(ctx context.Context, componentType inventory.ComponentType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BloodComponentModel{}).
		Where("component_type = ?", string(componentType)).
		Count(&count).Error
	return count, err
}

// CompareAndSetStatus issues UPDATE ... WHERE id = ? AND status = ?. Zero rows
// affected means another transaction moved the component first, or it does
// not exist.
func (r *GormComponentRepository) CompareAndSetStatus(ctx context.Context, id string, from, to inventory.ComponentStatus, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BloodComponentModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.BloodComponentModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, shared.NotFound("blood component", id)
	}
	return false, nil
}

// FindExpiredBefore finds components in one of statuses whose expiry date is before day
func (r *GormComponentRepository) FindExpiredBefore(ctx context.Context, day time.Time, statuses []inventory.ComponentStatus) ([]inventory.BloodComponent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	return r.list(r.db.WithContext(ctx).
		Where("expiry_date < ? AND status IN ?", day, stringsOf(statuses)).
		Order("id ASC"))
}

// SummarizeAvailable groups allocatable stock by type and blood group
func (r *GormComponentRepository) SummarizeAvailable(ctx context.Context, day time.Time) ([]inventory.StockLevel, error) {
	var rows []struct {
		ComponentType string
		BloodGroup    string
		Count         int64
		VolumeML      int64
	}
	if err := r.db.WithContext(ctx).Model(&models.BloodComponentModel{}).
		Select("component_type, blood_group, COUNT(*) AS count, COALESCE(SUM(volume_ml), 0) AS volume_ml").
		Where("status = ? AND expiry_date > ?", string(inventory.ComponentAvailable), day).
		Group("component_type, blood_group").
		Order("component_type ASC, blood_group ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	levels := make([]inventory.StockLevel, len(rows))
	for i, row := range rows {
		levels[i] = inventory.StockLevel{
			ComponentType: inventory.ComponentType(row.ComponentType),
			BloodGroup:    inventory.BloodGroup(row.BloodGroup),
			Count:         row.Count,
			VolumeML:      decimal.NewFromInt(row.VolumeML),
		}
	}
	return levels, nil
}

// Ensure GormComponentRepository implements inventory.ComponentRepository
var _ inventory.ComponentRepository = (*GormComponentRepository)(nil)
