package persistence

import (
	"context"

	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRequestRepository implements request.Repository using GORM
type GormRequestRepository struct {
	db *gorm.DB
}

// NewGormRequestRepository creates a new GormRequestRepository
func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: db}
}

// Create inserts a new request
func (r *GormRequestRepository) Create(ctx context.Context, req *request.BloodRequest) error {
	err := r.db.WithContext(ctx).Create(models.BloodRequestModelFromDomain(req)).Error
	return translateError(err, "blood request", req.RequestNumber)
}

// Save writes every column of an existing request
func (r *GormRequestRepository) Save(ctx context.Context, req *request.BloodRequest) error {
	m := models.BloodRequestModelFromDomain(req)
	result := r.db.WithContext(ctx).Model(m).Select("*").Omit("id", "created_at").Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("blood request", req.RequestNumber)
	}
	return nil
}

// FindByID finds a request by id
func (r *GormRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*request.BloodRequest, error) {
	var m models.BloodRequestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err, "blood request", id.String())
	}
	return m.ToDomain(), nil
}

// FindByNumber finds a request by its request number
func (r *GormRequestRepository) FindByNumber(ctx context.Context, requestNumber string) (*request.BloodRequest, error) {
	var m models.BloodRequestModel
	if err := r.db.WithContext(ctx).Where("request_number = ?", requestNumber).First(&m).Error; err != nil {
		return nil, translateError(err, "blood request", requestNumber)
	}
	return m.ToDomain(), nil
}

// ExistsByNumber checks whether a request number is taken
func (r *GormRequestRepository) ExistsByNumber(ctx context.Context, requestNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BloodRequestModel{}).
		Where("request_number = ?", requestNumber).
		Count(&count).Error
	return count > 0, err
}

// Count returns the number of requests ever created
func (r *GormRequestRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BloodRequestModel{}).Count(&count).Error
	return count, err
}

// FindByStatus lists requests in a status, oldest first
func (r *GormRequestRepository) FindByStatus(ctx context.Context, status request.Status) ([]request.BloodRequest, error) {
	var rows []models.BloodRequestModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]request.BloodRequest, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// GormAssignmentRepository implements request.AssignmentRepository using GORM
type GormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository creates a new GormAssignmentRepository
func NewGormAssignmentRepository(db *gorm.DB) *GormAssignmentRepository {
	return &GormAssignmentRepository{db: db}
}

// Create inserts an assignment. The partial unique index rejects a second
// active assignment of the same component.
func (r *GormAssignmentRepository) Create(ctx context.Context, a *request.Assignment) error {
	err := r.db.WithContext(ctx).Create(models.AssignmentModelFromDomain(a)).Error
	return translateError(err, "assignment for component", a.ComponentID)
}

// Save updates the dispatch, receipt and release markers
func (r *GormAssignmentRepository) Save(ctx context.Context, a *request.Assignment) error {
	result := r.db.WithContext(ctx).
		Model(&models.AssignmentModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"dispatched_at": a.DispatchedAt,
			"received_at":   a.ReceivedAt,
			"released_at":   a.ReleasedAt,
			"updated_at":    a.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NotFound("assignment", a.ID.String())
	}
	return nil
}

// FindByRequest lists a request's assignments in assignment order
func (r *GormAssignmentRepository) FindByRequest(ctx context.Context, requestID uuid.UUID) ([]request.Assignment, error) {
	var rows []models.AssignmentModel
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("assigned_at ASC, component_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]request.Assignment, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindActiveByComponent returns the unreleased assignment of a component
func (r *GormAssignmentRepository) FindActiveByComponent(ctx context.Context, componentID string) (*request.Assignment, error) {
	var m models.AssignmentModel
	if err := r.db.WithContext(ctx).
		Where("component_id = ? AND released_at IS NULL", componentID).
		First(&m).Error; err != nil {
		return nil, translateError(err, "active assignment for component", componentID)
	}
	a := m.ToDomain()
	return &a, nil
}

// GormTransfusionRepository implements request.TransfusionRepository using GORM
type GormTransfusionRepository struct {
	db *gorm.DB
}

// NewGormTransfusionRepository creates a new GormTransfusionRepository
func NewGormTransfusionRepository(db *gorm.DB) *GormTransfusionRepository {
	return &GormTransfusionRepository{db: db}
}

// Create inserts a transfusion record
func (r *GormTransfusionRepository) Create(ctx context.Context, t *request.TransfusionRecord) error {
	return r.db.WithContext(ctx).Create(models.TransfusionRecordModelFromDomain(t)).Error
}

// FindByComponent lists the records of one component, oldest first
func (r *GormTransfusionRepository) FindByComponent(ctx context.Context, componentID string) ([]request.TransfusionRecord, error) {
	var rows []models.TransfusionRecordModel
	if err := r.db.WithContext(ctx).
		Where("component_id = ?", componentID).
		Order("transfused_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]request.TransfusionRecord, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var (
	_ request.Repository            = (*GormRequestRepository)(nil)
	_ request.AssignmentRepository  = (*GormAssignmentRepository)(nil)
	_ request.TransfusionRepository = (*GormTransfusionRepository)(nil)
)
