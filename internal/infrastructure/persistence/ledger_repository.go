package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedgerRepository implements ledger.Repository using GORM. It only
// inserts entries; the head row is the one mutable record.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// LockHead reads the head row with SELECT ... FOR UPDATE. The lock is held
// until the surrounding transaction commits or rolls back.
func (r *GormLedgerRepository) LockHead(ctx context.Context) (ledger.Head, error) {
	var head models.LedgerHeadModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", models.LedgerHeadID).
		First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Head{}, shared.NewDomainError(shared.CodeIntegrityFailure, "ledger head row is missing")
	}
	if err != nil {
		return ledger.Head{}, err
	}
	return head.ToDomain(), nil
}

// Append inserts the entry and moves the head from entry.Sequence-1 to it.
func (r *GormLedgerRepository) Append(ctx context.Context, e *ledger.Entry) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(models.LedgerEntryModelFromDomain(e)).Error; err != nil {
		return translateError(err, "ledger entry", fmt.Sprintf("#%d", e.Sequence))
	}

	result := db.Model(&models.LedgerHeadModel{}).
		Where("id = ? AND sequence = ?", models.LedgerHeadID, e.Sequence-1).
		Updates(map[string]any{
			"sequence":  e.Sequence,
			"hash":      e.Hash,
			"timestamp": e.Timestamp,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeConflict,
			fmt.Sprintf("ledger head moved before sequence %d was appended", e.Sequence))
	}
	return nil
}

func (r *GormLedgerRepository) find(ctx context.Context, order string, limit int, query string, args ...any) ([]ledger.Entry, error) {
	var rows []models.LedgerEntryModel
	db := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{})
	if query != "" {
		db = db.Where(query, args...)
	}
	db = db.Order(order)
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]ledger.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// FindBySubject returns a subject's entries oldest first
func (r *GormLedgerRepository) FindBySubject(ctx context.Context, subjectID string) ([]ledger.Entry, error) {
	return r.find(ctx, "sequence ASC", 0, "subject_id = ?", subjectID)
}

// FindByActor returns an actor's entries newest first
func (r *GormLedgerRepository) FindByActor(ctx context.Context, actor string) ([]ledger.Entry, error) {
	return r.find(ctx, "sequence DESC", 0, "actor = ?", actor)
}

// FindByAction returns entries with the given action newest first
func (r *GormLedgerRepository) FindByAction(ctx context.Context, action string) ([]ledger.Entry, error) {
	return r.find(ctx, "sequence DESC", 0, "action = ?", action)
}

// FindBetween returns entries with from <= timestamp < to, newest first
func (r *GormLedgerRepository) FindBetween(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	return r.find(ctx, "sequence DESC", 0, "timestamp >= ? AND timestamp < ?", from.UTC(), to.UTC())
}

// FindRecent returns the newest limit entries
func (r *GormLedgerRepository) FindRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return r.find(ctx, "sequence DESC", limit, "")
}

// Scan returns a page of entries after afterSequence in chain order
func (r *GormLedgerRepository) Scan(ctx context.Context, afterSequence int64, limit int) ([]ledger.Entry, error) {
	return r.find(ctx, "sequence ASC", limit, "sequence > ?", afterSequence)
}

// Ensure GormLedgerRepository implements ledger.Repository
var _ ledger.Repository = (*GormLedgerRepository)(nil)
