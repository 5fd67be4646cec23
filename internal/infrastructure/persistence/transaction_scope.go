package persistence

import (
	"context"

	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Every repository handed to fn shares one *gorm.DB transaction.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// If fn succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos txscope.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) UnitRepo() inventory.UnitRepository {
	return NewGormUnitRepository(r.tx)
}

func (r *gormTransactionalRepositories) ComponentRepo() inventory.ComponentRepository {
	return NewGormComponentRepository(r.tx)
}

func (r *gormTransactionalRepositories) RequestRepo() request.Repository {
	return NewGormRequestRepository(r.tx)
}

func (r *gormTransactionalRepositories) AssignmentRepo() request.AssignmentRepository {
	return NewGormAssignmentRepository(r.tx)
}

func (r *gormTransactionalRepositories) TransfusionRepo() request.TransfusionRepository {
	return NewGormTransfusionRepository(r.tx)
}

func (r *gormTransactionalRepositories) DonationRepo() donation.Repository {
	return NewGormDonationRepository(r.tx)
}

func (r *gormTransactionalRepositories) DonorDirectory() donation.DonorDirectory {
	return NewGormDonorDirectory(r.tx)
}

func (r *gormTransactionalRepositories) LedgerRepo() ledger.Repository {
	return NewGormLedgerRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ txscope.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ txscope.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
