// Package txscope defines the unit of work the application services run in.
package txscope

import (
	"context"

	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
)

// TransactionScope provides transactional access to the repositories.
// Everything done through the repositories handed to fn commits or rolls back
// together: unit, component, assignment, request and ledger writes of one
// operation are never partially applied.
type TransactionScope interface {
	// Execute runs fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a
// transaction. All repositories share the same underlying transaction.
type TransactionalRepositories interface {
	UnitRepo() inventory.UnitRepository
	ComponentRepo() inventory.ComponentRepository
	RequestRepo() request.Repository
	AssignmentRepo() request.AssignmentRepository
	TransfusionRepo() request.TransfusionRepository
	DonationRepo() donation.Repository
	DonorDirectory() donation.DonorDirectory
	// LedgerRepo is append-only
	LedgerRepo() ledger.Repository
}
