// Package memory provides an in-memory implementation of the transaction
// scope and repositories, used by service tests and ephemeral environments.
package memory

import (
	"context"
	"sync"

	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/google/uuid"
)

type state struct {
	units        map[string]inventory.BloodUnit
	components   map[string]inventory.BloodComponent
	requests     map[uuid.UUID]request.BloodRequest
	assignments  map[uuid.UUID]request.Assignment
	transfusions map[uuid.UUID]request.TransfusionRecord
	donations    map[uuid.UUID]donation.DonationRequest
	donors       map[string]donation.Donor
	entries      []ledger.Entry
}

func newState() *state {
	return &state{
		units:        make(map[string]inventory.BloodUnit),
		components:   make(map[string]inventory.BloodComponent),
		requests:     make(map[uuid.UUID]request.BloodRequest),
		assignments:  make(map[uuid.UUID]request.Assignment),
		transfusions: make(map[uuid.UUID]request.TransfusionRecord),
		donations:    make(map[uuid.UUID]donation.DonationRequest),
		donors:       make(map[string]donation.Donor),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		units:        cloneMap(s.units),
		components:   cloneMap(s.components),
		requests:     cloneMap(s.requests),
		assignments:  cloneMap(s.assignments),
		transfusions: cloneMap(s.transfusions),
		donations:    cloneMap(s.donations),
		donors:       cloneMap(s.donors),
		entries:      append([]ledger.Entry(nil), s.entries...),
	}
}

// Store holds all state behind one mutex. Execute works on a copy and swaps
// it in only when fn succeeds, so transactions are atomic and serialized.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Execute runs fn against a transactional copy of the state.
func (s *Store) Execute(ctx context.Context, fn func(repos txscope.TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.state.clone()
	if err := fn(&repositories{st: tx}); err != nil {
		return err
	}
	s.state = tx
	return nil
}

// PutDonor adds or replaces an identity record.
func (s *Store) PutDonor(d donation.Donor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.donors[d.ID] = d
}

// Entries returns a copy of the ledger in sequence order.
func (s *Store) Entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry(nil), s.state.entries...)
}

// TamperEntry overwrites the stored entry with the given sequence. It exists
// so tests can prove verification catches edits.
func (s *Store) TamperEntry(sequence int64, mutate func(*ledger.Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.entries {
		if s.state.entries[i].Sequence == sequence {
			mutate(&s.state.entries[i])
		}
	}
}

type repositories struct {
	st *state
}

func (r *repositories) UnitRepo() inventory.UnitRepository           { return &unitRepo{st: r.st} }
func (r *repositories) ComponentRepo() inventory.ComponentRepository { return &componentRepo{st: r.st} }
func (r *repositories) RequestRepo() request.Repository              { return &requestRepo{st: r.st} }
func (r *repositories) AssignmentRepo() request.AssignmentRepository {
	return &assignmentRepo{st: r.st}
}
func (r *repositories) TransfusionRepo() request.TransfusionRepository {
	return &transfusionRepo{st: r.st}
}
func (r *repositories) DonationRepo() donation.Repository       { return &donationRepo{st: r.st} }
func (r *repositories) DonorDirectory() donation.DonorDirectory { return &donorDirectory{st: r.st} }
func (r *repositories) LedgerRepo() ledger.Repository           { return &ledgerRepo{st: r.st} }

var (
	_ txscope.TransactionScope          = (*Store)(nil)
	_ txscope.TransactionalRepositories = (*repositories)(nil)
)
