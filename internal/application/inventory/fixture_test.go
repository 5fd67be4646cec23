package inventory

import (
	"context"
	"testing"
	"time"

	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// dayD is the collection day used across scenarios.
var dayD = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	clock     *shared.ManualClock
	ledger    *ledgerapp.Service
	units     *UnitService
	allocator *Allocator
	sweep     *ExpirySweepService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := shared.NewManualClock(dayD)
	m := metrics.New(prometheus.NewRegistry())
	logger := zap.NewNop()
	ledgerSvc := ledgerapp.NewService(store, clock, m, logger)
	units := NewUnitService(store, ledgerSvc, clock, m, logger)
	return &fixture{
		store:     store,
		clock:     clock,
		ledger:    ledgerSvc,
		units:     units,
		allocator: NewAllocator(store, ledgerSvc, clock, m, logger),
		sweep:     NewExpirySweepService(store, ledgerSvc, units, clock, m, logger),
	}
}

// collectTested creates a unit and records passing test results.
func (f *fixture) collectTested(t *testing.T, group string, donationType string) *inventory.BloodUnit {
	t.Helper()
	ctx := context.Background()
	u, err := f.units.CreateFromCollection(ctx, CollectUnitCommand{
		DonorID:         "donor@example.com",
		BloodGroup:      group,
		DonationType:    donationType,
		VolumeML:        450,
		StorageLocation: "Fridge A",
		Actor:           "bank@example.com",
	})
	require.NoError(t, err)
	u, err = f.units.RecordTestResults(ctx, u.UnitNumber,
		inventory.TestNegative, inventory.TestNegative, inventory.TestNegative, "lab@example.com")
	require.NoError(t, err)
	return u
}

// putComponent stores a component directly, bypassing separation.
func (f *fixture) putComponent(t *testing.T, id string, ct inventory.ComponentType, group inventory.BloodGroup, expiry time.Time, status inventory.ComponentStatus) {
	t.Helper()
	require.NoError(t, f.store.Execute(context.Background(), func(repos txscope.TransactionalRepositories) error {
		return repos.ComponentRepo().CreateBatch(context.Background(), []inventory.BloodComponent{{
			ID:             id,
			BloodUnitID:    "BU-2026-" + id,
			Type:           ct,
			BloodGroup:     group,
			SeparationDate: shared.StartOfDay(dayD),
			ExpiryDate:     expiry,
			Status:         status,
			VolumeML:       200,
			StorageTempC:   decimal.NewFromInt(4),
		}})
	}))
}

func (f *fixture) component(t *testing.T, id string) inventory.BloodComponent {
	t.Helper()
	var c *inventory.BloodComponent
	require.NoError(t, f.store.Execute(context.Background(), func(repos txscope.TransactionalRepositories) error {
		var err error
		c, err = repos.ComponentRepo().FindByID(context.Background(), id)
		return err
	}))
	return *c
}

func actionsOf(entries []ledger.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

// MockAppender is a mock implementation of ledgerapp.Appender
type MockAppender struct {
	mock.Mock
}

func (m *MockAppender) Append(ctx context.Context, repo ledger.Repository, draft ledger.Draft) (*ledger.Entry, error) {
	args := m.Called(ctx, repo, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}
