package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	requestapp "github.com/bloodchain/backend/internal/application/request"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/config"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const bank = "bank@example.com"

type services struct {
	ledger   *ledgerapp.Service
	units    *inventoryapp.UnitService
	requests *requestapp.Service
}

func newServices(t *testing.T) *services {
	t.Helper()
	return newServicesAt(t, shared.NewManualClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
}

// newServicesAt wires the services over a zero-valued sqlite config.
func newServicesAt(t *testing.T, clock shared.Clock) *services {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(context.Background(), db.DB))

	scope := db.TransactionScope()
	m := metrics.New(prometheus.NewRegistry())
	logger := zap.NewNop()
	ledgerSvc := ledgerapp.NewService(scope, clock, m, logger)
	units := inventoryapp.NewUnitService(scope, ledgerSvc, clock, m, logger)
	allocator := inventoryapp.NewAllocator(scope, ledgerSvc, clock, m, logger)
	return &services{
		ledger:   ledgerSvc,
		units:    units,
		requests: requestapp.NewService(scope, ledgerSvc, units, allocator, clock, m, logger),
	}
}

func (s *services) stock(t *testing.T, group, donationType string) *inventory.BloodUnit {
	t.Helper()
	ctx := context.Background()
	u, err := s.units.CreateFromCollection(ctx, inventoryapp.CollectUnitCommand{
		DonorID: "donor@example.com", BloodGroup: group, DonationType: donationType, Actor: bank,
	})
	require.NoError(t, err)
	_, err = s.units.RecordTestResults(ctx, u.UnitNumber,
		inventory.TestNegative, inventory.TestNegative, inventory.TestNegative, bank)
	require.NoError(t, err)
	_, err = s.units.Separate(ctx, u.UnitNumber, bank)
	require.NoError(t, err)
	return u
}

func (s *services) create(t *testing.T, componentType, group string, quantity int) *request.BloodRequest {
	t.Helper()
	req, err := s.requests.Create(context.Background(), requestapp.CreateRequestCommand{
		HospitalID: "H-1", ComponentType: componentType, BloodGroup: group,
		Quantity: quantity, PatientName: "Jane Roe", Actor: "ward@hospital.example.com",
	})
	require.NoError(t, err)
	return req
}

func TestRequestLifecycleOnSQLite(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	u := s.stock(t, "O+", "RBC")
	req := s.create(t, "RBC", "O+", 1)

	_, err := s.requests.Approve(ctx, req.RequestNumber, bank)
	require.NoError(t, err)
	_, err = s.requests.Dispatch(ctx, req.RequestNumber, bank)
	require.NoError(t, err)
	done, err := s.requests.ConfirmReceipt(ctx, req.RequestNumber, "ward@hospital.example.com")
	require.NoError(t, err)
	assert.Equal(t, request.StatusCompleted, done.Status)

	unit, err := s.units.GetUnit(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.Equal(t, inventory.UnitReceived, unit.Status)

	trail, err := s.ledger.Trail(ctx, u.UnitNumber)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, ledger.ActionBloodReceived, trail[len(trail)-1].Action)

	report, err := s.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK, report.Errors)
	assert.Positive(t, report.Total)
}

func TestConcurrentApprovalsShareOneComponent(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	s.stock(t, "A-", "RBC")
	first := s.create(t, "RBC", "A-", 1)
	second := s.create(t, "RBC", "A-", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, number := range []string{first.RequestNumber, second.RequestNumber} {
		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()
			_, errs[i] = s.requests.Approve(ctx, number, bank)
		}(i, number)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, shared.ErrInventoryExhausted), "loser must see exhausted stock, got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	report, err := s.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK, report.Errors)
}

func TestUnitIntegrityHoldsAheadOfUTC(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	// 02:00 in Kolkata is still the previous day in UTC.
	s := newServicesAt(t, shared.NewManualClock(time.Date(2026, 3, 2, 2, 0, 0, 0, ist)))
	ctx := context.Background()

	u, err := s.units.CreateFromCollection(ctx, inventoryapp.CollectUnitCommand{
		DonorID: "donor@example.com", BloodGroup: "B+", Actor: bank,
	})
	require.NoError(t, err)

	check, err := s.units.VerifyUnit(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.True(t, check.OK, "stored=%s computed=%s", check.Stored, check.Computed)

	stored, err := s.units.GetUnit(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", stored.CollectionDate.Format("2006-01-02"))

	provenance, err := s.units.Provenance(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.True(t, provenance.Integrity.OK)
}
