//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	donationapp "github.com/bloodchain/backend/internal/application/donation"
	inventoryapp "github.com/bloodchain/backend/internal/application/inventory"
	ledgerapp "github.com/bloodchain/backend/internal/application/ledger"
	requestapp "github.com/bloodchain/backend/internal/application/request"
	"github.com/bloodchain/backend/internal/domain/donation"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/persistence"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	bankUser = "bank@example.com"
	hospital = "ward@hospital.example.com"
)

type stack struct {
	db        *TestDB
	ledger    *ledgerapp.Service
	units     *inventoryapp.UnitService
	allocator *inventoryapp.Allocator
	donations *donationapp.Service
	requests  *requestapp.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := NewTestDB(t)
	scope := db.TransactionScope()
	clock := shared.SystemClock{}
	m := metrics.New(prometheus.NewRegistry())
	log := zap.NewNop()

	ledgerSvc := ledgerapp.NewService(scope, clock, m, log)
	units := inventoryapp.NewUnitService(scope, ledgerSvc, clock, m, log)
	allocator := inventoryapp.NewAllocator(scope, ledgerSvc, clock, m, log)
	return &stack{
		db:        db,
		ledger:    ledgerSvc,
		units:     units,
		allocator: allocator,
		donations: donationapp.NewService(scope, ledgerSvc, units, donation.DefaultPolicy(), clock, m, log),
		requests:  requestapp.NewService(scope, ledgerSvc, units, allocator, clock, m, log),
	}
}

func (s *stack) stock(t *testing.T, group, donationType string) *inventory.BloodUnit {
	t.Helper()
	ctx := context.Background()
	u, err := s.units.CreateFromCollection(ctx, inventoryapp.CollectUnitCommand{
		DonorID: "donor@example.com", BloodGroup: group, DonationType: donationType, Actor: bankUser,
	})
	require.NoError(t, err)
	_, err = s.units.RecordTestResults(ctx, u.UnitNumber,
		inventory.TestNegative, inventory.TestNegative, inventory.TestNegative, bankUser)
	require.NoError(t, err)
	_, err = s.units.Separate(ctx, u.UnitNumber, bankUser)
	require.NoError(t, err)
	return u
}

func TestDonationToTransfusion(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	age := 30
	require.NoError(t, persistence.NewGormDonorDirectory(s.db.DB).Upsert(ctx, &donation.Donor{
		ID:         "donor-1",
		Name:       "Sam Doe",
		BloodGroup: inventory.BloodGroupOPos,
		Role:       "ROLE_DONOR",
		Age:        &age,
	}))

	d, err := s.donations.Submit(ctx, donationapp.SubmitDonationCommand{
		DonorID: "donor-1", Age: 30, WeightKg: decimal.NewFromInt(70), Location: "Camp 4",
	})
	require.NoError(t, err)
	_, err = s.donations.Approve(ctx, d.ID, bankUser)
	require.NoError(t, err)
	_, err = s.donations.Schedule(ctx, donationapp.ScheduleDonationCommand{
		DonationID: d.ID, Date: d.CreatedAt, Time: "11:00", Actor: bankUser,
	})
	require.NoError(t, err)
	result, err := s.donations.Complete(ctx, donationapp.CompleteDonationCommand{
		DonationID: d.ID, BloodBankID: "3", BloodBankName: "City Bank", StorageLocation: "Fridge A",
	})
	require.NoError(t, err)
	require.Len(t, result.Components, 4)

	req, err := s.requests.Create(ctx, requestapp.CreateRequestCommand{
		HospitalID: "H-9", HospitalEmail: hospital, ComponentType: "RBC", BloodGroup: "O+",
		Quantity: 1, Urgency: "URGENT", PatientName: "Jane Roe", Actor: hospital,
	})
	require.NoError(t, err)
	_, err = s.requests.Approve(ctx, req.RequestNumber, bankUser)
	require.NoError(t, err)
	_, err = s.requests.Dispatch(ctx, req.RequestNumber, bankUser)
	require.NoError(t, err)
	_, err = s.requests.ConfirmReceipt(ctx, req.RequestNumber, hospital)
	require.NoError(t, err)

	var rbcID string
	for _, id := range result.Components {
		if strings.HasPrefix(id, "RBC-") {
			rbcID = id
		}
	}
	require.NotEmpty(t, rbcID)
	_, err = s.requests.RecordTransfusion(ctx, requestapp.RecordTransfusionCommand{
		ComponentID: rbcID, RequestNumber: req.RequestNumber, PatientName: "Jane Roe", Actor: hospital,
	})
	require.NoError(t, err)

	unit, err := s.units.GetUnit(ctx, result.UnitNumber)
	require.NoError(t, err)
	assert.Equal(t, inventory.UnitUsed, unit.Status)

	trail, err := s.ledger.Trail(ctx, result.UnitNumber)
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, ledger.ActionBloodCollectedAndTested, trail[0].Action)
	assert.Equal(t, ledger.ActionBloodTransfused, trail[len(trail)-1].Action)
	for i := 1; i < len(trail); i++ {
		assert.Greater(t, trail[i].Sequence, trail[i-1].Sequence)
		assert.False(t, trail[i].Timestamp.Before(trail[i-1].Timestamp), "trail is chronological")
	}

	provenance, err := s.units.Provenance(ctx, result.UnitNumber)
	require.NoError(t, err)
	assert.True(t, provenance.Integrity.OK)
	assert.True(t, provenance.TrailHashesOK)

	report, err := s.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK, "errors: %v", report.Errors)
}

func TestConcurrentApprovalsReserveEachComponentOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	// Two units give two RBC components; five requests compete for them.
	s.stock(t, "A-", "RBC")
	s.stock(t, "A-", "RBC")
	const contenders = 5
	numbers := make([]string, contenders)
	for i := range numbers {
		req, err := s.requests.Create(ctx, requestapp.CreateRequestCommand{
			HospitalID: fmt.Sprintf("H-%d", i), ComponentType: "RBC", BloodGroup: "A-",
			Quantity: 1, PatientName: "Jane Roe", Actor: hospital,
		})
		require.NoError(t, err)
		numbers[i] = req.RequestNumber
	}

	var (
		mu       sync.Mutex
		won      int
		exhaust  int
		start    = make(chan struct{})
		wg       sync.WaitGroup
		failures []error
	)
	for _, number := range numbers {
		wg.Add(1)
		go func(number string) {
			defer wg.Done()
			<-start
			_, err := s.requests.Approve(ctx, number, bankUser)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, shared.ErrInventoryExhausted):
				exhaust++
			default:
				failures = append(failures, err)
			}
		}(number)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 2, won)
	assert.Equal(t, contenders-2, exhaust)

	summary, err := s.allocator.Summary(ctx)
	require.NoError(t, err)
	assert.NotNil(t, summary)

	report, err := s.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK, "errors: %v", report.Errors)
}

func TestConcurrentAppendsKeepChainIntact(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	const writers = 8
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := s.units.CreateFromCollection(gctx, inventoryapp.CollectUnitCommand{
				DonorID: fmt.Sprintf("donor-%d", i), BloodGroup: "B+", Actor: bankUser,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	report, err := s.ledger.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK, "errors: %v", report.Errors)
	assert.Positive(t, report.Total)
	assert.Equal(t, int64(report.Total), report.LastSequence)
}
