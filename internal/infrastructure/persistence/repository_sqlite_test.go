package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func appendEntry(t *testing.T, scope *GormTransactionScope, draft ledger.Draft, at time.Time) *ledger.Entry {
	t.Helper()
	ctx := context.Background()
	var out *ledger.Entry
	require.NoError(t, scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		head, err := repos.LedgerRepo().LockHead(ctx)
		if err != nil {
			return err
		}
		e, err := ledger.NewEntry(draft, head, at)
		if err != nil {
			return err
		}
		out = e
		return repos.LedgerRepo().Append(ctx, e)
	}))
	return out
}

func TestGormLedgerRepository(t *testing.T) {
	db := newSQLiteDatabase(t)
	scope := db.TransactionScope()
	repo := NewGormLedgerRepository(db.DB)
	ctx := context.Background()
	t0 := day0.Add(10 * time.Hour)

	first := appendEntry(t, scope, ledger.Draft{SubjectID: "BU-1", Action: ledger.ActionUnitCreated, Actor: "bank@example.com"}, t0)
	second := appendEntry(t, scope, ledger.Draft{SubjectID: "BU-2", Action: ledger.ActionUnitCreated, Actor: "lab@example.com"}, t0.Add(time.Hour))
	third := appendEntry(t, scope, ledger.Draft{SubjectID: "BU-1", Action: ledger.ActionBloodTested, Actor: "lab@example.com"}, t0.Add(2*time.Hour))

	t.Run("head follows the newest entry", func(t *testing.T) {
		head, err := repo.LockHead(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), head.Sequence)
		assert.Equal(t, third.Hash, head.Hash)
		assert.True(t, head.Timestamp.Equal(third.Timestamp))
	})

	t.Run("entries round-trip and still verify", func(t *testing.T) {
		entries, err := repo.Scan(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		v := ledger.NewVerifier()
		for _, e := range entries {
			v.Add(e)
		}
		report := v.Report()
		assert.True(t, report.OK, report.Errors)
		assert.Equal(t, first.PreviousHash, ledger.GenesisHash)
		assert.Equal(t, second.PreviousHash, first.Hash)
	})

	t.Run("queries", func(t *testing.T) {
		trail, err := repo.FindBySubject(ctx, "BU-1")
		require.NoError(t, err)
		require.Len(t, trail, 2)
		assert.Equal(t, int64(1), trail[0].Sequence)

		byActor, err := repo.FindByActor(ctx, "lab@example.com")
		require.NoError(t, err)
		require.Len(t, byActor, 2)
		assert.Equal(t, int64(3), byActor[0].Sequence)

		byAction, err := repo.FindByAction(ctx, ledger.ActionUnitCreated)
		require.NoError(t, err)
		assert.Len(t, byAction, 2)

		between, err := repo.FindBetween(ctx, t0.Add(30*time.Minute), t0.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, between, 1)
		assert.Equal(t, "BU-2", between[0].SubjectID)

		recent, err := repo.FindRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, int64(3), recent[0].Sequence)

		page, err := repo.Scan(ctx, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, int64(2), page[0].Sequence)
	})

	t.Run("stale head is a conflict", func(t *testing.T) {
		stale, err := ledger.NewEntry(ledger.Draft{SubjectID: "BU-9", Action: ledger.ActionUnitCreated, Actor: "x"},
			ledger.Head{Sequence: 1, Hash: first.Hash, Timestamp: first.Timestamp}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		err = scope.Execute(ctx, func(repos txscope.TransactionalRepositories) error {
			return repos.LedgerRepo().Append(ctx, stale)
		})
		assert.True(t, errors.Is(err, shared.ErrConflict), "got %v", err)

		entries, err := repo.FindRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 3, "rejected append must leave nothing behind")
	})

	t.Run("missing head row is an integrity failure", func(t *testing.T) {
		other := newSQLiteDatabase(t)
		require.NoError(t, other.DB.Where("id = ?", models.LedgerHeadID).Delete(&models.LedgerHeadModel{}).Error)
		_, err := NewGormLedgerRepository(other.DB).LockHead(ctx)
		assert.True(t, errors.Is(err, shared.ErrIntegrityFailure), "got %v", err)
	})
}

func newUnit(t *testing.T, serial int64, number string) *inventory.BloodUnit {
	t.Helper()
	u, err := inventory.NewCollectedUnit(inventory.NewUnitParams{
		Serial:          serial,
		UnitNumber:      number,
		DonorID:         "donor@example.com",
		BloodGroup:      inventory.BloodGroupOPos,
		DonationType:    inventory.ComponentWholeBlood,
		StorageLocation: "Fridge A",
		CollectedAt:     day0.Add(9 * time.Hour),
	})
	require.NoError(t, err)
	return u
}

func TestGormUnitRepository(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormUnitRepository(db.DB)
	ctx := context.Background()

	next, err := repo.NextSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	u := newUnit(t, 1, "BU-2026-000001")
	require.NoError(t, repo.Create(ctx, u))
	require.NoError(t, repo.Create(ctx, newUnit(t, 2, "BU-2026-000002")))

	err = repo.Create(ctx, newUnit(t, 3, "BU-2026-000001"))
	assert.True(t, errors.Is(err, shared.ErrConflict), "duplicate unit number, got %v", err)
	err = repo.Create(ctx, newUnit(t, 2, "BU-2026-000009"))
	assert.True(t, errors.Is(err, shared.ErrConflict), "duplicate serial, got %v", err)

	next, err = repo.NextSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)

	got, err := repo.FindByNumber(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.Equal(t, u.IntegrityHash, got.IntegrityHash)
	assert.Equal(t, u.IntegrityHash, got.ComputeIntegrityHash(), "stored unit must hash the same")
	assert.True(t, got.CollectionDate.Equal(u.CollectionDate))

	got.Status = inventory.UnitTested
	got.HIV, got.HBV, got.HCV = inventory.TestNegative, inventory.TestNegative, inventory.TestNegative
	got.TestStatus = inventory.TestStatusPassed
	require.NoError(t, repo.Save(ctx, got))

	reloaded, err := repo.FindByNumber(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.Equal(t, inventory.UnitTested, reloaded.Status)
	assert.Equal(t, inventory.TestStatusPassed, reloaded.TestStatus)

	exists, err := repo.ExistsByNumber(ctx, "BU-2026-000404")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.FindByNumber(ctx, "BU-2026-000404")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	missing := newUnit(t, 9, "BU-2026-000404")
	assert.True(t, errors.Is(repo.Save(ctx, missing), shared.ErrNotFound))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[inventory.UnitTested])
	assert.Equal(t, int64(1), counts[inventory.UnitCollected])

	expired, err := repo.FindExpiredBefore(ctx, u.ExpiryDate.AddDate(0, 0, 1), []inventory.UnitStatus{inventory.UnitCollected})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "BU-2026-000002", expired[0].UnitNumber)
}

func component(id, unit string, ct inventory.ComponentType, expiry time.Time, status inventory.ComponentStatus) inventory.BloodComponent {
	return inventory.BloodComponent{
		ID:             id,
		BloodUnitID:    unit,
		Type:           ct,
		BloodGroup:     inventory.BloodGroupOPos,
		SeparationDate: day0,
		ExpiryDate:     expiry,
		Status:         status,
		VolumeML:       200,
		StorageTempC:   decimal.NewFromInt(4),
		CreatedAt:      day0,
		UpdatedAt:      day0,
	}
}

func TestGormComponentRepository(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormComponentRepository(db.DB)
	ctx := context.Background()

	require.NoError(t, repo.CreateBatch(ctx, []inventory.BloodComponent{
		component("RBC-1", "BU-1", inventory.ComponentRBC, day0.AddDate(0, 0, 20), inventory.ComponentAvailable),
		component("RBC-2", "BU-2", inventory.ComponentRBC, day0.AddDate(0, 0, 5), inventory.ComponentAvailable),
		component("RBC-3", "BU-3", inventory.ComponentRBC, day0, inventory.ComponentAvailable),
		component("RBC-4", "BU-4", inventory.ComponentRBC, day0.AddDate(0, 0, 1), inventory.ComponentReserved),
		component("PLASMA-1", "BU-1", inventory.ComponentPlasma, day0.AddDate(1, 0, 0), inventory.ComponentAvailable),
	}))

	t.Run("duplicate id is a conflict", func(t *testing.T) {
		err := repo.CreateBatch(ctx, []inventory.BloodComponent{
			component("RBC-1", "BU-1", inventory.ComponentRBC, day0, inventory.ComponentAvailable),
		})
		assert.True(t, errors.Is(err, shared.ErrConflict), "got %v", err)
	})

	t.Run("available is earliest expiry first and excludes expiring today", func(t *testing.T) {
		available, err := repo.FindAvailable(ctx, inventory.ComponentRBC, inventory.BloodGroupOPos, day0, 0)
		require.NoError(t, err)
		require.Len(t, available, 2)
		assert.Equal(t, "RBC-2", available[0].ID)
		assert.Equal(t, "RBC-1", available[1].ID)
		assert.True(t, available[0].StorageTempC.Equal(decimal.NewFromInt(4)))

		limited, err := repo.FindAvailable(ctx, inventory.ComponentRBC, inventory.BloodGroupOPos, day0, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)

		count, err := repo.CountAvailable(ctx, inventory.ComponentRBC, inventory.BloodGroupOPos, day0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		none, err := repo.FindAvailable(ctx, inventory.ComponentRBC, inventory.BloodGroupANeg, day0, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("by unit and by type", func(t *testing.T) {
		byUnit, err := repo.FindByUnit(ctx, "BU-1")
		require.NoError(t, err)
		require.Len(t, byUnit, 2)
		assert.Equal(t, "PLASMA-1", byUnit[0].ID)

		rbc, err := repo.CountByType(ctx, inventory.ComponentRBC)
		require.NoError(t, err)
		assert.Equal(t, int64(4), rbc)
	})

	t.Run("compare and set", func(t *testing.T) {
		won, err := repo.CompareAndSetStatus(ctx, "RBC-2", inventory.ComponentAvailable, inventory.ComponentReserved, day0)
		require.NoError(t, err)
		assert.True(t, won)

		won, err = repo.CompareAndSetStatus(ctx, "RBC-2", inventory.ComponentAvailable, inventory.ComponentReserved, day0)
		require.NoError(t, err)
		assert.False(t, won)

		_, err = repo.CompareAndSetStatus(ctx, "RBC-404", inventory.ComponentAvailable, inventory.ComponentReserved, day0)
		assert.True(t, errors.Is(err, shared.ErrNotFound))

		got, err := repo.FindByID(ctx, "RBC-2")
		require.NoError(t, err)
		assert.Equal(t, inventory.ComponentReserved, got.Status)
	})

	t.Run("expired and summary", func(t *testing.T) {
		expired, err := repo.FindExpiredBefore(ctx, day0.AddDate(0, 0, 2),
			[]inventory.ComponentStatus{inventory.ComponentAvailable, inventory.ComponentReserved})
		require.NoError(t, err)
		ids := make([]string, len(expired))
		for i, c := range expired {
			ids[i] = c.ID
		}
		assert.Equal(t, []string{"RBC-3", "RBC-4"}, ids)

		levels, err := repo.SummarizeAvailable(ctx, day0)
		require.NoError(t, err)
		require.Len(t, levels, 2)
		assert.Equal(t, inventory.ComponentPlasma, levels[0].ComponentType)
		assert.Equal(t, int64(1), levels[1].Count)
		assert.True(t, levels[1].VolumeML.Equal(decimal.NewFromInt(200)))
	})
}

func newRequest(t *testing.T, number string, at time.Time) *request.BloodRequest {
	t.Helper()
	r, err := request.NewBloodRequest(request.NewBloodRequestParams{
		RequestNumber: number,
		HospitalID:    "H-1",
		ComponentType: inventory.ComponentRBC,
		BloodGroup:    inventory.BloodGroupOPos,
		Quantity:      2,
		PatientName:   "Jane Roe",
	}, at)
	require.NoError(t, err)
	return r
}

func TestGormRequestRepositories(t *testing.T) {
	db := newSQLiteDatabase(t)
	requests := NewGormRequestRepository(db.DB)
	assignments := NewGormAssignmentRepository(db.DB)
	transfusions := NewGormTransfusionRepository(db.DB)
	ctx := context.Background()
	t0 := day0.Add(8 * time.Hour)

	first := newRequest(t, "REQ-2026-000001", t0)
	require.NoError(t, requests.Create(ctx, first))
	require.NoError(t, requests.Create(ctx, newRequest(t, "REQ-2026-000002", t0.Add(time.Minute))))
	assert.True(t, errors.Is(requests.Create(ctx, newRequest(t, "REQ-2026-000001", t0)), shared.ErrConflict))

	count, err := requests.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	pending, err := requests.FindByStatus(ctx, request.StatusRequested)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "REQ-2026-000001", pending[0].RequestNumber)

	first.Status = request.StatusApproved
	first.ApprovedBy = "bank@example.com"
	first.ApprovedQuantity = 2
	approvedAt := t0.Add(time.Hour)
	first.ApprovedAt = &approvedAt
	require.NoError(t, requests.Save(ctx, first))

	byNumber, err := requests.FindByNumber(ctx, first.RequestNumber)
	require.NoError(t, err)
	assert.Equal(t, request.StatusApproved, byNumber.Status)
	require.NotNil(t, byNumber.ApprovedAt)
	assert.True(t, byNumber.ApprovedAt.Equal(approvedAt))

	byID, err := requests.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.RequestNumber, byID.RequestNumber)

	_, err = requests.FindByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	t.Run("one active assignment per component", func(t *testing.T) {
		a := request.NewAssignment(first.ID, "RBC-1", "BU-1", t0)
		require.NoError(t, assignments.Create(ctx, a))

		err := assignments.Create(ctx, request.NewAssignment(uuid.New(), "RBC-1", "BU-1", t0))
		assert.True(t, errors.Is(err, shared.ErrConflict), "got %v", err)

		active, err := assignments.FindActiveByComponent(ctx, "RBC-1")
		require.NoError(t, err)
		assert.Equal(t, a.ID, active.ID)

		a.Release(t0.Add(time.Hour))
		require.NoError(t, assignments.Save(ctx, a))

		_, err = assignments.FindActiveByComponent(ctx, "RBC-1")
		assert.True(t, errors.Is(err, shared.ErrNotFound))

		require.NoError(t, assignments.Create(ctx, request.NewAssignment(uuid.New(), "RBC-1", "BU-1", t0.Add(2*time.Hour))),
			"a released component can be assigned again")

		list, err := assignments.FindByRequest(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].ReleasedAt)
	})

	t.Run("transfusions", func(t *testing.T) {
		rec := &request.TransfusionRecord{
			BaseEntity:   shared.NewBaseEntityAt(t0),
			ComponentID:  "RBC-9",
			BloodUnitID:  "BU-9",
			PatientName:  "Jane Roe",
			TransfusedAt: t0,
			Reaction:     request.ReactionNone,
			RecordedBy:   "ward@hospital.example.com",
		}
		require.NoError(t, transfusions.Create(ctx, rec))

		list, err := transfusions.FindByComponent(ctx, "RBC-9")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, request.ReactionNone, list[0].Reaction)
	})
}

func TestGormTransactionScopeRollsBack(t *testing.T) {
	db := newSQLiteDatabase(t)
	ctx := context.Background()

	err := db.TransactionScope().Execute(ctx, func(repos txscope.TransactionalRepositories) error {
		if err := repos.UnitRepo().Create(ctx, newUnit(t, 1, "BU-2026-000001")); err != nil {
			return err
		}
		head, err := repos.LedgerRepo().LockHead(ctx)
		if err != nil {
			return err
		}
		e, err := ledger.NewEntry(ledger.Draft{SubjectID: "BU-2026-000001", Action: ledger.ActionUnitCreated, Actor: "a"}, head, day0)
		if err != nil {
			return err
		}
		if err := repos.LedgerRepo().Append(ctx, e); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	exists, err := NewGormUnitRepository(db.DB).ExistsByNumber(ctx, "BU-2026-000001")
	require.NoError(t, err)
	assert.False(t, exists)

	head, err := NewGormLedgerRepository(db.DB).LockHead(ctx)
	require.NoError(t, err)
	assert.True(t, head.IsEmpty())
}
