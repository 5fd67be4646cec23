package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bloodchain/backend/internal/application/txscope"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/metrics"
	"github.com/bloodchain/backend/internal/infrastructure/persistence/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memory.Store, *shared.ManualClock, *metrics.Metrics) {
	t.Helper()
	store := memory.NewStore()
	clock := shared.NewManualClock(t0)
	m := metrics.New(prometheus.NewRegistry())
	return NewService(store, clock, m, zap.NewNop()), store, clock, m
}

func appendOne(t *testing.T, s *Service, store *memory.Store, draft ledger.Draft) *ledger.Entry {
	t.Helper()
	var e *ledger.Entry
	require.NoError(t, store.Execute(context.Background(), func(repos txscope.TransactionalRepositories) error {
		var err error
		e, err = s.Append(context.Background(), repos.LedgerRepo(), draft)
		return err
	}))
	return e
}

func TestAppendChainsEntries(t *testing.T) {
	s, store, clock, _ := newService(t)

	first := appendOne(t, s, store, ledger.Draft{SubjectID: "BU-2026-000001", Action: ledger.ActionBloodCollected, Actor: "bank"})
	clock.Advance(time.Second)
	second := appendOne(t, s, store, ledger.Draft{SubjectID: "BU-2026-000001", Action: ledger.ActionBloodTested, Actor: "lab"})

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, ledger.GenesisHash, first.PreviousHash)
	assert.Equal(t, int64(2), second.Sequence)
	assert.Equal(t, first.Hash, second.PreviousHash)
	assert.Equal(t, second.ComputeHash(), second.Hash)
}

func TestAppendRejectsIncompleteDraft(t *testing.T) {
	s, store, _, _ := newService(t)

	err := store.Execute(context.Background(), func(repos txscope.TransactionalRepositories) error {
		_, err := s.Append(context.Background(), repos.LedgerRepo(), ledger.Draft{SubjectID: "BU-1", Action: "X"})
		return err
	})
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, store.Entries())
}

func TestConcurrentAppendsFormOneChain(t *testing.T) {
	s, store, _, _ := newService(t)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Execute(context.Background(), func(repos txscope.TransactionalRepositories) error {
				_, err := s.Append(context.Background(), repos.LedgerRepo(), ledger.Draft{SubjectID: "BU-1", Action: "X", Actor: "a"})
				return err
			})
		}()
	}
	wg.Wait()

	entries := store.Entries()
	require.Len(t, entries, writers)
	seen := make(map[string]bool)
	for _, e := range entries {
		assert.False(t, seen[e.PreviousHash], "two entries share previous hash %s", e.PreviousHash)
		seen[e.PreviousHash] = true
	}
	report, err := s.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK, "errors: %v", report.Errors)
}

func TestQueries(t *testing.T) {
	s, store, clock, _ := newService(t)
	ctx := context.Background()

	appendOne(t, s, store, ledger.Draft{SubjectID: "BU-1", Action: ledger.ActionBloodCollected, Actor: "bank"})
	clock.Advance(time.Hour)
	appendOne(t, s, store, ledger.Draft{SubjectID: "BU-2", Action: ledger.ActionBloodCollected, Actor: "bank"})
	clock.Advance(time.Hour)
	appendOne(t, s, store, ledger.Draft{SubjectID: "BU-1", Action: ledger.ActionBloodTested, Actor: "lab"})

	trail, err := s.Trail(ctx, "BU-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, ledger.ActionBloodCollected, trail[0].Action, "trail is oldest first")

	byActor, err := s.ByActor(ctx, "bank")
	require.NoError(t, err)
	require.Len(t, byActor, 2)
	assert.Equal(t, "BU-2", byActor[0].SubjectID, "actor view is newest first")

	byAction, err := s.ByAction(ctx, ledger.ActionBloodCollected)
	require.NoError(t, err)
	assert.Len(t, byAction, 2)

	window, err := s.Between(ctx, t0.Add(30*time.Minute), t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "BU-2", window[0].SubjectID)

	_, err = s.Between(ctx, t0, t0)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].Sequence)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVerifyDetectsTampering(t *testing.T) {
	s, store, _, m := newService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		appendOne(t, s, store, ledger.Draft{SubjectID: "BU-1", Action: "X", Actor: "a", Details: "original"})
	}

	report, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, int64(3), report.LastSequence)

	store.TamperEntry(2, func(e *ledger.Entry) { e.Details = "edited" })

	report, err = s.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "seq 2")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LedgerVerifyFailures))
}

func TestRecordCorrection(t *testing.T) {
	s, store, _, _ := newService(t)
	ctx := context.Background()
	appendOne(t, s, store, ledger.Draft{SubjectID: "BU-1", Action: ledger.ActionBloodCollected, Actor: "bank", Details: "volume 450"})

	e, err := s.RecordCorrection(ctx, CorrectionCommand{
		SubjectID: "BU-1", Sequence: 1, Actor: "supervisor", ActorRole: "ROLE_BLOODBANK", Details: "volume was 470",
	})
	require.NoError(t, err)
	assert.Equal(t, ActionCorrection, e.Action)
	assert.Equal(t, "Corrects entry #1: volume was 470", e.Details)

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "volume 450", entries[0].Details, "history is never edited")

	_, err = s.RecordCorrection(ctx, CorrectionCommand{SubjectID: "BU-1", Sequence: 9, Actor: "supervisor"})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
