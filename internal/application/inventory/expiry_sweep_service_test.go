package inventory

import (
	"context"
	"testing"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.collectTested(t, "O+", "WHOLE_BLOOD")
	_, err := f.units.Separate(ctx, u.UnitNumber, "bank@example.com")
	require.NoError(t, err)

	stats, err := f.sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.UnitsExpired+stats.ComponentsExpired, "nothing is past expiry on the collection day")

	f.clock.Set(dayD.AddDate(0, 0, 43))
	before := len(f.store.Entries())

	stats, err = f.sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.UnitsExpired)
	assert.Equal(t, 3, stats.ComponentsExpired, "RBC, PLATELETS and WHOLE_BLOOD are past expiry; PLASMA is not")
	assert.Zero(t, stats.Failed)

	entries := f.store.Entries()
	added := entries[before:]
	require.Len(t, added, 4)
	assert.Equal(t, ledger.ActionBloodExpired, added[0].Action)
	for _, e := range added[1:] {
		assert.Equal(t, ledger.ActionComponentExpired, e.Action)
		assert.Equal(t, ledger.ActorSystem, e.Actor)
		assert.Equal(t, u.UnitNumber, e.SubjectID)
	}
	assert.Equal(t, inventory.ComponentExpired, f.component(t, "RBC-1").Status)
	assert.Equal(t, inventory.ComponentAvailable, f.component(t, "PLASMA-1").Status)

	stats, err = f.sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.UnitsFound)
	assert.Zero(t, stats.ComponentsFound)
	assert.Len(t, f.store.Entries(), len(entries), "a second sweep writes nothing")
}

func TestSweepLeavesInFlightUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.collectTested(t, "A+", "RBC")

	// a TESTED unit has no edge to EXPIRED
	f.clock.Set(dayD.AddDate(0, 0, 60))
	stats, err := f.sweep.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.UnitsExpired)

	stored, err := f.units.GetUnit(ctx, u.UnitNumber)
	require.NoError(t, err)
	assert.Equal(t, inventory.UnitTested, stored.Status)
}
