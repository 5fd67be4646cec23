package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	t.Run("keeps the local calendar day", func(t *testing.T) {
		early := time.Date(2026, 3, 2, 2, 0, 0, 0, ist)
		day := StartOfDay(early)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), day)
		assert.Equal(t, "2026-03-02", day.Format("2006-01-02"))
	})

	t.Run("survives a UTC round trip", func(t *testing.T) {
		day := StartOfDay(time.Date(2026, 3, 2, 23, 30, 0, 0, ist))
		assert.Equal(t, day.Format("2006-01-02"), day.UTC().Format("2006-01-02"))
	})
}

func TestZonedClock(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	assert.Equal(t, ist, NewZonedClock(ist).Now().Location())
	assert.Equal(t, time.UTC, NewZonedClock(nil).Now().Location())
	assert.Equal(t, time.UTC, ZonedClock{}.Now().Location())
}
