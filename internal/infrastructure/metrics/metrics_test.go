package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveLedgerAppend(time.Now())
	m.ObserveLedgerAppend(time.Now())
	m.AddComponentsSeparated("RBC", 1)
	m.AddComponentsSeparated("PLASMA", 2)
	m.IncrementReservation(true)
	m.IncrementReservation(false)
	m.ObserveSweep(time.Now(), 1, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LedgerAppends))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ComponentsSeparated.WithLabelValues("PLASMA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues("lost")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepExpired.WithLabelValues("component")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "bloodchain_ledger_appends_total")
	assert.Contains(t, names, "bloodchain_sweep_duration_seconds")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLedgerAppend(time.Now())
		m.IncrementReservation(true)
		m.ObserveSweep(time.Now(), 0, 0)
		m.ObserveHTTP("GET", "/health", "200", time.Now())
	})
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

type recordedBusiness struct {
	collected   int
	transitions []string
	reactions   []string
	expired     map[string]int64
}

func (r *recordedBusiness) RecordUnitCollected(context.Context) { r.collected++ }

func (r *recordedBusiness) RecordRequestTransition(_ context.Context, status string) {
	r.transitions = append(r.transitions, status)
}

func (r *recordedBusiness) RecordTransfusion(_ context.Context, reaction string) {
	r.reactions = append(r.reactions, reaction)
}

func (r *recordedBusiness) RecordExpired(_ context.Context, kind string, n int64) {
	if r.expired == nil {
		r.expired = map[string]int64{}
	}
	r.expired[kind] += n
}

func TestMetricsMirrorToBusinessRecorder(t *testing.T) {
	rec := &recordedBusiness{}
	m := New(prometheus.NewRegistry()).WithBusiness(rec)

	m.IncrementUnitsCollected()
	m.IncrementRequestTransition("APPROVED")
	m.IncrementTransfusion("NONE")
	m.ObserveSweep(time.Now(), 2, 5)

	assert.Equal(t, 1, rec.collected)
	assert.Equal(t, []string{"APPROVED"}, rec.transitions)
	assert.Equal(t, []string{"NONE"}, rec.reactions)
	assert.Equal(t, map[string]int64{"unit": 2, "component": 5}, rec.expired)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsCollected), "Prometheus still records")

	var nilMetrics *Metrics
	assert.Nil(t, nilMetrics.WithBusiness(rec))
}
