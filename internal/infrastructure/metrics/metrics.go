// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bloodchain"

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing, so services can run without a registry.
type Metrics struct {
	LedgerAppends        prometheus.Counter
	LedgerAppendDuration prometheus.Histogram
	LedgerVerifyFailures prometheus.Counter
	UnitsCollected       prometheus.Counter
	UnitsRejected        prometheus.Counter
	ComponentsSeparated  *prometheus.CounterVec
	Reservations         *prometheus.CounterVec
	RequestOutcomes      *prometheus.CounterVec
	Transfusions         *prometheus.CounterVec
	SweepExpired         *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	HTTPRequestDuration  *prometheus.HistogramVec

	business BusinessRecorder
}

// BusinessRecorder receives the domain counters alongside Prometheus, for
// push export over OTLP.
type BusinessRecorder interface {
	RecordUnitCollected(ctx context.Context)
	RecordRequestTransition(ctx context.Context, status string)
	RecordTransfusion(ctx context.Context, reaction string)
	RecordExpired(ctx context.Context, kind string, n int64)
}

// WithBusiness mirrors the domain counters to r and returns m.
func (m *Metrics) WithBusiness(r BusinessRecorder) *Metrics {
	if m != nil {
		m.business = r
	}
	return m
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LedgerAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name: "appends_total",
			Help: "Total number of ledger entries appended",
		}),
		LedgerAppendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name:    "append_duration_seconds",
			Help:    "Time spent locking the chain head, hashing and inserting an entry",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		LedgerVerifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger",
			Name: "verify_failures_total",
			Help: "Total number of chain verifications that found a broken link",
		}),
		UnitsCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "units",
			Name: "collected_total",
			Help: "Total number of blood units created from collections",
		}),
		UnitsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "units",
			Name: "rejected_total",
			Help: "Total number of blood units rejected after screening",
		}),
		ComponentsSeparated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "components",
			Name: "separated_total",
			Help: "Total number of components derived, by type",
		}, []string{"type"}),
		Reservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "components",
			Name: "reservations_total",
			Help: "Reservation attempts by outcome (won, lost)",
		}, []string{"outcome"}),
		RequestOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "requests",
			Name: "transitions_total",
			Help: "Blood request transitions by target status",
		}, []string{"status"}),
		Transfusions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "usage",
			Name: "transfusions_total",
			Help: "Recorded transfusions by reaction level",
		}, []string{"reaction"}),
		SweepExpired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweep",
			Name: "expired_total",
			Help: "Entities moved to EXPIRED by the sweep, by kind (unit, component)",
		}, []string{"kind"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "sweep",
			Name:    "duration_seconds",
			Help:    "Duration of expiry sweep runs",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ops_http",
			Name:    "request_duration_seconds",
			Help:    "Ops HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ObserveLedgerAppend records one append that started at start.
func (m *Metrics) ObserveLedgerAppend(start time.Time) {
	if m == nil {
		return
	}
	m.LedgerAppends.Inc()
	m.LedgerAppendDuration.Observe(time.Since(start).Seconds())
}

// IncrementVerifyFailures counts a failed chain verification.
func (m *Metrics) IncrementVerifyFailures() {
	if m == nil {
		return
	}
	m.LedgerVerifyFailures.Inc()
}

// IncrementUnitsCollected counts a new unit.
func (m *Metrics) IncrementUnitsCollected() {
	if m == nil {
		return
	}
	m.UnitsCollected.Inc()
	if m.business != nil {
		m.business.RecordUnitCollected(context.Background())
	}
}

// IncrementUnitsRejected counts a unit rejected by screening.
func (m *Metrics) IncrementUnitsRejected() {
	if m == nil {
		return
	}
	m.UnitsRejected.Inc()
}

// AddComponentsSeparated counts derived components of a type.
func (m *Metrics) AddComponentsSeparated(componentType string, n int) {
	if m == nil {
		return
	}
	m.ComponentsSeparated.WithLabelValues(componentType).Add(float64(n))
}

// IncrementReservation counts a reservation attempt; won is false when a
// concurrent approval took the component first.
func (m *Metrics) IncrementReservation(won bool) {
	if m == nil {
		return
	}
	outcome := "lost"
	if won {
		outcome = "won"
	}
	m.Reservations.WithLabelValues(outcome).Inc()
}

// IncrementRequestTransition counts a request reaching status.
func (m *Metrics) IncrementRequestTransition(status string) {
	if m == nil {
		return
	}
	m.RequestOutcomes.WithLabelValues(status).Inc()
	if m.business != nil {
		m.business.RecordRequestTransition(context.Background(), status)
	}
}

// IncrementTransfusion counts a recorded transfusion.
func (m *Metrics) IncrementTransfusion(reaction string) {
	if m == nil {
		return
	}
	m.Transfusions.WithLabelValues(reaction).Inc()
	if m.business != nil {
		m.business.RecordTransfusion(context.Background(), reaction)
	}
}

// ObserveSweep records one sweep run.
func (m *Metrics) ObserveSweep(start time.Time, units, components int) {
	if m == nil {
		return
	}
	m.SweepExpired.WithLabelValues("unit").Add(float64(units))
	m.SweepExpired.WithLabelValues("component").Add(float64(components))
	m.SweepDuration.Observe(time.Since(start).Seconds())
	if m.business != nil {
		ctx := context.Background()
		m.business.RecordExpired(ctx, "unit", int64(units))
		m.business.RecordExpired(ctx, "component", int64(components))
	}
}

// ObserveHTTP records one ops request.
func (m *Metrics) ObserveHTTP(method, route, status string, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}
