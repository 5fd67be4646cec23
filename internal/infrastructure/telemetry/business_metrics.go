package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultStockCollectInterval is how often stock gauges are refreshed when
// no interval is given.
const DefaultStockCollectInterval = 5 * time.Minute

// ErrMeterNil is returned by NewBusinessMetrics without a meter.
var ErrMeterNil = errors.New("business metrics: meter cannot be nil")

// StockGauge is the available count of one component type and blood group.
type StockGauge struct {
	ComponentType string
	BloodGroup    string
	Count         int64
}

// StockProvider reports current available stock for the gauges.
type StockProvider interface {
	AvailableStock(ctx context.Context) ([]StockGauge, error)
}

// BusinessMetrics pushes the blood bank's domain counters and stock gauges
// through OpenTelemetry. A nil *BusinessMetrics records nothing.
type BusinessMetrics struct {
	logger *zap.Logger

	unitsCollected     *Counter
	requestTransitions *Counter
	transfusions       *Counter
	expired            *Counter
	stockAvailable     *Gauge

	stock       StockProvider
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// BusinessMetricsConfig configures NewBusinessMetrics.
type BusinessMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
	Stock  StockProvider
}

// NewBusinessMetrics creates the instruments on cfg.Meter.
func NewBusinessMetrics(cfg BusinessMetricsConfig) (*BusinessMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bm := &BusinessMetrics{logger: logger, stock: cfg.Stock, stopChan: make(chan struct{})}

	var err error
	if bm.unitsCollected, err = NewCounter(cfg.Meter, "bloodchain_units_collected_total",
		"Blood units created from collections", "{units}"); err != nil {
		return nil, err
	}
	if bm.requestTransitions, err = NewCounter(cfg.Meter, "bloodchain_request_transitions_total",
		"Blood request transitions by target status", "{transitions}"); err != nil {
		return nil, err
	}
	if bm.transfusions, err = NewCounter(cfg.Meter, "bloodchain_transfusions_total",
		"Recorded transfusions by reaction level", "{transfusions}"); err != nil {
		return nil, err
	}
	if bm.expired, err = NewCounter(cfg.Meter, "bloodchain_expired_total",
		"Units and components moved to EXPIRED by the sweep", "{items}"); err != nil {
		return nil, err
	}
	if bm.stockAvailable, err = NewGauge(cfg.Meter, "bloodchain_stock_available",
		"Allocatable components by type and blood group", "{components}"); err != nil {
		return nil, err
	}
	return bm, nil
}

// RecordUnitCollected counts one collected unit.
func (bm *BusinessMetrics) RecordUnitCollected(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.unitsCollected.Inc(ctx)
}

// RecordRequestTransition counts a request reaching status.
func (bm *BusinessMetrics) RecordRequestTransition(ctx context.Context, status string) {
	if bm == nil {
		return
	}
	bm.requestTransitions.Inc(ctx, AttrRequestStatus.String(status))
}

// RecordTransfusion counts one transfusion.
func (bm *BusinessMetrics) RecordTransfusion(ctx context.Context, reaction string) {
	if bm == nil {
		return
	}
	bm.transfusions.Inc(ctx, AttrReaction.String(reaction))
}

// RecordExpired counts n expirations of kind (unit or component).
func (bm *BusinessMetrics) RecordExpired(ctx context.Context, kind string, n int64) {
	if bm == nil || n <= 0 {
		return
	}
	bm.expired.Add(ctx, n, AttrExpiredKind.String(kind))
}

// CollectStock refreshes the stock gauges once.
func (bm *BusinessMetrics) CollectStock(ctx context.Context) {
	if bm == nil || bm.stock == nil {
		return
	}
	levels, err := bm.stock.AvailableStock(ctx)
	if err != nil {
		bm.logger.Warn("Failed to read stock levels for metrics", zap.Error(err))
		return
	}
	for _, l := range levels {
		bm.stockAvailable.Record(ctx, l.Count,
			AttrComponentType.String(l.ComponentType),
			AttrBloodGroup.String(l.BloodGroup))
	}
}

// StartPeriodicCollection refreshes the stock gauges every interval until
// Stop is called or ctx ends. It does not block and only starts once.
func (bm *BusinessMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if bm == nil {
		return
	}
	bm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = DefaultStockCollectInterval
		}
		go bm.runPeriodicCollection(ctx, interval)
	})
}

func (bm *BusinessMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bm.CollectStock(ctx)
	for {
		select {
		case <-bm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			bm.CollectStock(ctx)
		}
	}
}

// Stop ends periodic collection.
func (bm *BusinessMetrics) Stop() {
	if bm == nil {
		return
	}
	bm.stopOnce.Do(func() { close(bm.stopChan) })
}
