package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

type fixedStock struct {
	levels []StockGauge
	err    error
}

func (s fixedStock) AvailableStock(context.Context) ([]StockGauge, error) {
	return s.levels, s.err
}

func newTestBusinessMetrics(t *testing.T, stock StockProvider) (*BusinessMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := newMeterProviderWithReader(reader, zap.NewNop())
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	bm, err := NewBusinessMetrics(BusinessMetricsConfig{Meter: mp.Meter("bloodchain-test"), Stock: stock})
	require.NoError(t, err)
	return bm, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestBusinessMetricsCounters(t *testing.T) {
	bm, reader := newTestBusinessMetrics(t, nil)
	ctx := context.Background()

	bm.RecordUnitCollected(ctx)
	bm.RecordUnitCollected(ctx)
	bm.RecordRequestTransition(ctx, "APPROVED")
	bm.RecordTransfusion(ctx, "MILD")
	bm.RecordExpired(ctx, "component", 3)
	bm.RecordExpired(ctx, "unit", 0)

	got := collect(t, reader)
	units, ok := got["bloodchain_units_collected_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, units.DataPoints, 1)
	assert.Equal(t, int64(2), units.DataPoints[0].Value)

	expired, ok := got["bloodchain_expired_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, expired.DataPoints, 1, "zero counts are not recorded")
	kind, _ := expired.DataPoints[0].Attributes.Value(AttrExpiredKind)
	assert.Equal(t, "component", kind.AsString())
	assert.Equal(t, int64(3), expired.DataPoints[0].Value)
}

func TestBusinessMetricsStockGauge(t *testing.T) {
	bm, reader := newTestBusinessMetrics(t, fixedStock{levels: []StockGauge{
		{ComponentType: "RBC", BloodGroup: "O+", Count: 4},
		{ComponentType: "PLASMA", BloodGroup: "A-", Count: 1},
	}})

	bm.CollectStock(context.Background())

	gauge, ok := collect(t, reader)["bloodchain_stock_available"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 2)
	for _, dp := range gauge.DataPoints {
		if dp.Attributes.Equals(ptrSet(AttrComponentType.String("RBC"), AttrBloodGroup.String("O+"))) {
			assert.Equal(t, int64(4), dp.Value)
		}
	}
}

func ptrSet(kvs ...attribute.KeyValue) *attribute.Set {
	s := attribute.NewSet(kvs...)
	return &s
}

func TestBusinessMetricsStockErrorIsLogged(t *testing.T) {
	bm, reader := newTestBusinessMetrics(t, fixedStock{err: errors.New("db gone")})
	bm.CollectStock(context.Background())
	_, ok := collect(t, reader)["bloodchain_stock_available"]
	assert.False(t, ok)
}

func TestBusinessMetricsPeriodicCollection(t *testing.T) {
	bm, reader := newTestBusinessMetrics(t, fixedStock{levels: []StockGauge{{ComponentType: "RBC", BloodGroup: "B+", Count: 2}}})
	bm.StartPeriodicCollection(context.Background(), time.Hour)
	defer bm.Stop()

	assert.Eventually(t, func() bool {
		_, ok := collect(t, reader)["bloodchain_stock_available"]
		return ok
	}, time.Second, 10*time.Millisecond, "collects once on start")
	bm.Stop()
}

func TestNilBusinessMetricsIsSafe(t *testing.T) {
	var bm *BusinessMetrics
	ctx := context.Background()
	bm.RecordUnitCollected(ctx)
	bm.RecordRequestTransition(ctx, "APPROVED")
	bm.RecordExpired(ctx, "unit", 1)
	bm.CollectStock(ctx)
	bm.StartPeriodicCollection(ctx, time.Second)
	bm.Stop()

	_, err := NewBusinessMetrics(BusinessMetricsConfig{})
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestNewMeterProviderDisabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.ForceFlush(context.Background()))
	assert.NoError(t, mp.Shutdown(context.Background()))
}
