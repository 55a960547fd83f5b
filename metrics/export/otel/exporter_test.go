package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/geochat/tokenauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	counters map[tokenauth.MetricID]uint64
	latency  []uint64
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() tokenauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := tokenauth.MetricsSnapshot{
		Counters:   make(map[tokenauth.MetricID]uint64, len(f.counters)),
		Histograms: map[tokenauth.MetricID][]uint64{},
	}
	for k, v := range f.counters {
		out.Counters[k] = v
	}
	if f.latency != nil {
		out.Histograms[tokenauth.MetricValidateLatency] = append([]uint64(nil), f.latency...)
	}
	return out
}

func (f *fakeSource) NotifyDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}
	return values
}

func TestExporterCollects(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		counters: map[tokenauth.MetricID]uint64{tokenauth.MetricLoginSuccess: 3},
		latency:  []uint64{1, 1, 1, 1, 1, 1, 1, 1},
		dropped:  1,
	}

	exp, err := NewExporter(provider.Meter("tokenauth-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	values := collect(t, reader)
	assert.Equal(t, int64(3), values["tokenauth_login_success_total"])
	assert.Equal(t, int64(1), values["tokenauth_notify_dropped_total"])
	assert.Equal(t, int64(1), values["tokenauth_validate_latency_seconds_bucket_le_0_00005"])
	assert.Equal(t, int64(8), values["tokenauth_validate_latency_seconds_bucket_le_inf"])
	assert.Equal(t, int64(8), values["tokenauth_validate_latency_seconds_count"])
	assert.NotContains(t, values, "tokenauth_logout_total")
}

func TestExporterRejectsNil(t *testing.T) {
	_, provider := newReader(t)

	_, err := NewExporter(provider.Meter("tokenauth-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewExporter(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestExporterCloseStopsObserving(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{counters: map[tokenauth.MetricID]uint64{tokenauth.MetricLogout: 5}}

	exp, err := NewExporter(provider.Meter("tokenauth-test"), src)
	require.NoError(t, err)
	require.NoError(t, exp.Close())

	values := collect(t, reader)
	assert.NotContains(t, values, "tokenauth_logout_total")

	var nilExporter *Exporter
	assert.NoError(t, nilExporter.Close())
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{counters: map[tokenauth.MetricID]uint64{tokenauth.MetricLoginSuccess: 1}}

	exp, err := NewExporter(provider.Meter("tokenauth-test"), src)
	require.NoError(t, err)
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counters[tokenauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
