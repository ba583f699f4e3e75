package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/scanner"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &noopTelemetry{}, tel)
	assert.NoError(t, tel.Close())
}

func TestNew_UnsupportedExporter(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		ServiceName:  "tmdbscan-test",
		ExporterType: "zipkin",
		SampleRate:   1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestInstruments_ObserveScan(t *testing.T) {
	tel, err := newInstruments(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	task := tmdb.Task{TitleID: "SCUS97399", Category: titleid.PhysicalLegacy}
	tel.BatchStarted(titleid.Target{Category: titleid.PhysicalLegacy, Prefix: "SCUS"}, 1)
	tel.ProbeStarted(task)
	tel.ProbeCompleted(scanner.Outcome{Task: task, Kind: scanner.Found, Status: 200, Duration: time.Millisecond})
	tel.BatchFinished(scanner.BatchStats{Category: titleid.PhysicalLegacy, Prefix: "SCUS", Found: 1})

	assert.NoError(t, tel.Close())
}

// sumOf returns the summed Int64 datapoints of the named counter.
func sumOf(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return 0, false
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total, true
		}
	}
	return 0, false
}

func TestInstruments_RecordToMeterProvider(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel, err := newInstruments(mp.Meter("tmdbscan-test"))
	require.NoError(t, err)
	tel.meterProvider = mp

	found := tmdb.Task{TitleID: "MRTC00001", Category: titleid.PhysicalDisc3Special}
	missing := tmdb.Task{TitleID: "MRTC00002", Category: titleid.PhysicalDisc3Special}
	for _, o := range []scanner.Outcome{
		{Task: found, Kind: scanner.Found, Status: 200, Duration: time.Millisecond},
		{Task: missing, Kind: scanner.NotFound, Status: 404, Duration: time.Millisecond},
	} {
		tel.ProbeStarted(o.Task)
		tel.ProbeCompleted(o)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	probes, ok := sumOf(rm, "tmdbscan.probes.total")
	require.True(t, ok)
	assert.Equal(t, int64(2), probes)

	discoveries, ok := sumOf(rm, "tmdbscan.discoveries.total")
	require.True(t, ok)
	assert.Equal(t, int64(1), discoveries)

	inflight, ok := sumOf(rm, "tmdbscan.probes.inflight")
	require.True(t, ok)
	assert.Zero(t, inflight)

	require.NoError(t, tel.Close())
	assert.Error(t, reader.Collect(ctx, &rm), "Close should shut the meter provider down")
}
