package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(key)
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	inst, err := NewInstrumentsFrom(mp, tp)
	require.NoError(t, err)

	ctx := context.Background()
	inst.CycleFinished(ctx, "COMPLETED")
	inst.CycleFinished(ctx, "COMPLETED")
	inst.CycleFinished(ctx, "FAILED")
	inst.RecordsStored(ctx, "ModelA", 3)
	inst.RecordsStored(ctx, "ModelA", 2)

	_, end := inst.StartStage(ctx, "fetch")
	end(errors.New("portal down"))
	_, end = inst.StartStage(ctx, "store")
	end(nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Equal(t, map[string]int64{"COMPLETED": 2, "FAILED": 1},
		sumByAttr(t, rm, "modelerror_cycles_total", "status"))
	require.Equal(t, map[string]int64{"ModelA": 5},
		sumByAttr(t, rm, "modelerror_records_stored_total", "family"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, "fetch", ended[0].Name())
	require.Len(t, ended[0].Events(), 1)
	require.Equal(t, "store", ended[1].Name())
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tel, err := Setup(context.Background(), config.TelemetryConfig{}, logger)
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}
