package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/immahesh111/modelerror-dashboard"

// Instruments records cycle outcomes and stage spans.
type Instruments struct {
	cycles  metric.Int64Counter
	records metric.Int64Counter
	tracer  trace.Tracer
}

// NewInstruments binds to the global providers.
func NewInstruments() (*Instruments, error) {
	return NewInstrumentsFrom(otel.GetMeterProvider(), otel.GetTracerProvider())
}

func NewInstrumentsFrom(mp metric.MeterProvider, tp trace.TracerProvider) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)
	cycles, err := meter.Int64Counter("modelerror_cycles_total",
		metric.WithDescription("Scheduler cycles by final status"))
	if err != nil {
		return nil, err
	}
	records, err := meter.Int64Counter("modelerror_records_stored_total",
		metric.WithDescription("Records written to model collections"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		cycles:  cycles,
		records: records,
		tracer:  tp.Tracer(instrumentationName),
	}, nil
}

func (i *Instruments) CycleFinished(ctx context.Context, status string) {
	i.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (i *Instruments) RecordsStored(ctx context.Context, family string, n int) {
	i.records.Add(ctx, int64(n), metric.WithAttributes(attribute.String("family", family)))
}

// StartStage opens a span for one pipeline stage. end records err, if any.
func (i *Instruments) StartStage(ctx context.Context, stage string) (context.Context, func(err error)) {
	ctx, span := i.tracer.Start(ctx, stage)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
