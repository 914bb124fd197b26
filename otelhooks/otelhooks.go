// Package otelhooks records strand task runs as OpenTelemetry spans.
//
// Each task run becomes one span named "strand.<combinator>.task", started
// from the OnStart hook and ended from OnFinish with the run's own timestamps.
// Failed runs carry the recorded error and an Error status.
package otelhooks

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bpradana/strand"
)

const instrumentationName = "github.com/bpradana/strand"

// Option configures the tracing hooks.
type Option func(*config)

type config struct {
	provider trace.TracerProvider
	attrs    []attribute.KeyValue
}

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		if tp != nil {
			cfg.provider = tp
		}
	}
}

// WithAttributes adds attrs to every span.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(cfg *config) {
		cfg.attrs = append(cfg.attrs, attrs...)
	}
}

type spanKey struct {
	runID string
	index int
}

// New returns hooks that trace every task run of the calls they are
// attached to.
func New(opts ...Option) strand.Hooks {
	cfg := config{provider: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&cfg)
	}
	tracer := cfg.provider.Tracer(instrumentationName)

	var spans sync.Map

	return strand.Hooks{
		OnStart: func(ctx context.Context, event strand.TaskEvent) {
			meta := event.Metadata
			attrs := append([]attribute.KeyValue{
				attribute.String("strand.run_id", meta.RunID),
				attribute.String("strand.combinator", meta.Combinator),
				attribute.Int("strand.task_index", meta.Index),
				attribute.Int("strand.concurrency", event.Metrics.Concurrency),
			}, cfg.attrs...)

			_, span := tracer.Start(ctx, "strand."+meta.Combinator+".task",
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithTimestamp(event.Metrics.StartedAt),
				trace.WithAttributes(attrs...),
			)
			spans.Store(spanKey{runID: meta.RunID, index: meta.Index}, span)
		},
		OnFinish: func(_ context.Context, event strand.TaskEvent) {
			value, ok := spans.LoadAndDelete(spanKey{runID: event.Metadata.RunID, index: event.Metadata.Index})
			if !ok {
				return
			}
			span := value.(trace.Span)
			span.SetAttributes(attribute.String("strand.status", string(event.Metrics.Status)))
			if err := event.Metrics.Error; err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End(trace.WithTimestamp(event.Metrics.CompletedAt))
		},
	}
}
