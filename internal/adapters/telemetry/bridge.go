package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/forge/internal/core/ports"
)

// LogBridge implements sdktrace.SpanProcessor, reporting finished spans
// through the logger so pipeline timing is visible without an external
// trace backend.
type LogBridge struct {
	logger ports.Logger
}

// NewLogBridge creates a new LogBridge.
func NewLogBridge(logger ports.Logger) *LogBridge {
	return &LogBridge{logger: logger}
}

// OnStart does nothing; spans are reported when they end.
func (b *LogBridge) OnStart(_ context.Context, _ sdktrace.ReadWriteSpan) {}

// OnEnd reports the finished span with its duration.
func (b *LogBridge) OnEnd(s sdktrace.ReadOnlySpan) {
	elapsed := s.EndTime().Sub(s.StartTime()).Round(time.Millisecond)
	b.logger.Info(fmt.Sprintf("%s finished in %s", s.Name(), elapsed))
}

// Shutdown implements sdktrace.SpanProcessor.
func (b *LogBridge) Shutdown(_ context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (b *LogBridge) ForceFlush(_ context.Context) error { return nil }

// Setup configures the global OpenTelemetry SDK with the log bridge so that
// all started spans are reported through the logger.
func Setup(logger ports.Logger) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewLogBridge(logger)),
	)
	otel.SetTracerProvider(tp)
}
