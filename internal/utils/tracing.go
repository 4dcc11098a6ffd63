package utils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider creates a tracer provider that reports finished spans to logger
func NewTracerProvider(logger *logrus.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&logProcessor{logger: logger}),
	)
}

// logProcessor logs every finished span at debug level
type logProcessor struct {
	logger *logrus.Logger
}

func (p *logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !p.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	fields := logrus.Fields{
		"span":        s.Name(),
		"trace_id":    s.SpanContext().TraceID().String(),
		"duration_ms": s.EndTime().Sub(s.StartTime()).Round(time.Millisecond).Milliseconds(),
		"status":      s.Status().Code.String(),
	}
	for _, attr := range s.Attributes() {
		fields[string(attr.Key)] = attr.Value.Emit()
	}
	p.logger.WithFields(fields).Debug("Span finished")
}

func (p *logProcessor) Shutdown(context.Context) error { return nil }

func (p *logProcessor) ForceFlush(context.Context) error { return nil }
