// Package observability provides OpenTelemetry tracing for tabular
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies tabular spans
const InstrumentationName = "github.com/ajitpratap0/tabular"

// TableTracer provides table-specific tracing utilities
type TableTracer struct {
	table  string
	tracer trace.Tracer
}

// NewTableTracer creates a tracer for one table. A nil provider means the
// global provider at call time.
func NewTableTracer(table string, tp trace.TracerProvider) *TableTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TableTracer{
		table:  table,
		tracer: tp.Tracer(InstrumentationName),
	}
}

// Span wraps a trace.Span with the error handling the accessor needs
type Span struct {
	span trace.Span
}

// StartSpan starts a span named "<table>.<operation>" carrying the SQL text.
func (t *TableTracer) StartSpan(ctx context.Context, operation, sql string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, t.table+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
			attribute.String("db.sql.table", t.table),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", sql),
		),
	)
	return ctx, &Span{span: span}
}

// SetAttribute adds an int64 attribute to the span
func (s *Span) SetAttribute(key string, value int64) {
	s.span.SetAttributes(attribute.Int64(key, value))
}

// End records err, if any, and ends the span.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
