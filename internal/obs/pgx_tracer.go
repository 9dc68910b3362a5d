package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxStatementLen = 300
	instrumentation = "backoffice/db"
)

type pgxQueryKey struct{}

type pgxQuery struct {
	span  trace.Span
	op    string
	start time.Time
}

// PGXTracer implements pgx.QueryTracer. Each statement gets a span named
// after its SQL verb, so order writes show up as pgx.insert / pgx.update, and
// its duration lands in the db.client.operation.duration histogram.
type PGXTracer struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewPGXTracer builds a tracer. Nil providers fall back to the globals.
func NewPGXTracer(tp trace.TracerProvider, mp metric.MeterProvider) *PGXTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	hist, err := mp.Meter(instrumentation).Float64Histogram(
		"db.client.operation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of PostgreSQL statements."),
	)
	if err != nil {
		otel.Handle(err)
	}
	return &PGXTracer{tracer: tp.Tracer(instrumentation), duration: hist}
}

// TraceQueryStart starts a span for the SQL statement.
func (t *PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := sqlOperation(data.SQL)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", truncateSQL(data.SQL)),
		attribute.Int("db.args", len(data.Args)),
	}
	name := "pgx.query"
	if op != "" {
		attrs = append(attrs, attribute.String("db.operation", op))
		name = "pgx." + strings.ToLower(op)
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	return context.WithValue(ctx, pgxQueryKey{}, &pgxQuery{span: span, op: op, start: time.Now()})
}

// TraceQueryEnd records the command tag, error and duration, then ends the span.
func (t *PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	q, ok := ctx.Value(pgxQueryKey{}).(*pgxQuery)
	if !ok {
		return
	}
	defer q.span.End()

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
		q.span.RecordError(data.Err)
		q.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		q.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	if t.duration != nil {
		t.duration.Record(ctx, time.Since(q.start).Seconds(), metric.WithAttributes(
			attribute.String("db.operation", q.op),
			attribute.String("outcome", outcome),
		))
	}
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > maxStatementLen {
		return trimmed[:maxStatementLen] + "..."
	}
	return trimmed
}
