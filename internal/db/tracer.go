package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/refledger/internal/metrics"
)

const namePrefix = "-- name: "

type traceKey struct{}

type traceStart struct {
	name  string
	start time.Time
}

// queryTracer times queries that carry a "-- name: X" header, so the label set stays bounded
type queryTracer struct{}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	name := queryName(data.SQL)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceStart{name: name, start: time.Now()})
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	ts, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}

	result := "ok"
	if data.Err != nil {
		result = "error"
	}
	metrics.DBQueryDuration.WithLabelValues(ts.name, result).Observe(time.Since(ts.start).Seconds())
}

// queryName returns X from a leading "-- name: X" line, or empty string
func queryName(sql string) string {
	sql = strings.TrimSpace(sql)
	if !strings.HasPrefix(sql, namePrefix) {
		return ""
	}

	line, _, _ := strings.Cut(sql[len(namePrefix):], "\n")
	name, _, _ := strings.Cut(strings.TrimSpace(line), " ")
	return name
}
