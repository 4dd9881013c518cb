package database

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/logger"
)

const tracerName = "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/database"

var slowQueryCfg struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowQueryLogging configures slow query detection. Queries exceeding the
// threshold are logged as warnings with operation name, SQL statement, and
// duration. A zero threshold disables it. A nil logger means the
// request-scoped logger from the query's context is used.
func SetSlowQueryLogging(threshold time.Duration, l *slog.Logger) {
	slowQueryCfg.mu.Lock()
	defer slowQueryCfg.mu.Unlock()
	slowQueryCfg.threshold = threshold
	slowQueryCfg.logger = l
}

func getSlowQueryConfig() (time.Duration, *slog.Logger) {
	slowQueryCfg.mu.RLock()
	defer slowQueryCfg.mu.RUnlock()
	return slowQueryCfg.threshold, slowQueryCfg.logger
}

// TraceQuery starts a span for a database operation. The returned function
// must be called when the operation completes (typically via defer):
//
//	ctx, end := database.TraceQuery(ctx, "GetContact", "SELECT ... FROM contacts WHERE id = $1 AND user_id = $2")
//	defer func() { end(err) }()
//
// Missing rows, whether pgx.ErrNoRows or a not-found AppError, are not
// recorded as span errors.
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		if err != nil && !IsNoRows(err) && !errors.Is(err, apperrors.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		threshold, l := getSlowQueryConfig()
		if threshold <= 0 {
			return
		}
		elapsed := time.Since(start)
		if elapsed < threshold {
			return
		}
		if l == nil {
			l = logger.FromContext(ctx)
		}
		attrs := []any{
			slog.String("operation", operation),
			slog.String("statement", statement),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		l.WarnContext(ctx, "slow query detected", attrs...)
	}
}
