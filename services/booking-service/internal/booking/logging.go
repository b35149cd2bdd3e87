package booking

import (
	"context"
	"log/slog"

	"github.com/md-rashed-zaman/meetslot/libs/httpx"
)

func serviceLogger(ctx context.Context, base *slog.Logger, operation string, attrs ...any) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	pairs := []any{"operation", operation}
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		pairs = append(pairs, "request_id", id)
	}
	return base.With(append(pairs, attrs...)...)
}
