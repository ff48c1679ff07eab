package contextutil

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	ownerKey  contextKey = "owner_id"
)

// LoggerFromContext extracts a logger from context if available, otherwise returns the default logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctxLogger := ctx.Value(loggerKey); ctxLogger != nil {
		if l, ok := ctxLogger.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// OwnerFromContext returns the requesting owner's ID, or "" when the request is anonymous.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey).(string)
	return owner
}

// WithOwner returns a copy of ctx carrying the owner ID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}
