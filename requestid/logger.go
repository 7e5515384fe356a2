// requestid/logger.go
package requestid

import (
	"context"

	"go.uber.org/zap"
)

// Logger returns a logger with the correlation id added as a field.
// If no id is in the context, returns the original logger.
func Logger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return nil
	}
	id := Get(ctx)
	if id == "" {
		return logger
	}
	return logger.With(zap.String("request_id", id))
}

// Field returns a zap field with the correlation id, or a no-op field if
// the context carries none.
func Field(ctx context.Context) zap.Field {
	id := Get(ctx)
	if id == "" {
		return zap.Skip()
	}
	return zap.String("request_id", id)
}
