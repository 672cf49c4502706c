package utils

import (
	"context"
	"log/slog"
)

// DebugEnabled reports whether logger emits debug records.
func DebugEnabled(logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.Enabled(context.Background(), slog.LevelDebug)
}

// AddIf appends name and *v to attrs when v is non-nil.
func AddIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name)
		attrs = append(attrs, *v)
	}

	return attrs
}
