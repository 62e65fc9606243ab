package logger

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// New creates a JSON logger on stdout at the given level. Unknown or empty
// levels fall back to info.
func New(level string) zerolog.Logger {
	return NewWithWriter(os.Stdout).Level(parseLevel(level))
}

// NewWithWriter creates a logger writing JSON lines to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext stores log in ctx.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the logger stored in ctx, or fallback when there is none.
// Like zerolog.Ctx it returns a pointer, so callers can chain level methods.
func FromContext(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if log, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return &log
	}
	return &fallback
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
