// Package observability provides structured logging and tracing helpers
// shared by every subsystem in the runtime.
package observability

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var (
	baseOnce sync.Once
	base     zerolog.Logger
)

func baseLogger() zerolog.Logger {
	baseOnce.Do(func() {
		level := zerolog.InfoLevel
		if lv, err := zerolog.ParseLevel(os.Getenv("AGENTD_LOG_LEVEL")); err == nil {
			level = lv
		}
		base = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	})
	return base
}

// SetOutput redirects the base logger, primarily for tests and for the
// configured logs path of config.Config.LogsPath.
func SetOutput(w *os.File) {
	base = baseLogger().Output(w)
}

// LoggerWithTrace returns a logger enriched with the trace/span IDs carried
// on ctx, if any. Mirrors the teacher's agent/otel.go helper so every
// subsystem logs the same way regardless of whether tracing is enabled.
func LoggerWithTrace(ctx context.Context) zerolog.Logger {
	l := baseLogger()
	if ctx == nil {
		return l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// RedactJSON is a best-effort redaction hook for logging raw tool
// arguments. It returns raw unchanged, and nothing in this module calls it.
func RedactJSON(raw []byte) []byte { return raw }
