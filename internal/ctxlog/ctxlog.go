// Package ctxlog carries the run's slog.Logger through context.Context so
// that steps, loaders and notifiers log with the run and step attributes
// of their caller.
package ctxlog

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// Attribute keys shared by every fetch log line.
const (
	RunIDKey  = "run_id"
	StepKey   = "step"
	WorkerKey = "worker"
)

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// With derives a logger from the one in ctx with args attached and returns
// it together with a context carrying it.
func With(ctx context.Context, args ...any) (context.Context, *slog.Logger) {
	logger := FromContext(ctx)
	if len(args) > 0 {
		logger = logger.With(args...)
	}
	return WithLogger(ctx, logger), logger
}

// ForRun attaches the run id.
func ForRun(ctx context.Context, runID string) (context.Context, *slog.Logger) {
	return With(ctx, RunIDKey, runID)
}

// ForStep attaches the worker and the step id a worker is executing.
func ForStep(ctx context.Context, workerID int, stepID string) (context.Context, *slog.Logger) {
	return With(ctx, WorkerKey, workerID, StepKey, stepID)
}
