package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InjectTraceID attaches a logger carrying a fresh traceId to ctx
func InjectTraceID(ctx context.Context) context.Context {
	id := uuid.New().String()
	logger := log.With().Str("traceId", id).Logger()
	return logger.WithContext(ctx)
}

// InjectRunID attaches runId to the context logger
func InjectRunID(ctx context.Context, runID string) context.Context {
	logger := log.Ctx(ctx).With().Str("runId", runID).Logger()
	return logger.WithContext(ctx)
}
