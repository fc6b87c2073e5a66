package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook extracts feature and review_session from context and adds them to log events.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if name := GetFeature(ctx); name != "" {
		e.Str("feature", name)
	}

	if id := GetReviewSession(ctx); id != "" {
		e.Str("review_session", id)
	}
}
