package logging

import (
	"github.com/rs/zerolog"
)

// Component derives a logger tagged with a component name and the
// ContextHook, so events logged with .Ctx(ctx) carry feature and session ids.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger().Hook(ContextHook{})
}
