package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is one step more verbose than slog.LevelDebug, used for
// per-segment tracing (wire contents, substate transitions).
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogAttrs logs through l if non-nil, and is a no-op otherwise. Every
// ctcp logger method funnels through this so a zero-value logger never
// needs a nil check at call sites.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
