package liteservenv

import (
	"log/slog"

	"github.com/giantswarm/liteservenv/internal/core"
)

// SetLogger replaces the logger used by the manager, its instances and
// handles launched without their own logger. The logger is used as given;
// no attributes are added.
//
// A nil l resets to slog.Default() with a "component" attribute. Call
// SetLogger(nil) after slog.SetDefault to pick up the new default.
//
// Safe for concurrent use. For a strict happens-before guarantee call it
// before starting goroutines that use the package, for example in TestMain.
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
