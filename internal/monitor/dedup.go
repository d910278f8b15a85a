package monitor

import (
	"time"

	"github.com/blue-kelp-bio/reactormon/internal/models"
)

const (
	// DefaultDedupWindow is how long a matching unacknowledged alert
	// suppresses repeats.
	DefaultDedupWindow = 5 * time.Minute

	// DefaultDedupLookback is how many recent unacknowledged alerts are
	// inspected per reactor when checking for duplicates.
	DefaultDedupLookback = 10
)

// Guard suppresses repeat alerts for a violation that is already known.
// A violation is a duplicate when the reactor has an unacknowledged alert
// for the same field and threshold kind created within the window. Only
// the most recent Lookback unacknowledged alerts are considered, so a very
// old lingering alert does not suppress forever.
type Guard struct {
	Window   time.Duration
	Lookback int
}

// NewGuard returns a guard with the given parameters; non-positive values
// fall back to the defaults.
func NewGuard(window time.Duration, lookback int) *Guard {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if lookback <= 0 {
		lookback = DefaultDedupLookback
	}
	return &Guard{Window: window, Lookback: lookback}
}

// IsDuplicate reports whether a violation of (field, kind) matches one of
// the recent unacknowledged alerts within the window. The recent slice is
// expected newest first, as ListRecentUnacknowledged returns it; entries
// past the lookback bound are ignored.
func (g *Guard) IsDuplicate(recent []*models.Alert, field string, kind models.ThresholdKind, now time.Time) bool {
	for i, a := range recent {
		if i >= g.Lookback {
			break
		}
		if a.FieldName != field || a.ThresholdType != kind {
			continue
		}
		if now.Sub(a.CreatedAt) < g.Window {
			return true
		}
	}
	return false
}
