package feature

import (
	"sync"
	"time"
)

// Usage categories under which handler processing time is attributed.
const (
	CategoryLoad              = "load"
	CategoryUnload            = "unload"
	CategoryRefresh           = "refresh"
	CategoryPlayerJoin        = "player-join"
	CategoryPlayerQuit        = "player-quit"
	CategoryWorldSwitch       = "world-switch"
	CategoryServerSwitch      = "server-switch"
	CategoryCommandPreprocess = "command-preprocess"
	CategoryRawPacketOut      = "raw-packet-out"
	CategoryPlayerInfoPacket  = "packet-player-info"
	CategoryAntiOverride      = "anti-override"
	CategoryVanishChange      = "vanish-change"
	CategoryGameModeChange    = "gamemode-change"
	CategoryTeamPoll          = "team-poll"
)

// UsageTracker accumulates wall time spent in feature handlers per usage
// category. It is written from the logic thread and the poll goroutine and may
// be read at any time for diagnostics.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[string]map[string]time.Duration
}

// NewUsageTracker creates an empty usage tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: map[string]map[string]time.Duration{}}
}

// Add attributes d to the given feature under category.
func (t *UsageTracker) Add(feature, category string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byCategory, ok := t.usage[feature]
	if !ok {
		byCategory = map[string]time.Duration{}
		t.usage[feature] = byCategory
	}
	byCategory[category] += d
}

// Usage returns a copy of the time attributed to a feature, keyed by category.
func (t *UsageTracker) Usage(feature string) map[string]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]time.Duration, len(t.usage[feature]))
	for category, d := range t.usage[feature] {
		out[category] = d
	}
	return out
}

// Total returns the combined time attributed to a feature across categories.
func (t *UsageTracker) Total(feature string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, d := range t.usage[feature] {
		total += d
	}
	return total
}

// Reset clears all recorded usage.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage = map[string]map[string]time.Duration{}
}
