package feature

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/tablist/tab/format"
	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// isolationPolicy decides, per usage category, whether a handler error is
// reported and dispatch continues with the next feature, or aborts the
// remaining handlers for the event. Only raw outbound packet observation
// isolates failures: a feature that cannot translate a packet must not stop
// the others from reconciling it, while logic events keep strict ordering and
// accurate cost attribution by failing fast.
var isolationPolicy = map[string]bool{
	CategoryRawPacketOut: true,
}

// Manager is the dispatch core routing typed events to registered features in
// registration order and accounting processing time per feature.
type Manager struct {
	log      *slog.Logger
	reporter Reporter
	cpu      *UsageTracker

	mu       sync.Mutex
	features map[string]Feature
	order    []string
	snapshot atomic.Value // []Feature
}

// NewManager creates a dispatch core logging through log. Recoverable handler
// errors are passed to reporter; a nil reporter logs them through log instead.
func NewManager(log *slog.Logger, reporter Reporter) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if reporter == nil {
		reporter = logReporter{log: log.With("subsystem", "feature.dispatch")}
	}
	m := &Manager{
		log:      log,
		reporter: reporter,
		cpu:      NewUsageTracker(),
		features: map[string]Feature{},
	}
	m.snapshot.Store([]Feature{})
	return m
}

type logReporter struct {
	log *slog.Logger
}

func (r logReporter) Report(err error) {
	r.log.Error("Recoverable handler error.", "error", err)
}

// Register adds a feature under the given name and rebuilds the dispatch
// snapshot. Registering under an existing name replaces the feature in place,
// keeping its original dispatch position. A missing name or feature is a
// no-op.
func (m *Manager) Register(name string, f Feature) {
	if name == "" || f == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.features[name]; !ok {
		m.order = append(m.order, name)
	}
	m.features[name] = f
	m.rebuildLocked()
}

// Unregister removes the feature registered under name and rebuilds the
// dispatch snapshot. Effective from the next dispatched event.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.features[name]; !ok {
		return
	}
	delete(m.features, name)
	for i, existing := range m.order {
		if existing == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.rebuildLocked()
}

func (m *Manager) rebuildLocked() {
	snapshot := make([]Feature, 0, len(m.order))
	for _, name := range m.order {
		snapshot = append(snapshot, m.features[name])
	}
	m.snapshot.Store(snapshot)
}

// Enabled reports if a feature is registered under name.
func (m *Manager) Enabled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.features[name]
	return ok
}

// Feature returns the feature registered under name.
func (m *Manager) Feature(name string) (Feature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.features[name]
	return f, ok
}

// Usage returns the tracker accumulating handler processing time.
func (m *Manager) Usage() *UsageTracker {
	return m.cpu
}

func (m *Manager) load() []Feature {
	return m.snapshot.Load().([]Feature)
}

// measure runs fn and attributes its wall time to f under category. The
// returned stop/err pair follows the isolation policy of the category.
func (m *Manager) measure(f Feature, category string, fn func() error) (stop bool, err error) {
	start := time.Now()
	err = fn()
	m.cpu.Add(f.Name(), category, time.Since(start))
	if err == nil {
		return false, nil
	}
	wrapped := fmt.Errorf("feature %v: %v: %w", f.Name(), category, err)
	if isolationPolicy[category] {
		m.reporter.Report(wrapped)
		return false, nil
	}
	return true, wrapped
}

// Load invokes Load on every loadable feature in registration order. The
// first failing feature aborts the remaining ones.
func (m *Manager) Load() error {
	for _, f := range m.load() {
		l, ok := f.(Loadable)
		if !ok {
			continue
		}
		start := time.Now()
		err := l.Load()
		m.log.Debug("Feature processed load.", "feature", f.Name(), "duration", time.Since(start))
		m.cpu.Add(f.Name(), CategoryLoad, time.Since(start))
		if err != nil {
			return fmt.Errorf("feature %v: load: %w", f.Name(), err)
		}
	}
	return nil
}

// Unload invokes Unload on every unloadable feature in registration order.
func (m *Manager) Unload() error {
	for _, f := range m.load() {
		u, ok := f.(Unloadable)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryUnload, u.Unload); stop {
			return err
		}
	}
	return nil
}

// Refresh invokes Refresh on every refreshable feature for the given player.
func (m *Manager) Refresh(p *player.Player, force bool) error {
	for _, f := range m.load() {
		r, ok := f.(Refreshable)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryRefresh, func() error { return r.Refresh(p, force) }); stop {
			return err
		}
	}
	return nil
}

// Join dispatches a player connecting to all join listeners.
func (m *Manager) Join(p *player.Player) error {
	for _, f := range m.load() {
		j, ok := f.(JoinListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryPlayerJoin, func() error { return j.HandleJoin(p) }); stop {
			return err
		}
	}
	return nil
}

// Quit dispatches a player disconnecting to all quit listeners.
func (m *Manager) Quit(p *player.Player) error {
	for _, f := range m.load() {
		q, ok := f.(QuitListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryPlayerQuit, func() error { return q.HandleQuit(p) }); stop {
			return err
		}
	}
	return nil
}

// WorldChange dispatches a world switch to all world switch listeners.
func (m *Manager) WorldChange(p *player.Player, from, to string) error {
	for _, f := range m.load() {
		w, ok := f.(WorldSwitchListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryWorldSwitch, func() error { return w.HandleWorldChange(p, from, to) }); stop {
			return err
		}
	}
	return nil
}

// ServerChange dispatches a server switch to all server switch listeners.
func (m *Manager) ServerChange(p *player.Player, from, to string) error {
	for _, f := range m.load() {
		s, ok := f.(ServerSwitchListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryServerSwitch, func() error { return s.HandleServerChange(p, from, to) }); stop {
			return err
		}
	}
	return nil
}

// Command dispatches a chat command to all command listeners. The command is
// cancelled if any listener requests it; all listeners are still invoked.
func (m *Manager) Command(sender *player.Player, command string) (bool, error) {
	cancel := false
	for _, f := range m.load() {
		c, ok := f.(CommandListener)
		if !ok {
			continue
		}
		stop, err := m.measure(f, CategoryCommandPreprocess, func() error {
			handled, err := c.HandleCommand(sender, command)
			if handled {
				cancel = true
			}
			return err
		})
		if stop {
			return cancel, err
		}
	}
	return cancel, nil
}

// PacketSend dispatches an outbound packet observation to all packet send
// listeners before the packet is encoded. Handler errors are reported and do
// not stop other listeners from processing the packet.
func (m *Manager) PacketSend(receiver *player.Player, pk protocol.Packet) {
	for _, f := range m.load() {
		l, ok := f.(PacketSendListener)
		if !ok {
			continue
		}
		m.measure(f, CategoryRawPacketOut, func() error { return l.HandlePacketSend(receiver, pk) })
	}
}

// DisplayObjective dispatches an objective display slot assignment observed
// on a connection.
func (m *Manager) DisplayObjective(receiver *player.Player, slot int, objective string) error {
	for _, f := range m.load() {
		l, ok := f.(DisplayObjectiveListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryAntiOverride, func() error { return l.HandleDisplayObjective(receiver, slot, objective) }); stop {
			return err
		}
	}
	return nil
}

// ObjectiveAction dispatches an objective action observed on a connection.
func (m *Manager) ObjectiveAction(receiver *player.Player, action int, objective string) error {
	for _, f := range m.load() {
		l, ok := f.(ObjectiveListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryAntiOverride, func() error { return l.HandleObjective(receiver, action, objective) }); stop {
			return err
		}
	}
	return nil
}

// VanishChange dispatches a vanish status change to all vanish listeners.
func (m *Manager) VanishChange(p *player.Player) error {
	for _, f := range m.load() {
		v, ok := f.(VanishListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryVanishChange, func() error { return v.HandleVanishChange(p) }); stop {
			return err
		}
	}
	return nil
}

// GameModeChange dispatches a game mode change to all game mode listeners.
func (m *Manager) GameModeChange(p *player.Player) error {
	for _, f := range m.load() {
		g, ok := f.(GameModeListener)
		if !ok {
			continue
		}
		if stop, err := m.measure(f, CategoryGameModeChange, func() error { return g.HandleGameModeChange(p) }); stop {
			return err
		}
	}
	return nil
}

// DisplayNameChange collects a display name for the entry from all display
// name listeners. Later registered listeners override earlier answers, so all
// listeners are invoked even after an answer was produced. A nil return means
// no listener answered.
func (m *Manager) DisplayNameChange(receiver *player.Player, id uuid.UUID) *format.Component {
	var answer *format.Component
	for _, f := range m.load() {
		l, ok := f.(DisplayNameListener)
		if !ok {
			continue
		}
		start := time.Now()
		if value := l.HandleDisplayNameChange(receiver, id); value != nil {
			answer = value
		}
		m.cpu.Add(f.Name(), CategoryPlayerInfoPacket, time.Since(start))
	}
	return answer
}

// LatencyChange passes latency through all latency listeners in registration
// order. Each listener receives the value produced by the previous one, so the
// last registered listener decides the delivered value.
func (m *Manager) LatencyChange(receiver *player.Player, id uuid.UUID, latency int) int {
	for _, f := range m.load() {
		l, ok := f.(LatencyListener)
		if !ok {
			continue
		}
		start := time.Now()
		latency = l.HandleLatencyChange(receiver, id, latency)
		m.cpu.Add(f.Name(), CategoryPlayerInfoPacket, time.Since(start))
	}
	return latency
}

// EntryAdd notifies all entry add listeners of a roster entry observed on a
// connection.
func (m *Manager) EntryAdd(receiver *player.Player, id uuid.UUID, name string) {
	for _, f := range m.load() {
		l, ok := f.(EntryAddListener)
		if !ok {
			continue
		}
		start := time.Now()
		l.HandleEntryAdd(receiver, id, name)
		m.cpu.Add(f.Name(), CategoryPlayerInfoPacket, time.Since(start))
	}
}

// RepeatMeasured runs fn every interval on its own goroutine, attributing the
// time spent to the given feature name under category. The returned function
// stops the task and may be called multiple times.
func (m *Manager) RepeatMeasured(interval time.Duration, feature, category string, fn func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				start := time.Now()
				fn()
				m.cpu.Add(feature, category, time.Since(start))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}
