package roster

import (
	"log/slog"
	"sync"

	"github.com/df-mc/tablist/tab/format"
	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// Hooks expose the dispatch core's resolution hooks to a roster. They are
// passed at construction instead of being reached through global state.
type Hooks interface {
	// LatencyChange passes latency through all latency listeners and returns
	// the value to deliver.
	LatencyChange(receiver *player.Player, id uuid.UUID, latency int) int
	// EntryAdd notifies listeners of a roster entry observed on a connection.
	EntryAdd(receiver *player.Player, id uuid.UUID, name string)
}

// Entry is a single remote list item tracked for a connection.
type Entry struct {
	UUID uuid.UUID
	Name string
	Skin *protocol.Skin
	// Listed controls whether the entry shows up in the rendered list.
	Listed   bool
	Latency  int
	GameMode protocol.GameMode
	// DisplayName is the custom display name, or nil to fall back to team
	// prefix/suffix rendering.
	DisplayName *format.Component
}

// Roster is the tracked view of the remote list shown on one connection. It
// records what the peer is expected to display and reconciles outbound
// packets that disagree with that expectation.
//
// All mutating calls are issued from the logic thread. ProcessOutgoing may run
// concurrently on the network thread, which is why the expected display name
// records live in a sync.Map.
type Roster struct {
	p     *player.Player
	hooks Hooks
	log   *slog.Logger

	antiOverride bool

	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
	// expected maps entry identifiers to the display name last pushed for
	// them. A stored nil component means "expect no custom display name". A
	// record exists only while its entry is tracked; the entry removal path
	// is the single place allowed to delete it.
	expected sync.Map // uuid.UUID -> *format.Component
}

// NewRoster creates a roster for the connection of p. With antiOverride
// enabled, display names pushed through the roster are recorded and enforced
// on observed outbound packets.
func NewRoster(p *player.Player, hooks Hooks, log *slog.Logger, antiOverride bool) *Roster {
	if log == nil {
		log = slog.Default()
	}
	return &Roster{
		p:            p,
		hooks:        hooks,
		log:          log.With("subsystem", "roster", "viewer", p.Name()),
		antiOverride: antiOverride,
		entries:      map[uuid.UUID]*Entry{},
	}
}

// Player returns the player whose connection this roster belongs to.
func (r *Roster) Player() *player.Player { return r.p }

// AntiOverride reports if display name reconciliation is enabled.
func (r *Roster) AntiOverride() bool { return r.antiOverride }

// AddEntry registers a roster entry and pushes it to the connection. The
// expected display name, possibly absent, is recorded before the packet is
// built so a concurrent observation never sees the entry without its record.
func (r *Roster) AddEntry(e Entry) error {
	if r.antiOverride {
		r.expected.Store(e.UUID, e.DisplayName)
	}
	r.mu.Lock()
	stored := e
	r.entries[e.UUID] = &stored
	r.mu.Unlock()

	err := r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.AddPlayer, Entries: []protocol.PlayerInfoEntry{{
		UUID:        e.UUID,
		Name:        e.Name,
		Skin:        e.Skin,
		Listed:      e.Listed,
		Latency:     e.Latency,
		GameMode:    e.GameMode,
		DisplayName: e.DisplayName,
	}}})
	if err != nil {
		return err
	}
	if r.p.Version() == 8 {
		// 1.8.0 clients drop the display name sent in the add action, so it
		// must be repeated in a separate update.
		return r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.UpdateDisplayName, Entries: []protocol.PlayerInfoEntry{{
			UUID:        e.UUID,
			DisplayName: e.DisplayName,
		}}})
	}
	return nil
}

// RemoveEntry deletes a tracked entry and its expected display name record,
// then pushes the removal. Removing an unknown identifier is a no-op: the
// peer may have dropped the entry already.
func (r *Roster) RemoveEntry(id uuid.UUID) error {
	r.expected.Delete(id)
	r.mu.Lock()
	_, tracked := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !tracked {
		r.log.Debug("Remove of unknown roster entry.", "entry", id)
		return nil
	}
	return r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.RemovePlayer, Entries: []protocol.PlayerInfoEntry{{UUID: id}}})
}

// UpdateDisplayName replaces the display name of a tracked entry. A nil name
// makes the entry fall back to team prefix/suffix rendering. The expected
// record is overwritten before the update is pushed.
func (r *Roster) UpdateDisplayName(id uuid.UUID, name *format.Component) error {
	if r.antiOverride {
		r.expected.Store(id, name)
	}
	r.mu.Lock()
	e, tracked := r.entries[id]
	if tracked {
		e.DisplayName = name
	}
	r.mu.Unlock()
	if !tracked {
		r.log.Debug("Display name update of unknown roster entry.", "entry", id)
		return nil
	}
	return r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.UpdateDisplayName, Entries: []protocol.PlayerInfoEntry{{
		UUID:        id,
		DisplayName: name,
	}}})
}

// UpdateLatency replaces the latency of a tracked entry. The value first
// routes through the dispatch core's latency resolution hook so other
// features may override what is delivered.
func (r *Roster) UpdateLatency(id uuid.UUID, latency int) error {
	latency = r.hooks.LatencyChange(r.p, id, latency)
	r.mu.Lock()
	e, tracked := r.entries[id]
	if tracked {
		e.Latency = latency
	}
	r.mu.Unlock()
	if !tracked {
		r.log.Debug("Latency update of unknown roster entry.", "entry", id)
		return nil
	}
	return r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.UpdateLatency, Entries: []protocol.PlayerInfoEntry{{
		UUID:    id,
		Latency: latency,
	}}})
}

// UpdateGameMode replaces the game mode of a tracked entry.
func (r *Roster) UpdateGameMode(id uuid.UUID, mode protocol.GameMode) error {
	r.mu.Lock()
	e, tracked := r.entries[id]
	if tracked {
		e.GameMode = mode
	}
	r.mu.Unlock()
	if !tracked {
		r.log.Debug("Game mode update of unknown roster entry.", "entry", id)
		return nil
	}
	return r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.UpdateGameMode, Entries: []protocol.PlayerInfoEntry{{
		UUID:     id,
		GameMode: mode,
	}}})
}

// UpdateListed shows or hides a tracked entry in the rendered list.
func (r *Roster) UpdateListed(id uuid.UUID, listed bool) error {
	r.mu.Lock()
	e, tracked := r.entries[id]
	if tracked {
		e.Listed = listed
	}
	r.mu.Unlock()
	if !tracked {
		r.log.Debug("Listed update of unknown roster entry.", "entry", id)
		return nil
	}
	return r.p.Conn().WritePacket(&protocol.PlayerInfo{Action: protocol.UpdateListed, Entries: []protocol.PlayerInfoEntry{{
		UUID:   id,
		Listed: listed,
	}}})
}

// SetHeaderFooter replaces the header and footer shown alongside the list.
// Both components are required; pass a zero Component for an empty line.
func (r *Roster) SetHeaderFooter(header, footer format.Component) error {
	return r.p.Conn().WritePacket(&protocol.HeaderFooter{Header: header, Footer: footer})
}

// Entry returns a copy of the tracked entry with the given identifier.
func (r *Roster) Entry(id uuid.UUID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ExpectedDisplayName returns the display name last pushed for the entry. The
// second return value reports if a record exists; the component itself may be
// nil, meaning the entry is expected to have no custom display name.
func (r *Roster) ExpectedDisplayName(id uuid.UUID) (*format.Component, bool) {
	value, ok := r.expected.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*format.Component), true
}

// ExpectedCount returns the number of expected display name records held.
func (r *Roster) ExpectedCount() int {
	count := 0
	r.expected.Range(func(any, any) bool {
		count++
		return true
	})
	return count
}

// ProcessOutgoing reconciles an outbound packet against tracked expectations
// before it reaches the wire. Display names differing from a recorded
// expectation are overwritten, latency values route through the resolution
// hook, and add actions notify the entry add hook so features can react to
// entries the host platform created directly.
func (r *Roster) ProcessOutgoing(pk protocol.Packet) error {
	info, ok := pk.(*protocol.PlayerInfo)
	if !ok {
		return nil
	}
	for i := range info.Entries {
		entry := &info.Entries[i]
		if info.Action == protocol.UpdateDisplayName || info.Action == protocol.AddPlayer {
			if expected, tracked := r.ExpectedDisplayName(entry.UUID); tracked && !format.Equal(entry.DisplayName, expected) {
				entry.DisplayName = expected
			}
		}
		if info.Action == protocol.UpdateLatency || info.Action == protocol.AddPlayer {
			if resolved := r.hooks.LatencyChange(r.p, entry.UUID, entry.Latency); resolved != entry.Latency {
				entry.Latency = resolved
			}
		}
		if info.Action == protocol.AddPlayer {
			r.hooks.EntryAdd(r.p, entry.UUID, entry.Name)
		}
	}
	return nil
}

// Close drops all tracked entries and expected display name records. It is
// called when the owning connection closes.
func (r *Roster) Close() {
	r.mu.Lock()
	r.entries = map[uuid.UUID]*Entry{}
	r.mu.Unlock()
	r.expected.Range(func(key, _ any) bool {
		r.expected.Delete(key)
		return true
	})
}
