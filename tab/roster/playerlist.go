package roster

import (
	"log/slog"
	"sync"

	"github.com/df-mc/tablist/tab/format"
	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// FeaturePlayerList is the name the player list feature registers under.
const FeaturePlayerList = "playerlist"

// Config controls the player list feature.
type Config struct {
	// AntiOverride enables reconciliation of display names and latency on
	// observed outbound packets.
	AntiOverride bool
	// Header and Footer are shown above and below the list on every
	// connection. Both empty disables the header/footer push.
	Header, Footer string
}

// PlayerList maintains a tracked roster for every connection and keeps entry
// display names formatted from player properties. It is the feature driving
// roster replication through the dispatch core.
type PlayerList struct {
	players *player.Registry
	hooks   Hooks
	source  player.PropertySource
	log     *slog.Logger
	cfg     Config

	mu      sync.RWMutex
	rosters map[uuid.UUID]*Roster
}

// NewPlayerList creates the player list feature. hooks is the dispatch core;
// source supplies the tab prefix/name/suffix property values.
func NewPlayerList(players *player.Registry, hooks Hooks, source player.PropertySource, log *slog.Logger, cfg Config) *PlayerList {
	if log == nil {
		log = slog.Default()
	}
	return &PlayerList{
		players: players,
		hooks:   hooks,
		source:  source,
		log:     log.With("subsystem", "playerlist"),
		cfg:     cfg,
		rosters: map[uuid.UUID]*Roster{},
	}
}

// Name ...
func (pl *PlayerList) Name() string { return FeaturePlayerList }

// Roster returns the tracked roster of the given player's connection.
func (pl *PlayerList) Roster(p *player.Player) (*Roster, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	r, ok := pl.rosters[p.UUID()]
	return r, ok
}

// Load seeds a roster for every player already online when the feature is
// registered, such as after a reload.
func (pl *PlayerList) Load() error {
	for _, p := range pl.players.All() {
		if err := pl.seed(p); err != nil {
			return err
		}
	}
	return nil
}

// Unload closes all rosters and clears headers and footers.
func (pl *PlayerList) Unload() error {
	pl.mu.Lock()
	rosters := pl.rosters
	pl.rosters = map[uuid.UUID]*Roster{}
	pl.mu.Unlock()
	for _, r := range rosters {
		if pl.cfg.Header != "" || pl.cfg.Footer != "" {
			_ = r.SetHeaderFooter(format.Component{}, format.Component{})
		}
		r.Close()
	}
	return nil
}

// HandleJoin creates a roster for the connecting player, fills it with the
// entries of everyone online and announces the new entry to every existing
// roster.
func (pl *PlayerList) HandleJoin(p *player.Player) error {
	if err := pl.seed(p); err != nil {
		return err
	}
	for _, viewer := range pl.players.All() {
		if viewer.UUID() == p.UUID() {
			continue
		}
		r, ok := pl.Roster(viewer)
		if !ok {
			continue
		}
		if err := r.AddEntry(pl.entry(p, viewer)); err != nil {
			return err
		}
	}
	return nil
}

// seed creates the roster of p and fills it with all online players,
// including p itself.
func (pl *PlayerList) seed(p *player.Player) error {
	player.LoadProperties(p, pl.source, player.PropertyTabPrefix, player.PropertyCustomName, player.PropertyTabSuffix)
	r := NewRoster(p, pl.hooks, pl.log, pl.cfg.AntiOverride)
	pl.mu.Lock()
	pl.rosters[p.UUID()] = r
	pl.mu.Unlock()

	if pl.cfg.Header != "" || pl.cfg.Footer != "" {
		if err := r.SetHeaderFooter(format.Legacy(pl.cfg.Header), format.Legacy(pl.cfg.Footer)); err != nil {
			return err
		}
	}
	for _, target := range pl.players.All() {
		if err := r.AddEntry(pl.entry(target, p)); err != nil {
			return err
		}
	}
	return nil
}

// HandleQuit removes the departing player's entry from every roster and
// closes their own, dropping all expected display name records with it.
func (pl *PlayerList) HandleQuit(p *player.Player) error {
	pl.mu.Lock()
	own, ok := pl.rosters[p.UUID()]
	delete(pl.rosters, p.UUID())
	pl.mu.Unlock()
	if ok {
		own.Close()
	}
	for _, viewer := range pl.players.All() {
		if viewer.UUID() == p.UUID() {
			continue
		}
		if r, ok := pl.Roster(viewer); ok {
			if err := r.RemoveEntry(p.UUID()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Refresh re-resolves the display name of p on every connection.
func (pl *PlayerList) Refresh(p *player.Player, force bool) error {
	changed := player.LoadProperties(p, pl.source, player.PropertyTabPrefix, player.PropertyCustomName, player.PropertyTabSuffix)
	if !changed && !force {
		return nil
	}
	for _, viewer := range pl.players.All() {
		if r, ok := pl.Roster(viewer); ok {
			if err := r.UpdateDisplayName(p.UUID(), pl.displayName(p, viewer)); err != nil {
				return err
			}
		}
	}
	return nil
}

// HandlePacketSend reconciles an outbound roster packet on the receiver's
// connection against its tracked expectations.
func (pl *PlayerList) HandlePacketSend(receiver *player.Player, pk protocol.Packet) error {
	r, ok := pl.Roster(receiver)
	if !ok {
		return nil
	}
	return r.ProcessOutgoing(pk)
}

// HandleDisplayNameChange answers display name resolution with the expected
// display name recorded on the receiver's roster.
func (pl *PlayerList) HandleDisplayNameChange(receiver *player.Player, id uuid.UUID) *format.Component {
	r, ok := pl.Roster(receiver)
	if !ok {
		return nil
	}
	expected, tracked := r.ExpectedDisplayName(id)
	if !tracked {
		return nil
	}
	return expected
}

// HandleVanishChange hides or reveals the player's entry on all connections.
func (pl *PlayerList) HandleVanishChange(p *player.Player) error {
	for _, viewer := range pl.players.All() {
		if r, ok := pl.Roster(viewer); ok {
			if err := r.UpdateListed(p.UUID(), !p.Vanished()); err != nil {
				return err
			}
		}
	}
	return nil
}

// HandleGameModeChange replicates the player's new game mode to all
// connections.
func (pl *PlayerList) HandleGameModeChange(p *player.Player) error {
	for _, viewer := range pl.players.All() {
		if r, ok := pl.Roster(viewer); ok {
			if err := r.UpdateGameMode(p.UUID(), p.GameMode()); err != nil {
				return err
			}
		}
	}
	return nil
}

// entry builds the roster entry of target as shown to viewer.
func (pl *PlayerList) entry(target, viewer *player.Player) Entry {
	return Entry{
		UUID:        target.UUID(),
		Name:        target.Name(),
		Skin:        target.Skin(),
		Listed:      !target.Vanished(),
		GameMode:    target.GameMode(),
		DisplayName: pl.displayName(target, viewer),
	}
}

// displayName formats the display name of target for viewer from its tab
// properties. Without any configured property the entry falls back to team
// prefix/suffix rendering.
func (pl *PlayerList) displayName(target, viewer *player.Player) *format.Component {
	prefix := target.Property(player.PropertyTabPrefix).Format(viewer)
	name := target.Property(player.PropertyCustomName).Format(viewer)
	suffix := target.Property(player.PropertyTabSuffix).Format(viewer)
	if prefix == "" && name == "" && suffix == "" {
		return nil
	}
	if name == "" {
		name = target.Name()
	}
	return &format.Component{Text: prefix + name + suffix}
}
