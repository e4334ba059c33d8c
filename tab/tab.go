// Package tab implements tablist and nametag replication for a backend
// server: a registry of tracked players, a set of features reacting to player
// events and the packet plumbing keeping every viewer's list and teams in
// sync with the state this package considers authoritative.
package tab

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/df-mc/tablist/tab/command"
	"github.com/df-mc/tablist/tab/feature"
	"github.com/df-mc/tablist/tab/format"
	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/propdb"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/df-mc/tablist/tab/remote"
	"github.com/df-mc/tablist/tab/roster"
	"github.com/df-mc/tablist/tab/team"
	"github.com/google/uuid"
)

// Tab is the dispatch core. The host platform feeds it player events and
// observed outbound packets through the methods below; registered features
// react by writing list and team packets to player connections.
type Tab struct {
	conf     Config
	log      *slog.Logger
	players  *player.Registry
	features *feature.Manager
	store    *propdb.DB
	remote   *remote.Support

	closeOnce sync.Once
	closeErr  error
}

// New creates a Tab using fields of conf. Features enabled in conf are
// registered immediately; call Tab.Load() afterwards to activate them.
func (conf Config) New() *Tab {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Sorter == nil {
		conf.Sorter = team.WeightedSorter{DefaultWeight: 50}
	}
	if conf.ServerName == "" {
		conf.ServerName = "server"
	}
	t := &Tab{
		conf:    conf,
		log:     conf.Log,
		players: player.NewRegistry(),
		store:   conf.Store,
	}
	t.features = feature.NewManager(conf.Log, conf.Reporter)

	if !conf.DisablePlayerList {
		t.features.Register(roster.FeaturePlayerList, roster.NewPlayerList(t.players, t.features, t, conf.Log, conf.PlayerList))
	}
	if !conf.DisableNameTags {
		t.features.Register(team.FeatureNameTags, team.NewTeams(t.players, conf.Sorter, t, t.features, conf.Log, conf.NameTags))
	}
	if !conf.DisableGroupCommand && conf.Store != nil {
		t.features.Register(command.FeatureGroupCommand, command.NewGroupCommand(t.players, conf.Store, t, conf.Log))
	}
	if conf.Bus != nil && !conf.DisableRemote {
		reporter := conf.Reporter
		if reporter == nil {
			reporter = logReporter{log: conf.Log}
		}
		t.remote = remote.NewSupport(t, conf.Bus, reporter, conf.ServerName, conf.Log)
		t.features.Register(remote.FeatureRemote, t.remote)
	}
	return t
}

// Load activates all registered features, seeding list and team state for
// players already tracked.
func (t *Tab) Load() error {
	return t.features.Load()
}

// Close deactivates all features, restoring player connections to their
// unmanaged state, and closes the property store.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.features.Unload()
		if t.store != nil {
			t.closeErr = errors.Join(t.closeErr, t.store.Close())
		}
	})
	return t.closeErr
}

// Features returns the feature manager, allowing the host to register
// additional features before Load is called.
func (t *Tab) Features() *feature.Manager {
	return t.features
}

// Players returns the registry of tracked players.
func (t *Tab) Players() *player.Registry {
	return t.players
}

// Usage returns per-feature CPU usage grouped by dispatch category.
func (t *Tab) Usage() *feature.UsageTracker {
	return t.features.Usage()
}

// Join starts tracking a connecting player and seeds its state across all
// features. The player counts as loaded once every feature handled the join.
func (t *Tab) Join(p *player.Player) error {
	if p == nil {
		return nil
	}
	t.players.Add(p)
	err := t.features.Join(p)
	p.MarkLoaded()
	return err
}

// Quit runs quit handling for a tracked player and stops tracking it.
func (t *Tab) Quit(p *player.Player) error {
	if p == nil {
		return nil
	}
	p.SetOnline(false)
	err := t.features.Quit(p)
	t.players.Remove(p.UUID())
	return err
}

// QuitID runs quit handling for the tracked player with the given
// identifier. Unknown identifiers are a no-op.
func (t *Tab) QuitID(id uuid.UUID) error {
	p, ok := t.players.Lookup(id)
	if !ok {
		t.log.Debug("Ignoring quit of untracked player.", "uuid", id)
		return nil
	}
	return t.Quit(p)
}

// WorldChange records a world switch of the player with the given identifier
// and lets features react. Unknown identifiers and unchanged worlds are a
// no-op.
func (t *Tab) WorldChange(id uuid.UUID, world string) error {
	p, ok := t.players.Lookup(id)
	if !ok {
		t.log.Debug("Ignoring world change of untracked player.", "uuid", id)
		return nil
	}
	from := p.World()
	if from == world {
		return nil
	}
	p.SetWorld(world)
	return t.features.WorldChange(p, from, world)
}

// ServerChange records a backend server switch of the player with the given
// identifier and lets features react.
func (t *Tab) ServerChange(id uuid.UUID, server string) error {
	p, ok := t.players.Lookup(id)
	if !ok {
		t.log.Debug("Ignoring server change of untracked player.", "uuid", id)
		return nil
	}
	from := p.Server()
	if from == server {
		return nil
	}
	p.SetServer(server)
	return t.features.ServerChange(p, from, server)
}

// Command offers a chat command typed by the player with the given identifier
// to all command consuming features. It reports whether the command was
// consumed and should not reach the server's own command handling.
func (t *Tab) Command(id uuid.UUID, command string) (bool, error) {
	sender, ok := t.players.Lookup(id)
	if !ok {
		return false, nil
	}
	return t.features.Command(sender, command)
}

// PacketSend offers an outbound packet about to be written to the connection
// of the given receiver. Features may correct fields before the packet is
// encoded. Errors of individual features are reported, never propagated.
func (t *Tab) PacketSend(id uuid.UUID, pk protocol.Packet) {
	receiver, ok := t.players.Lookup(id)
	if !ok {
		return
	}
	t.features.PacketSend(receiver, pk)
}

// DisplayObjective signals that a scoreboard objective was assigned to a
// display slot on the receiver's connection.
func (t *Tab) DisplayObjective(id uuid.UUID, slot int, objective string) error {
	receiver, ok := t.players.Lookup(id)
	if !ok {
		return nil
	}
	return t.features.DisplayObjective(receiver, slot, objective)
}

// ObjectiveAction signals that a scoreboard objective was registered,
// unregistered or updated on the receiver's connection.
func (t *Tab) ObjectiveAction(id uuid.UUID, action int, objective string) error {
	receiver, ok := t.players.Lookup(id)
	if !ok {
		return nil
	}
	return t.features.ObjectiveAction(receiver, action, objective)
}

// VanishChanged records a change of the vanished state of the player with
// the given identifier and lets features react. Unchanged state is a no-op.
func (t *Tab) VanishChanged(id uuid.UUID, vanished bool) error {
	p, ok := t.players.Lookup(id)
	if !ok {
		return nil
	}
	if p.Vanished() == vanished {
		return nil
	}
	p.SetVanished(vanished)
	return t.features.VanishChange(p)
}

// GameModeChanged records a change of the game mode of the player with the
// given identifier and lets features react.
func (t *Tab) GameModeChanged(id uuid.UUID, mode protocol.GameMode) error {
	p, ok := t.players.Lookup(id)
	if !ok {
		return nil
	}
	if p.GameMode() == mode {
		return nil
	}
	p.SetGameMode(mode)
	return t.features.GameModeChange(p)
}

// Refresh re-resolves the visual state of a single player across all
// features. If force is set, state is pushed even when unchanged.
func (t *Tab) Refresh(p *player.Player, force bool) error {
	return t.features.Refresh(p, force)
}

// RefreshAll re-resolves the visual state of every tracked player.
func (t *Tab) RefreshAll(force bool) error {
	var err error
	for _, p := range t.players.All() {
		err = errors.Join(err, t.features.Refresh(p, force))
	}
	return err
}

// HandleMessage processes an inbound cross-server envelope received on the
// bus. It is a no-op when cross-server support is disabled.
func (t *Tab) HandleMessage(payload []byte) error {
	if t.remote == nil {
		return nil
	}
	return t.remote.HandleMessage(payload)
}

// PropertyValue resolves the raw value of a property for a player, layering
// per-user overrides over group overrides and configured group defaults. The
// fallback group applies when the player's own group has no value.
func (t *Tab) PropertyValue(p *player.Player, key string) string {
	if t.store != nil {
		if value, ok, err := t.store.UserProperty(p.UUID(), key); err != nil {
			t.log.Error("Read user property: " + err.Error())
		} else if ok {
			return value
		}
		if value, ok, err := t.store.GroupProperty(p.Group(), key); err != nil {
			t.log.Error("Read group property: " + err.Error())
		} else if ok {
			return value
		}
	}
	if value, ok := t.conf.Groups[p.Group()][key]; ok {
		return value
	}
	if value, ok := t.conf.Groups[GroupFallback][key]; ok {
		return value
	}
	return ""
}

// SetDisplayName pushes a custom display name for the target to every
// tracked viewer's roster.
func (t *Tab) SetDisplayName(id uuid.UUID, name *format.Component) error {
	target, ok := t.players.Lookup(id)
	if !ok {
		return feature.ErrPlayerNotFound
	}
	f, registered := t.features.Feature(roster.FeaturePlayerList)
	if !registered {
		return nil
	}
	pl := f.(*roster.PlayerList)
	for _, viewer := range t.players.All() {
		if r, tracked := pl.Roster(viewer); tracked {
			r.UpdateDisplayName(target.UUID(), name)
		}
	}
	return nil
}

type logReporter struct {
	log *slog.Logger
}

func (r logReporter) Report(err error) {
	r.log.Error("Feature error: " + err.Error())
}
