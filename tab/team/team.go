package team

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/df-mc/tablist/tab/feature"
	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// FeatureNameTags is the name the team feature registers under.
const FeatureNameTags = "nametags"

// Config controls the team feature.
type Config struct {
	// CollisionRule is the global collision value applied to players without
	// an explicit override.
	CollisionRule bool
	// RevertedCollisionWorlds lists worlds in which CollisionRule is
	// inverted. Disguised players are exempt from the inversion.
	RevertedCollisionWorlds []string
	// InvisibleNametags hides all nametags regardless of per-player state.
	InvisibleNametags bool
	// DisabledWorlds lists worlds in which no teams are registered at all.
	DisabledWorlds []string
	// PollInterval is the cadence of the reconciliation poll correcting
	// invisibility and collision state the peer gives no change notification
	// for. Defaults to 500ms when zero.
	PollInterval time.Duration
	// ServerMinorVersion is the minor version of the server protocol.
	// Collision cannot be controlled at runtime before 1.9.
	ServerMinorVersion int
}

// Scheduler runs the periodic reconciliation poll with its time attributed to
// the feature. The dispatch core implements it.
type Scheduler interface {
	RepeatMeasured(interval time.Duration, feature, category string, fn func()) (stop func())
}

// Teams computes and pushes per-viewer team state: one exclusive,
// single-member team per player carrying prefix, suffix, visibility and
// collision. Identifier changes re-register the team; every other change is
// pushed in place.
type Teams struct {
	players *player.Registry
	sorter  Sorter
	source  player.PropertySource
	sched   Scheduler
	log     *slog.Logger
	cfg     Config

	mu        sync.Mutex
	invisible map[uuid.UUID]struct{}
	collision map[uuid.UUID]bool
	stopPoll  func()
}

// NewTeams creates the team feature. sorter may be nil, in which case a
// weighted sorter without group weights is used.
func NewTeams(players *player.Registry, sorter Sorter, source player.PropertySource, sched Scheduler, log *slog.Logger, cfg Config) *Teams {
	if sorter == nil {
		sorter = WeightedSorter{}
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond * 500
	}
	return &Teams{
		players:   players,
		sorter:    sorter,
		source:    source,
		sched:     sched,
		log:       log.With("subsystem", "nametags"),
		cfg:       cfg,
		invisible: map[uuid.UUID]struct{}{},
		collision: map[uuid.UUID]bool{},
	}
}

// Name ...
func (t *Teams) Name() string { return FeatureNameTags }

// Sorter returns the sorter computing team identifiers.
func (t *Teams) Sorter() Sorter { return t.sorter }

// Load assigns identifiers and registers teams for everyone already online,
// then starts the reconciliation poll.
func (t *Teams) Load() error {
	for _, p := range t.players.All() {
		p.SetTeamName(t.sorter.TeamName(p))
		t.loadProperties(p)
		t.mu.Lock()
		t.collision[p.UUID()] = true
		if p.InvisibilityEffect() {
			t.invisible[p.UUID()] = struct{}{}
		}
		t.mu.Unlock()
		if t.DisabledWorld(p.World()) {
			continue
		}
		t.RegisterTeam(p)
	}
	if t.sched != nil {
		t.stopPoll = t.sched.RepeatMeasured(t.cfg.PollInterval, FeatureNameTags, feature.CategoryTeamPoll, t.poll)
	}
	t.log.Debug("Loaded team feature.", "collision", t.cfg.CollisionRule, "reverted", t.cfg.RevertedCollisionWorlds,
		"disabled", t.cfg.DisabledWorlds, "invisible-nametags", t.cfg.InvisibleNametags)
	return nil
}

// Unload stops the poll and removes all registered teams.
func (t *Teams) Unload() error {
	if t.stopPoll != nil {
		t.stopPoll()
	}
	for _, p := range t.players.All() {
		if !t.DisabledWorld(p.World()) {
			t.UnregisterTeam(p)
		}
	}
	return nil
}

// HandleJoin assigns the identifier of the connecting player, seeds its
// collision cache, shows every existing team to it and its own team to
// everyone, itself included.
func (t *Teams) HandleJoin(p *player.Player) error {
	p.SetTeamName(t.sorter.TeamName(p))
	t.loadProperties(p)
	t.mu.Lock()
	t.collision[p.UUID()] = true
	t.mu.Unlock()
	for _, other := range t.players.All() {
		if !other.Loaded() || other.UUID() == p.UUID() {
			// The joining player's own team is registered to all viewers
			// below; registering it here too would duplicate it.
			continue
		}
		if !t.DisabledWorld(other.World()) {
			t.RegisterTeamFor(other, p)
		}
	}
	if t.DisabledWorld(p.World()) {
		return nil
	}
	t.RegisterTeam(p)
	return nil
}

// HandleQuit removes the departing player's team and all per-player state
// held for it, including per-viewer hidden-nametag flags on other sessions.
func (t *Teams) HandleQuit(p *player.Player) error {
	if !t.DisabledWorld(p.World()) {
		t.UnregisterTeam(p)
	}
	t.mu.Lock()
	delete(t.invisible, p.UUID())
	delete(t.collision, p.UUID())
	t.mu.Unlock()
	for _, other := range t.players.All() {
		if other.UUID() == p.UUID() {
			continue
		}
		other.ShowNametag(p.UUID())
	}
	return nil
}

// HandleWorldChange transitions the player's team between registered,
// unregistered and updated depending on whether the source and destination
// worlds have the feature disabled.
func (t *Teams) HandleWorldChange(p *player.Player, from, to string) error {
	t.loadProperties(p)
	switch {
	case t.DisabledWorld(to) && !t.DisabledWorld(from):
		t.UnregisterTeam(p)
	case !t.DisabledWorld(to) && t.DisabledWorld(from):
		t.RegisterTeam(p)
	default:
		t.UpdateTeam(p)
	}
	return nil
}

// Refresh recomputes the player's team when its properties changed.
func (t *Teams) Refresh(p *player.Player, force bool) error {
	if t.DisabledWorld(p.World()) {
		return nil
	}
	refresh := t.loadProperties(p) || force
	if refresh {
		t.UpdateTeam(p)
	}
	return nil
}

// RegisterTeam creates the player's team on every connection.
func (t *Teams) RegisterTeam(p *player.Player) {
	if p.TeamHandlingPaused() || p.TeamName() == "" {
		return
	}
	for _, viewer := range t.players.All() {
		t.RegisterTeamFor(p, viewer)
	}
}

// RegisterTeamFor creates the player's team on a single connection.
func (t *Teams) RegisterTeamFor(p, viewer *player.Player) {
	if p.TeamHandlingPaused() || p.TeamName() == "" {
		return
	}
	t.write(viewer, &protocol.Team{
		Name:              p.TeamName(),
		Mode:              protocol.TeamCreate,
		Prefix:            p.Property(player.PropertyTagPrefix).Format(viewer),
		Suffix:            p.Property(player.PropertyTagSuffix).Format(viewer),
		NameTagVisibility: rule(t.Visibility(p, viewer)),
		CollisionRule:     rule(t.Collision(p)),
		Members:           []string{p.Name()},
	})
}

// UnregisterTeam removes the player's team from every connection. It is a
// no-op while team handling is paused or before the player was assigned an
// identifier.
func (t *Teams) UnregisterTeam(p *player.Player) {
	if p.TeamHandlingPaused() || p.TeamName() == "" {
		return
	}
	for _, viewer := range t.players.All() {
		t.UnregisterTeamFor(p, viewer)
	}
}

// UnregisterTeamFor removes the player's team from a single connection.
func (t *Teams) UnregisterTeamFor(p, viewer *player.Player) {
	if p.TeamHandlingPaused() || p.TeamName() == "" {
		return
	}
	t.write(viewer, &protocol.Team{Name: p.TeamName(), Mode: protocol.TeamRemove})
}

// UpdateTeam recomputes the player's identifier. An unchanged identifier
// updates the team in place; a changed one replaces the team entirely, since
// a team holds exactly one member and cannot be renamed.
func (t *Teams) UpdateTeam(p *player.Player) {
	if p.TeamName() == "" {
		// Not loaded yet.
		return
	}
	name := t.sorter.TeamName(p)
	if p.TeamName() == name {
		t.UpdateTeamData(p)
		return
	}
	t.UnregisterTeam(p)
	p.SetTeamName(name)
	t.RegisterTeam(p)
}

// UpdateTeamData pushes prefix, suffix, visibility and collision to every
// connection without changing identifier or membership.
func (t *Teams) UpdateTeamData(p *player.Player) {
	for _, viewer := range t.players.All() {
		t.UpdateTeamDataFor(p, viewer)
	}
}

// UpdateTeamDataFor pushes the player's team data to a single connection.
func (t *Teams) UpdateTeamDataFor(p, viewer *player.Player) {
	if p.TeamHandlingPaused() || p.TeamName() == "" {
		return
	}
	t.write(viewer, &protocol.Team{
		Name:              p.TeamName(),
		Mode:              protocol.TeamUpdate,
		Prefix:            p.Property(player.PropertyTagPrefix).Format(viewer),
		Suffix:            p.Property(player.PropertyTagSuffix).Format(viewer),
		NameTagVisibility: rule(t.Visibility(p, viewer)),
		CollisionRule:     rule(t.Collision(p)),
	})
}

// Visibility reports if the player's nametag is visible to the viewer. A
// nametag is visible unless hidden globally or for this viewer, hidden by
// configuration, or the player is currently tracked invisible.
func (t *Teams) Visibility(p, viewer *player.Player) bool {
	if p.NametagHidden() || p.NametagHiddenFrom(viewer.UUID()) || t.cfg.InvisibleNametags {
		return false
	}
	t.mu.Lock()
	_, invisible := t.invisible[p.UUID()]
	t.mu.Unlock()
	return !invisible
}

// Collision reports whether the player's hitbox blocks other entities. An
// explicit per-player override wins; otherwise the cached value of the
// configured rule applies, computed lazily on first query.
func (t *Teams) Collision(p *player.Player) bool {
	if !p.Online() {
		return false
	}
	if forced := p.ForcedCollision(); forced != nil {
		return *forced
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cached, ok := t.collision[p.UUID()]; ok {
		return cached
	}
	value := t.cfg.CollisionRule
	if slices.Contains(t.cfg.RevertedCollisionWorlds, p.World()) {
		value = !value
	}
	t.collision[p.UUID()] = value
	return value
}

// DisabledWorld reports if the feature is disabled in the given world.
func (t *Teams) DisabledWorld(world string) bool {
	return slices.Contains(t.cfg.DisabledWorlds, world)
}

// poll is the periodic reconciliation pass. The peer does not notify about
// invisibility status changing and never about the collision rule, so both
// are recomputed on a fixed cadence and pushed only on transitions.
func (t *Teams) poll() {
	for _, p := range t.players.All() {
		if !p.Loaded() || t.DisabledWorld(p.World()) {
			continue
		}
		invisible := p.InvisibilityEffect()
		t.mu.Lock()
		_, tracked := t.invisible[p.UUID()]
		if invisible && !tracked {
			t.invisible[p.UUID()] = struct{}{}
		} else if !invisible && tracked {
			delete(t.invisible, p.UUID())
		}
		t.mu.Unlock()
		if invisible != tracked {
			t.UpdateTeamData(p)
		}
		if t.cfg.ServerMinorVersion >= 9 {
			t.updateCollision(p)
		}
	}
}

// updateCollision recomputes the collision value of p and pushes a team data
// update when it differs from the cached value.
func (t *Teams) updateCollision(p *player.Player) {
	if !p.Online() {
		return
	}
	if forced := p.ForcedCollision(); forced != nil {
		t.mu.Lock()
		cached, ok := t.collision[p.UUID()]
		changed := !ok || cached != *forced
		if changed {
			t.collision[p.UUID()] = *forced
		}
		t.mu.Unlock()
		if changed {
			t.UpdateTeamData(p)
		}
		return
	}
	value := t.cfg.CollisionRule
	if !p.Disguised() && slices.Contains(t.cfg.RevertedCollisionWorlds, p.World()) {
		value = !value
	}
	t.mu.Lock()
	cached, ok := t.collision[p.UUID()]
	changed := !ok || cached != value
	if changed {
		t.collision[p.UUID()] = value
	}
	t.mu.Unlock()
	if changed {
		t.UpdateTeamData(p)
	}
}

func (t *Teams) loadProperties(p *player.Player) bool {
	if t.source == nil {
		return false
	}
	return player.LoadProperties(p, t.source, player.PropertyTagPrefix, player.PropertyTagSuffix)
}

func (t *Teams) write(viewer *player.Player, pk protocol.Packet) {
	if err := viewer.Conn().WritePacket(pk); err != nil {
		t.log.Error("Write team packet.", "viewer", viewer.Name(), "error", err)
	}
}

func rule(allowed bool) string {
	if allowed {
		return protocol.RuleAlways
	}
	return protocol.RuleNever
}
