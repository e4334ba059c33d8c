package player

import (
	"sync"

	"github.com/df-mc/tablist/tab/format"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// Player is the session of a single player as tracked by the module. The host
// platform owns the underlying connection; features hold non-owning references
// keyed by the player's UUID.
//
// Identity fields never change for the lifetime of the session. Mutable state
// is guarded internally: it is written by the logic thread and read by the
// periodic poll and the packet observation path.
type Player struct {
	id      uuid.UUID
	name    string
	group   string
	version int
	conn    protocol.Conn
	skin    *protocol.Skin

	mu       sync.RWMutex
	world    string
	server   string
	online   bool
	loaded   bool
	gameMode protocol.GameMode

	vanished           bool
	disguised          bool
	invisibilityEffect bool
	teamHandlingPaused bool

	nametagHidden    bool
	nametagHiddenFor map[uuid.UUID]struct{}
	forcedCollision  *bool

	teamName   string
	properties map[string]*Property
}

// Config holds the immutable identity of a player session.
type Config struct {
	// UUID is the stable unique identifier of the player.
	UUID uuid.UUID
	// Name is the username of the player.
	Name string
	// Group is the permission group the player belongs to. Groups select
	// configured property values such as tag prefixes.
	Group string
	// Version is the minor protocol version of the player's client, such as 8
	// for 1.8 clients.
	Version int
	// Conn encodes outbound packets for the player's connection. When nil,
	// packets produced for this player are discarded.
	Conn protocol.Conn
	// Skin is the texture shown for the player's roster entry, if any.
	Skin *protocol.Skin
	// GameMode is the initial game mode of the player.
	GameMode protocol.GameMode
	// World and Server are the initial location tags of the player.
	World, Server string
}

// New creates a player session from conf. The player starts online but not
// loaded; the dispatch core marks it loaded once all join handlers ran.
func (conf Config) New() *Player {
	if conf.Conn == nil {
		conf.Conn = protocol.NopConn{}
	}
	return &Player{
		id:               conf.UUID,
		name:             conf.Name,
		group:            conf.Group,
		version:          conf.Version,
		conn:             conf.Conn,
		skin:             conf.Skin,
		gameMode:         conf.GameMode,
		world:            conf.World,
		server:           conf.Server,
		online:           true,
		nametagHiddenFor: map[uuid.UUID]struct{}{},
		properties:       map[string]*Property{},
	}
}

// Skin returns the texture shown for the player's roster entry, or nil.
func (p *Player) Skin() *protocol.Skin { return p.skin }

// GameMode returns the game mode of the player.
func (p *Player) GameMode() protocol.GameMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gameMode
}

// SetGameMode updates the game mode of the player. The change is replicated by
// the game mode change event, not by this call.
func (p *Player) SetGameMode(mode protocol.GameMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gameMode = mode
}

// UUID returns the stable unique identifier of the player.
func (p *Player) UUID() uuid.UUID { return p.id }

// Name returns the username of the player.
func (p *Player) Name() string { return p.name }

// Group returns the permission group of the player.
func (p *Player) Group() string { return p.group }

// Version returns the minor protocol version of the player's client.
func (p *Player) Version() int { return p.version }

// Conn returns the packet encoder of the player's connection.
func (p *Player) Conn() protocol.Conn { return p.conn }

// World returns the world the player is currently in.
func (p *Player) World() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.world
}

// SetWorld updates the world location tag of the player.
func (p *Player) SetWorld(world string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.world = world
}

// Server returns the server the player is currently connected to.
func (p *Player) Server() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.server
}

// SetServer updates the server location tag of the player.
func (p *Player) SetServer(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.server = server
}

// Online reports if the player session is still connected.
func (p *Player) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// SetOnline updates the online flag of the session.
func (p *Player) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

// Loaded reports if all join handlers finished processing the player.
func (p *Player) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// MarkLoaded flags the player as fully processed by the dispatch core.
func (p *Player) MarkLoaded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
}

// Vanished reports if the player is hidden from other players.
func (p *Player) Vanished() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vanished
}

// SetVanished updates the vanished flag of the player.
func (p *Player) SetVanished(vanished bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vanished = vanished
}

// Disguised reports if the player is currently disguised. Disguised players
// are exempt from per-world collision rule inversion.
func (p *Player) Disguised() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disguised
}

// SetDisguised updates the disguised flag of the player.
func (p *Player) SetDisguised(disguised bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disguised = disguised
}

// InvisibilityEffect reports if the player is currently affected by a
// visual invisibility status. The peer emits no change notification for this,
// so the team feature polls it periodically.
func (p *Player) InvisibilityEffect() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.invisibilityEffect
}

// SetInvisibilityEffect updates the invisibility status of the player.
func (p *Player) SetInvisibilityEffect(invisible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invisibilityEffect = invisible
}

// TeamHandlingPaused reports if team packets for this player are suppressed.
func (p *Player) TeamHandlingPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.teamHandlingPaused
}

// PauseTeamHandling suppresses or resumes team packets for this player.
func (p *Player) PauseTeamHandling(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teamHandlingPaused = paused
}

// HideNametag hides the nametag of the player from all viewers.
func (p *Player) HideNametag() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nametagHidden = true
}

// HideNametagFrom hides the nametag of the player from a single viewer.
func (p *Player) HideNametagFrom(viewer uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nametagHiddenFor[viewer] = struct{}{}
}

// ShowNametag clears the per-viewer hidden state recorded for the given
// identifier. It is also called for departed identifiers to avoid per-viewer
// state accumulating across player churn.
func (p *Player) ShowNametag(viewer uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.nametagHiddenFor, viewer)
}

// ShowNametagAll clears the global hidden-nametag flag of the player.
func (p *Player) ShowNametagAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nametagHidden = false
}

// NametagHidden reports if the player's nametag is hidden from all viewers.
func (p *Player) NametagHidden() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nametagHidden
}

// NametagHiddenFrom reports if the player's nametag is hidden from the viewer
// with the given identifier specifically.
func (p *Player) NametagHiddenFrom(viewer uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.nametagHiddenFor[viewer]
	return ok
}

// ForcedCollision returns the explicit collision override of the player, or
// nil if the configured collision rule applies.
func (p *Player) ForcedCollision() *bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.forcedCollision
}

// SetForcedCollision sets an explicit collision override for the player.
// Passing nil reverts to the configured rule.
func (p *Player) SetForcedCollision(collision *bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forcedCollision = collision
}

// TeamName returns the team identifier the player is sorted into. An empty
// string means the player has not been loaded by the team feature yet.
func (p *Player) TeamName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.teamName
}

// SetTeamName updates the team identifier of the player.
func (p *Player) SetTeamName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teamName = name
}

// Property returns the property of the player stored under key, creating an
// empty one if it does not exist yet.
func (p *Player) Property(key string) *Property {
	p.mu.Lock()
	defer p.mu.Unlock()
	prop, ok := p.properties[key]
	if !ok {
		prop = &Property{owner: p, resolver: format.StaticResolver{}}
		p.properties[key] = prop
	}
	return prop
}

// Property is a per-player text value, such as a tag prefix, resolved per
// viewer before being pushed to a connection.
type Property struct {
	owner    *Player
	mu       sync.RWMutex
	raw      string
	resolver format.Resolver
}

// Raw returns the unresolved value of the property.
func (prop *Property) Raw() string {
	prop.mu.RLock()
	defer prop.mu.RUnlock()
	return prop.raw
}

// Set replaces the raw value of the property and reports whether it changed.
func (prop *Property) Set(raw string) bool {
	prop.mu.Lock()
	defer prop.mu.Unlock()
	if prop.raw == raw {
		return false
	}
	prop.raw = raw
	return true
}

// SetResolver replaces the placeholder resolver used when formatting the
// property. A nil resolver falls back to static resolution.
func (prop *Property) SetResolver(r format.Resolver) {
	if r == nil {
		r = format.StaticResolver{}
	}
	prop.mu.Lock()
	defer prop.mu.Unlock()
	prop.resolver = r
}

// Format resolves the property for the given viewer and converts colour codes.
func (prop *Property) Format(viewer *Player) string {
	prop.mu.RLock()
	raw, resolver := prop.raw, prop.resolver
	prop.mu.RUnlock()
	viewerName := ""
	if viewer != nil {
		viewerName = viewer.Name()
	}
	return format.Colourise(resolver.Resolve(raw, prop.owner.Name(), viewerName))
}
