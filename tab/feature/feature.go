package feature

import (
	"errors"

	"github.com/df-mc/tablist/tab/format"
	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// Feature is a unit of functionality driven by the dispatch core. A feature
// opts into events by implementing the capability interfaces below; the
// manager filters on capability presence when dispatching.
type Feature interface {
	// Name returns the identifier the feature is registered under.
	Name() string
}

// Loadable is implemented by features that run work on startup.
type Loadable interface {
	Load() error
}

// Unloadable is implemented by features that run work on shutdown.
type Unloadable interface {
	Unload() error
}

// Refreshable is implemented by features that recompute state for a player
// when their properties may have changed. force requests a full property
// reload instead of a change check.
type Refreshable interface {
	Refresh(p *player.Player, force bool) error
}

// JoinListener is implemented by features reacting to a player connecting.
type JoinListener interface {
	HandleJoin(p *player.Player) error
}

// QuitListener is implemented by features reacting to a player disconnecting.
type QuitListener interface {
	HandleQuit(p *player.Player) error
}

// WorldSwitchListener is implemented by features reacting to a player moving
// between worlds.
type WorldSwitchListener interface {
	HandleWorldChange(p *player.Player, from, to string) error
}

// ServerSwitchListener is implemented by features reacting to a player moving
// between backend servers.
type ServerSwitchListener interface {
	HandleServerChange(p *player.Player, from, to string) error
}

// CommandListener is implemented by features inspecting chat commands before
// the platform processes them. Returning cancel true consumes the command.
type CommandListener interface {
	HandleCommand(sender *player.Player, command string) (cancel bool, err error)
}

// PacketSendListener is implemented by features observing outbound packets
// before transmission. Handlers may mutate the packet in place. Errors
// returned here are isolated per handler: they are reported and dispatch
// continues with the next feature.
type PacketSendListener interface {
	HandlePacketSend(receiver *player.Player, pk protocol.Packet) error
}

// DisplayObjectiveListener is implemented by features reacting to an
// objective being assigned to a display slot on a connection.
type DisplayObjectiveListener interface {
	HandleDisplayObjective(receiver *player.Player, slot int, objective string) error
}

// ObjectiveListener is implemented by features reacting to objective
// register/unregister/update actions on a connection.
type ObjectiveListener interface {
	HandleObjective(receiver *player.Player, action int, objective string) error
}

// DisplayNameListener is implemented by features that answer display name
// resolution for a roster entry. A nil return means no answer.
type DisplayNameListener interface {
	HandleDisplayNameChange(receiver *player.Player, id uuid.UUID) *format.Component
}

// EntryAddListener is implemented by features reacting to a roster entry
// observed on a connection, including entries the host platform added
// directly.
type EntryAddListener interface {
	HandleEntryAdd(receiver *player.Player, id uuid.UUID, name string)
}

// LatencyListener is implemented by features that adjust the latency value
// delivered for a roster entry. The returned value replaces latency for the
// next listener; the final result is what is sent.
type LatencyListener interface {
	HandleLatencyChange(receiver *player.Player, id uuid.UUID, latency int) int
}

// VanishListener is implemented by features reacting to a player's vanish
// status changing.
type VanishListener interface {
	HandleVanishChange(p *player.Player) error
}

// GameModeListener is implemented by features reacting to a player's game
// mode changing.
type GameModeListener interface {
	HandleGameModeChange(p *player.Player) error
}

// Reporter receives recoverable errors from isolated handler invocations.
type Reporter interface {
	Report(err error)
}

// ErrPlayerNotFound is returned by dispatch entry points given an identifier
// no registered session carries.
var ErrPlayerNotFound = errors.New("player not found")
