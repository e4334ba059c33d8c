package protocol

import (
	"github.com/df-mc/tablist/tab/format"
	"github.com/google/uuid"
)

// Packet is an outbound packet representation owned by this module. Packets
// are built from tracked state and handed to a platform specific encoder
// through a Conn, so no foreign packet object ever needs to be introspected.
type Packet interface {
	// ID returns the identifier of the packet, used by encoders to select the
	// wire representation for the target platform and protocol version.
	ID() uint32
}

// Packet identifiers for all packets produced by this module.
const (
	IDPlayerInfo uint32 = iota + 1
	IDHeaderFooter
	IDTeam
	IDDisplayObjective
	IDObjective
)

// Conn encodes packets for a single connection and writes them to the wire.
// Implementations are provided by the platform adapter.
type Conn interface {
	// WritePacket encodes pk and queues it for transmission to the peer.
	WritePacket(pk Packet) error
}

// NopConn is a Conn implementation that discards all packets. It backs
// sessions, such as remote player records, that have no local connection.
type NopConn struct{}

// WritePacket ...
func (NopConn) WritePacket(Packet) error { return nil }

// PlayerInfoAction specifies what a PlayerInfo packet does to the entries it
// references.
type PlayerInfoAction byte

const (
	AddPlayer PlayerInfoAction = iota
	RemovePlayer
	UpdateDisplayName
	UpdateLatency
	UpdateGameMode
	UpdateListed
)

// GameMode is the game mode shown for a roster entry.
type GameMode byte

const (
	GameModeSurvival GameMode = iota
	GameModeCreative
	GameModeAdventure
	GameModeSpectator
)

// Skin holds the texture value and signature of a roster entry's skin.
type Skin struct {
	Value     string
	Signature string
}

// PlayerInfoEntry is a single entry referenced by a PlayerInfo packet. Fields
// irrelevant to the packet's action are left at their zero value.
type PlayerInfoEntry struct {
	UUID     uuid.UUID
	Name     string
	Skin     *Skin
	Listed   bool
	Latency  int
	GameMode GameMode
	// DisplayName is the custom display name of the entry. When nil, the
	// client falls back to team prefix/suffix rendering of the entry name.
	DisplayName *format.Component
}

// PlayerInfo is the packet maintaining the remote list shown to a connection.
type PlayerInfo struct {
	Action  PlayerInfoAction
	Entries []PlayerInfoEntry
}

// ID ...
func (*PlayerInfo) ID() uint32 { return IDPlayerInfo }

// HeaderFooter sets the text shown above and below the remote list.
type HeaderFooter struct {
	Header format.Component
	Footer format.Component
}

// ID ...
func (*HeaderFooter) ID() uint32 { return IDHeaderFooter }

// TeamMode specifies what a Team packet does to the team it names.
type TeamMode byte

const (
	TeamCreate TeamMode = iota
	TeamRemove
	TeamUpdate
)

// Rules accepted for team visibility and collision.
const (
	RuleAlways = "always"
	RuleNever  = "never"
)

// Team creates, removes or updates a visual grouping on a connection.
type Team struct {
	Name string
	Mode TeamMode
	// Prefix and Suffix are rendered around the name of every member. They
	// are only read for TeamCreate and TeamUpdate.
	Prefix string
	Suffix string
	// NameTagVisibility and CollisionRule are one of RuleAlways or RuleNever.
	NameTagVisibility string
	CollisionRule     string
	// Members holds the entity names in the team. Only read for TeamCreate.
	Members []string
}

// ID ...
func (*Team) ID() uint32 { return IDTeam }

// Display slots valid in a DisplayObjective packet.
const (
	SlotPlayerList = 0
	SlotSidebar    = 1
	SlotBelowName  = 2
)

// DisplayObjective assigns an objective to one of the three display slots.
type DisplayObjective struct {
	Slot      int
	Objective string
}

// ID ...
func (*DisplayObjective) ID() uint32 { return IDDisplayObjective }

// Objective actions understood by the peer.
const (
	ObjectiveRegister   = 0
	ObjectiveUnregister = 1
	ObjectiveUpdate     = 2
)

// Objective registers, unregisters or updates a scoreboard objective.
type Objective struct {
	Action int
	Name   string
}

// ID ...
func (*Objective) ID() uint32 { return IDObjective }
