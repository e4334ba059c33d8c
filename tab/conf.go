package tab

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/df-mc/tablist/tab/feature"
	"github.com/df-mc/tablist/tab/propdb"
	"github.com/df-mc/tablist/tab/remote"
	"github.com/df-mc/tablist/tab/roster"
	"github.com/df-mc/tablist/tab/team"
)

// GroupFallback is the group whose configured properties apply to players
// whose own group has none configured.
const GroupFallback = "_OTHER_"

// Config contains options for creating a Tab.
type Config struct {
	// Log is the Logger used for logging information. If nil, Log is set to
	// slog.Default().
	Log *slog.Logger
	// Reporter receives non-fatal errors from feature dispatch and remote
	// message processing. If nil, errors are logged through Log.
	Reporter feature.Reporter
	// Store persists group and per-user property overrides. If nil, no
	// overrides apply and the group command is not registered.
	Store *propdb.DB
	// Groups maps group names to property key/value defaults. The group named
	// by GroupFallback applies to players of groups without an entry.
	Groups map[string]map[string]string
	// Sorter decides the team identifier of each player and with that the
	// ordering of nametag teams. If nil, a WeightedSorter with a default
	// weight of 50 is used.
	Sorter team.Sorter
	// PlayerList configures roster replication. DisablePlayerList turns the
	// feature off entirely.
	PlayerList        roster.Config
	DisablePlayerList bool
	// NameTags configures team replication. DisableNameTags turns the feature
	// off entirely.
	NameTags        team.Config
	DisableNameTags bool
	// DisableGroupCommand turns the "/tab group" command off.
	DisableGroupCommand bool
	// Bus publishes cross-server messages. It must be supplied by the host
	// after converting a UserConfig. If nil, join and quit events are not
	// replicated to other backend servers. DisableRemote turns the feature
	// off even when a bus is set.
	Bus           remote.Bus
	DisableRemote bool
	// ServerName is the name of this backend server, attached to outbound
	// cross-server join announcements.
	ServerName string
}

// UserConfig is the user configuration for a tablist instance. It may be
// serialised to TOML and can be converted to a Config by calling
// UserConfig.Config().
type UserConfig struct {
	Server struct {
		// Name is the name of this backend server as announced to the rest of
		// the network.
		Name string
	}
	Storage struct {
		// SaveProperties controls whether group and per-user property
		// overrides assigned through the command are saved and loaded. If
		// true, the default LevelDB store is used.
		SaveProperties bool
		// Folder is the folder the property store resides in.
		Folder string
	}
	PlayerList struct {
		// Enabled controls whether the player list is replicated at all.
		Enabled bool
		// AntiOverride keeps display names and latency authoritative by
		// correcting outbound packets produced by other sources.
		AntiOverride bool
		// Header and Footer are shown above and below the player list. Both
		// empty disables the header/footer push.
		Header, Footer string
	}
	NameTags struct {
		// Enabled controls whether nametag teams are replicated at all.
		Enabled bool
		// Collision controls whether players push each other. Per-player
		// overrides take precedence.
		Collision bool
		// RevertedCollisionWorlds lists worlds in which Collision is
		// inverted.
		RevertedCollisionWorlds []string
		// InvisibleNametags hides all nametags regardless of per-player
		// state.
		InvisibleNametags bool
		// DisabledWorlds lists worlds in which no teams are registered.
		DisabledWorlds []string
		// PollIntervalMillis is the cadence of the reconciliation poll in
		// milliseconds. Defaults to 500 when 0.
		PollIntervalMillis int
		// ServerMinorVersion is the minor protocol version of the server.
		// Collision cannot be controlled at runtime before 9.
		ServerMinorVersion int
	}
	Sorting struct {
		// Weights assigns an ordering weight between 0 and 99 to each group.
		// Lower weights sort higher in the player list.
		Weights map[string]int
		// DefaultWeight is the weight of groups without an entry in Weights.
		DefaultWeight int
	}
	// Groups maps group names to property key/value defaults, such as
	// tagprefix or tabsuffix. The group "_OTHER_" acts as a fallback.
	Groups map[string]map[string]string
	Remote struct {
		// Enabled controls whether join and quit events are replicated to
		// other backend servers over the bus supplied by the host.
		Enabled bool
	}
}

// Config converts a UserConfig to a Config, so that it may be used for
// creating a Tab. An error is returned if opening the property store failed.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	conf := Config{
		Log:        log,
		ServerName: strings.TrimSpace(uc.Server.Name),
		Groups:     cloneGroups(uc.Groups),
		Sorter: team.WeightedSorter{
			Weights:       maps.Clone(uc.Sorting.Weights),
			DefaultWeight: uc.Sorting.DefaultWeight,
		},
		PlayerList: roster.Config{
			AntiOverride: uc.PlayerList.AntiOverride,
			Header:       uc.PlayerList.Header,
			Footer:       uc.PlayerList.Footer,
		},
		DisablePlayerList: !uc.PlayerList.Enabled,
		NameTags: team.Config{
			CollisionRule:           uc.NameTags.Collision,
			RevertedCollisionWorlds: uc.NameTags.RevertedCollisionWorlds,
			InvisibleNametags:       uc.NameTags.InvisibleNametags,
			DisabledWorlds:          uc.NameTags.DisabledWorlds,
			PollInterval:            time.Duration(uc.NameTags.PollIntervalMillis) * time.Millisecond,
			ServerMinorVersion:      uc.NameTags.ServerMinorVersion,
		},
		DisableNameTags: !uc.NameTags.Enabled,
	}
	if uc.Storage.SaveProperties {
		store, err := propdb.Open(uc.Storage.Folder)
		if err != nil {
			return conf, fmt.Errorf("open property store: %w", err)
		}
		conf.Store = store
	}
	conf.DisableRemote = !uc.Remote.Enabled
	return conf, nil
}

// DefaultConfig returns a configuration with default values filled out.
func DefaultConfig() UserConfig {
	c := UserConfig{}
	c.Server.Name = "lobby"
	c.Storage.SaveProperties = true
	c.Storage.Folder = "properties"
	c.PlayerList.Enabled = true
	c.PlayerList.AntiOverride = true
	c.NameTags.Enabled = true
	c.NameTags.Collision = true
	c.NameTags.PollIntervalMillis = 500
	c.NameTags.ServerMinorVersion = 12
	c.Sorting.DefaultWeight = 50
	c.Groups = map[string]map[string]string{}
	return c
}

func cloneGroups(groups map[string]map[string]string) map[string]map[string]string {
	cloned := make(map[string]map[string]string, len(groups))
	for group, props := range groups {
		cloned[group] = maps.Clone(props)
	}
	return cloned
}
