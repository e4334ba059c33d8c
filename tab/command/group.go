// Package command implements chat command features driven through the
// dispatch core's command preprocessing event.
package command

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/df-mc/tablist/tab/player"
)

// FeatureGroupCommand is the name the group command feature registers under.
const FeatureGroupCommand = "command-group"

// groupFallback matches every group when used as the group argument.
const groupFallback = "_OTHER_"

// properties assignable through the group command.
var assignableProperties = []string{
	player.PropertyTabPrefix,
	player.PropertyTabSuffix,
	player.PropertyCustomName,
	player.PropertyTagPrefix,
	player.PropertyTagSuffix,
}

// Store persists group property overrides. *propdb.DB implements it.
type Store interface {
	SetGroupProperty(group, property, value string) error
	RemoveGroupProperty(group, property string) error
	GroupProperties(group string) (map[string]string, error)
}

// Refresher re-resolves all features for a player after its properties
// changed. The dispatch core implements it.
type Refresher interface {
	Refresh(p *player.Player, force bool) error
}

// GroupCommand consumes "/tab group <group> <property> [value...]" commands,
// persists the assignment and force-refreshes every affected player.
type GroupCommand struct {
	players   *player.Registry
	store     Store
	refresher Refresher
	log       *slog.Logger
}

// NewGroupCommand creates the group command feature.
func NewGroupCommand(players *player.Registry, store Store, refresher Refresher, log *slog.Logger) *GroupCommand {
	if log == nil {
		log = slog.Default()
	}
	return &GroupCommand{players: players, store: store, refresher: refresher, log: log.With("subsystem", "command.group")}
}

// Name ...
func (c *GroupCommand) Name() string { return FeatureGroupCommand }

// HandleCommand intercepts group assignment commands. Commands not addressed
// to this feature pass through uncancelled.
func (c *GroupCommand) HandleCommand(sender *player.Player, command string) (bool, error) {
	fields := strings.Fields(command)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "/tab") || !strings.EqualFold(fields[1], "group") {
		return false, nil
	}
	args := fields[2:]
	if len(args) < 2 {
		c.log.Debug("Group command with missing arguments.", "sender", sender.Name(), "command", command)
		return true, nil
	}
	group, property := args[0], strings.ToLower(args[1])
	value := strings.Join(args[2:], " ")

	if property == "remove" {
		if err := c.removeGroup(group); err != nil {
			return true, err
		}
		return true, c.refreshGroup(group)
	}
	if !slices.Contains(assignableProperties, property) {
		c.log.Debug("Group command with unknown property.", "sender", sender.Name(), "property", property)
		return true, nil
	}
	var err error
	if value == "" {
		err = c.store.RemoveGroupProperty(group, property)
	} else {
		err = c.store.SetGroupProperty(group, property, value)
	}
	if err != nil {
		return true, err
	}
	return true, c.refreshGroup(group)
}

// removeGroup deletes every property stored for the group.
func (c *GroupCommand) removeGroup(group string) error {
	properties, err := c.store.GroupProperties(group)
	if err != nil {
		return err
	}
	for property := range properties {
		if err := c.store.RemoveGroupProperty(group, property); err != nil {
			return err
		}
	}
	return nil
}

// refreshGroup force-refreshes every player the group assignment affects.
func (c *GroupCommand) refreshGroup(group string) error {
	for _, p := range c.players.All() {
		if p.Group() != group && group != groupFallback {
			continue
		}
		if err := c.refresher.Refresh(p, true); err != nil {
			return err
		}
	}
	return nil
}
