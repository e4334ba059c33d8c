package team

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/df-mc/tablist/tab/player"
)

// teamNameLimit is the longest team identifier the peer accepts.
const teamNameLimit = 16

// Sorter deterministically computes the team identifier ordering a player
// among all others. Identifiers sort lexicographically; a changed identifier
// forces a full team re-registration.
type Sorter interface {
	TeamName(p *player.Player) string
}

// WeightedSorter orders players by the weight configured for their group,
// lower weights first, with the player name breaking ties. It is the default
// sorter used when the host supplies none.
type WeightedSorter struct {
	// Weights maps group names to their sorting weight. Groups without a
	// weight use DefaultWeight.
	Weights map[string]int
	// DefaultWeight is the weight of groups absent from Weights.
	DefaultWeight int
}

// TeamName ...
func (s WeightedSorter) TeamName(p *player.Player) string {
	weight, ok := s.Weights[p.Group()]
	if !ok {
		weight = s.DefaultWeight
	}
	if weight < 0 {
		weight = 0
	} else if weight > 99 {
		weight = 99
	}
	return truncateTeamName(fmt.Sprintf("%02d%s", weight, p.Name()))
}

// truncateTeamName fits name into the identifier limit. Truncation alone
// could collide for players sharing a long name prefix, so the cut part is
// replaced with a hash of the full key, keeping the result deterministic and
// unique per key.
func truncateTeamName(name string) string {
	if len(name) <= teamNameLimit {
		return name
	}
	suffix := strconv.FormatUint(xxhash.Sum64String(name), 36)
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return name[:teamNameLimit-len(suffix)] + suffix
}
