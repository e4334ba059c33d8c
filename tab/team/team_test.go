package team

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// recordingConn captures every packet written to a connection.
type recordingConn struct {
	packets []protocol.Packet
}

func (c *recordingConn) WritePacket(pk protocol.Packet) error {
	c.packets = append(c.packets, pk)
	return nil
}

func (c *recordingConn) teamPackets() []*protocol.Team {
	var out []*protocol.Team
	for _, pk := range c.packets {
		if team, ok := pk.(*protocol.Team); ok {
			out = append(out, team)
		}
	}
	return out
}

// manualScheduler hands the poll function back to the test instead of running
// it on a ticker.
type manualScheduler struct {
	fn      func()
	stopped bool
}

func (s *manualScheduler) RepeatMeasured(_ time.Duration, _, _ string, fn func()) (stop func()) {
	s.fn = fn
	return func() { s.stopped = true }
}

// mapSource serves property values from a nested map keyed by player name.
type mapSource struct {
	values map[string]map[string]string
}

func (s mapSource) PropertyValue(p *player.Player, key string) string {
	return s.values[p.Name()][key]
}

func newTeamPlayer(name, group, world string) (*player.Player, *recordingConn) {
	conn := &recordingConn{}
	p := player.Config{UUID: uuid.New(), Name: name, Group: group, World: world, Conn: conn}.New()
	return p, conn
}

func testTeams(source player.PropertySource, sorter Sorter, cfg Config) (*Teams, *player.Registry, *manualScheduler) {
	reg := player.NewRegistry()
	sched := &manualScheduler{}
	return NewTeams(reg, sorter, source, sched, testLogger(), cfg), reg, sched
}

func TestTeamsExclusiveSingleMember(t *testing.T) {
	t.Parallel()

	source := mapSource{values: map[string]map[string]string{
		"Steve": {player.PropertyTagPrefix: "&c[Admin] "},
	}}
	sorter := WeightedSorter{Weights: map[string]int{"admin": 0}, DefaultWeight: 50}
	teams, reg, _ := testTeams(source, sorter, Config{CollisionRule: true, ServerMinorVersion: 12})

	steve, steveConn := newTeamPlayer("Steve", "admin", "world")
	reg.Add(steve)
	if err := teams.HandleJoin(steve); err != nil {
		t.Fatalf("HandleJoin returned error: %v", err)
	}
	steve.MarkLoaded()

	if got, want := steve.TeamName(), "00Steve"; got != want {
		t.Fatalf("team identifier = %q, want %q", got, want)
	}
	created := steveConn.teamPackets()
	if len(created) != 1 || created[0].Mode != protocol.TeamCreate {
		t.Fatalf("expected exactly one team create, got %v", created)
	}
	pk := created[0]
	if len(pk.Members) != 1 || pk.Members[0] != "Steve" {
		t.Fatalf("team members = %v, want exactly the owner", pk.Members)
	}
	if pk.Prefix != "§c[Admin] " {
		t.Fatalf("team prefix = %q", pk.Prefix)
	}
	if pk.NameTagVisibility != protocol.RuleAlways || pk.CollisionRule != protocol.RuleAlways {
		t.Fatalf("rules = %q/%q, want always/always", pk.NameTagVisibility, pk.CollisionRule)
	}

	// A second player gets a team of its own; the two never merge.
	alex, alexConn := newTeamPlayer("Alex", "default", "world")
	reg.Add(alex)
	if err := teams.HandleJoin(alex); err != nil {
		t.Fatalf("HandleJoin returned error: %v", err)
	}
	alex.MarkLoaded()
	if alex.TeamName() == steve.TeamName() {
		t.Fatalf("expected distinct team identifiers")
	}
	var names []string
	for _, pk := range alexConn.teamPackets() {
		names = append(names, pk.Name)
	}
	if len(names) != 2 {
		t.Fatalf("expected both teams shown to the new player, got %v", names)
	}
}

func TestTeamsIdentifierChangeReRegisters(t *testing.T) {
	t.Parallel()

	weights := map[string]int{"default": 50}
	sorter := WeightedSorter{Weights: weights, DefaultWeight: 50}
	teams, reg, _ := testTeams(mapSource{}, sorter, Config{ServerMinorVersion: 12})

	steve, conn := newTeamPlayer("Steve", "default", "world")
	reg.Add(steve)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()
	old := steve.TeamName()

	// Same identifier: the team is updated in place.
	teams.UpdateTeam(steve)
	pks := conn.teamPackets()
	if last := pks[len(pks)-1]; last.Mode != protocol.TeamUpdate || last.Name != old {
		t.Fatalf("expected in-place update of %q, got %v %q", old, last.Mode, last.Name)
	}

	// Changed weight, changed identifier: remove then create.
	weights["default"] = 10
	teams.UpdateTeam(steve)
	if got, want := steve.TeamName(), "10Steve"; got != want {
		t.Fatalf("team identifier = %q, want %q", got, want)
	}
	pks = conn.teamPackets()
	removal, creation := pks[len(pks)-2], pks[len(pks)-1]
	if removal.Mode != protocol.TeamRemove || removal.Name != old {
		t.Fatalf("expected removal of %q, got %v %q", old, removal.Mode, removal.Name)
	}
	if creation.Mode != protocol.TeamCreate || creation.Name != "10Steve" {
		t.Fatalf("expected creation of the new team, got %v %q", creation.Mode, creation.Name)
	}
}

func TestTeamsDisabledWorldTransitions(t *testing.T) {
	t.Parallel()

	teams, reg, _ := testTeams(mapSource{}, nil, Config{DisabledWorlds: []string{"duel"}, ServerMinorVersion: 12})

	steve, conn := newTeamPlayer("Steve", "default", "world")
	reg.Add(steve)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()
	if len(conn.teamPackets()) != 1 {
		t.Fatalf("expected the team registered in an enabled world")
	}

	// Entering a disabled world removes the team once.
	steve.SetWorld("duel")
	_ = teams.HandleWorldChange(steve, "world", "duel")
	pks := conn.teamPackets()
	if last := pks[len(pks)-1]; last.Mode != protocol.TeamRemove {
		t.Fatalf("expected removal on entering a disabled world, got %v", last.Mode)
	}
	count := len(pks)

	// Refreshing inside the disabled world pushes nothing.
	if err := teams.Refresh(steve, true); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(conn.teamPackets()) != count {
		t.Fatalf("expected no team packets while in a disabled world")
	}

	// Leaving it registers the team again.
	steve.SetWorld("world")
	_ = teams.HandleWorldChange(steve, "duel", "world")
	pks = conn.teamPackets()
	if last := pks[len(pks)-1]; last.Mode != protocol.TeamCreate {
		t.Fatalf("expected re-registration on leaving a disabled world, got %v", last.Mode)
	}

	// A switch between two enabled worlds updates in place.
	steve.SetWorld("hub")
	_ = teams.HandleWorldChange(steve, "world", "hub")
	pks = conn.teamPackets()
	if last := pks[len(pks)-1]; last.Mode != protocol.TeamUpdate {
		t.Fatalf("expected in-place update between enabled worlds, got %v", last.Mode)
	}
}

func TestTeamsVisibility(t *testing.T) {
	t.Parallel()

	teams, reg, _ := testTeams(mapSource{}, nil, Config{ServerMinorVersion: 12})
	steve, _ := newTeamPlayer("Steve", "default", "world")
	alex, _ := newTeamPlayer("Alex", "default", "world")
	reg.Add(steve)
	reg.Add(alex)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()

	if !teams.Visibility(steve, alex) {
		t.Fatalf("expected nametag visible by default")
	}
	steve.HideNametagFrom(alex.UUID())
	if teams.Visibility(steve, alex) {
		t.Fatalf("expected nametag hidden from this viewer")
	}
	steve.ShowNametag(alex.UUID())
	steve.HideNametag()
	if teams.Visibility(steve, alex) {
		t.Fatalf("expected nametag hidden globally")
	}
	steve.ShowNametagAll()

	hidden, regHidden, _ := testTeams(mapSource{}, nil, Config{InvisibleNametags: true, ServerMinorVersion: 12})
	regHidden.Add(steve)
	if hidden.Visibility(steve, alex) {
		t.Fatalf("expected nametag hidden by configuration")
	}
}

func TestTeamsPollInvisibility(t *testing.T) {
	t.Parallel()

	teams, reg, sched := testTeams(mapSource{}, nil, Config{ServerMinorVersion: 8})
	if err := teams.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if sched.fn == nil {
		t.Fatalf("expected the reconciliation poll scheduled on load")
	}

	steve, conn := newTeamPlayer("Steve", "default", "world")
	alex, _ := newTeamPlayer("Alex", "default", "world")
	reg.Add(steve)
	reg.Add(alex)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()
	_ = teams.HandleJoin(alex)
	alex.MarkLoaded()
	count := len(conn.teamPackets())

	// No state change, no push.
	sched.fn()
	if len(conn.teamPackets()) != count {
		t.Fatalf("expected a quiet poll without transitions")
	}

	// The invisibility transition is pushed once and visibility flips off.
	steve.SetInvisibilityEffect(true)
	sched.fn()
	pks := conn.teamPackets()
	if len(pks) == count {
		t.Fatalf("expected a team update after the invisibility transition")
	}
	if last := pks[len(pks)-1]; last.NameTagVisibility != protocol.RuleNever {
		t.Fatalf("visibility rule = %q, want never", last.NameTagVisibility)
	}
	count = len(pks)
	sched.fn()
	if len(conn.teamPackets()) != count {
		t.Fatalf("expected no repeated push without a new transition")
	}

	// Effect gone: pushed once more, visible again.
	steve.SetInvisibilityEffect(false)
	sched.fn()
	pks = conn.teamPackets()
	if last := pks[len(pks)-1]; last.NameTagVisibility != protocol.RuleAlways {
		t.Fatalf("visibility rule = %q, want always", last.NameTagVisibility)
	}

	if err := teams.Unload(); err != nil {
		t.Fatalf("Unload returned error: %v", err)
	}
	if !sched.stopped {
		t.Fatalf("expected the poll stopped on unload")
	}
}

func TestTeamsPollCollision(t *testing.T) {
	t.Parallel()

	cfg := Config{CollisionRule: true, RevertedCollisionWorlds: []string{"spawn"}, ServerMinorVersion: 12}
	teams, reg, sched := testTeams(mapSource{}, nil, cfg)
	if err := teams.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	steve, conn := newTeamPlayer("Steve", "default", "world")
	reg.Add(steve)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()

	// In a normal world the configured rule holds and the poll stays quiet.
	count := len(conn.teamPackets())
	sched.fn()
	if len(conn.teamPackets()) != count {
		t.Fatalf("expected no collision push without a change")
	}

	// In a reverted world the rule flips on the next poll.
	steve.SetWorld("spawn")
	sched.fn()
	pks := conn.teamPackets()
	if last := pks[len(pks)-1]; last.CollisionRule != protocol.RuleNever {
		t.Fatalf("collision rule = %q, want never in a reverted world", last.CollisionRule)
	}

	// Disguised players keep the configured rule even in reverted worlds.
	steve.SetDisguised(true)
	sched.fn()
	pks = conn.teamPackets()
	if last := pks[len(pks)-1]; last.CollisionRule != protocol.RuleAlways {
		t.Fatalf("collision rule = %q, want always while disguised", last.CollisionRule)
	}

	// An explicit override beats everything.
	forced := false
	steve.SetDisguised(false)
	steve.SetForcedCollision(&forced)
	sched.fn()
	pks = conn.teamPackets()
	if last := pks[len(pks)-1]; last.CollisionRule != protocol.RuleNever {
		t.Fatalf("collision rule = %q, want never with an override", last.CollisionRule)
	}
	if teams.Collision(steve) {
		t.Fatalf("Collision must honour the override")
	}

	// Before 1.9 the collision rule cannot be adjusted at runtime at all.
	old, regOld, schedOld := testTeams(mapSource{}, nil, Config{CollisionRule: true, RevertedCollisionWorlds: []string{"spawn"}, ServerMinorVersion: 8})
	if err := old.Load(); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	legacy, legacyConn := newTeamPlayer("Legacy", "default", "spawn")
	regOld.Add(legacy)
	_ = old.HandleJoin(legacy)
	legacy.MarkLoaded()
	count = len(legacyConn.teamPackets())
	schedOld.fn()
	if len(legacyConn.teamPackets()) != count {
		t.Fatalf("expected no collision reconciliation before 1.9")
	}
}

func TestTeamsQuitCleansViewerState(t *testing.T) {
	t.Parallel()

	teams, reg, _ := testTeams(mapSource{}, nil, Config{ServerMinorVersion: 12})
	steve, _ := newTeamPlayer("Steve", "default", "world")
	alex, _ := newTeamPlayer("Alex", "default", "world")
	reg.Add(steve)
	reg.Add(alex)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()
	_ = teams.HandleJoin(alex)
	alex.MarkLoaded()

	steve.HideNametagFrom(alex.UUID())
	if err := teams.HandleQuit(alex); err != nil {
		t.Fatalf("HandleQuit returned error: %v", err)
	}
	reg.Remove(alex.UUID())
	if steve.NametagHiddenFrom(alex.UUID()) {
		t.Fatalf("expected per-viewer state of the departed player cleared")
	}
}

func TestTeamsPausedHandling(t *testing.T) {
	t.Parallel()

	teams, reg, _ := testTeams(mapSource{}, nil, Config{ServerMinorVersion: 12})
	steve, conn := newTeamPlayer("Steve", "default", "world")
	reg.Add(steve)
	_ = teams.HandleJoin(steve)
	steve.MarkLoaded()
	count := len(conn.teamPackets())

	steve.PauseTeamHandling(true)
	teams.UpdateTeamData(steve)
	teams.RegisterTeam(steve)
	teams.UnregisterTeam(steve)
	if len(conn.teamPackets()) != count {
		t.Fatalf("expected no team packets while handling is paused")
	}
	steve.PauseTeamHandling(false)
	teams.UpdateTeamData(steve)
	if len(conn.teamPackets()) != count+1 {
		t.Fatalf("expected updates to resume after unpausing")
	}
}
