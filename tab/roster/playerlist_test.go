package roster

import (
	"testing"

	"github.com/df-mc/tablist/tab/player"
	"github.com/df-mc/tablist/tab/protocol"
	"github.com/google/uuid"
)

// mapSource serves property values from a nested map keyed by player name.
type mapSource struct {
	values map[string]map[string]string
}

func (s mapSource) PropertyValue(p *player.Player, key string) string {
	return s.values[p.Name()][key]
}

func newListPlayer(name string) (*player.Player, *recordingConn) {
	conn := &recordingConn{}
	p := player.Config{UUID: uuid.New(), Name: name, Version: 21, Conn: conn}.New()
	return p, conn
}

func testPlayerList(source player.PropertySource, cfg Config) (*PlayerList, *player.Registry) {
	reg := player.NewRegistry()
	pl := NewPlayerList(reg, &countingHooks{}, source, testLogger(), cfg)
	return pl, reg
}

func TestPlayerListJoinFanOut(t *testing.T) {
	t.Parallel()

	source := mapSource{values: map[string]map[string]string{
		"Steve": {player.PropertyTabPrefix: "&c[Admin] "},
	}}
	pl, reg := testPlayerList(source, Config{AntiOverride: true})

	steve, steveConn := newListPlayer("Steve")
	reg.Add(steve)
	if err := pl.HandleJoin(steve); err != nil {
		t.Fatalf("HandleJoin returned error: %v", err)
	}
	steve.MarkLoaded()

	// Steve's own roster holds his own entry with the formatted name.
	r, ok := pl.Roster(steve)
	if !ok {
		t.Fatalf("expected a roster for the joined player")
	}
	e, ok := r.Entry(steve.UUID())
	if !ok {
		t.Fatalf("expected own entry tracked")
	}
	if e.DisplayName == nil || e.DisplayName.Text != "§c[Admin] Steve" {
		t.Fatalf("own display name = %v, want §c[Admin] Steve", e.DisplayName)
	}

	alex, alexConn := newListPlayer("Alex")
	reg.Add(alex)
	if err := pl.HandleJoin(alex); err != nil {
		t.Fatalf("HandleJoin returned error: %v", err)
	}
	alex.MarkLoaded()

	// Alex sees both players, Steve was told about Alex.
	alexRoster, _ := pl.Roster(alex)
	if _, ok := alexRoster.Entry(steve.UUID()); !ok {
		t.Fatalf("expected the new roster seeded with existing players")
	}
	if _, ok := r.Entry(alex.UUID()); !ok {
		t.Fatalf("expected existing rosters to learn about the new player")
	}
	// Alex has no properties configured, so his entry falls back to team
	// rendering on every connection.
	if e, _ := r.Entry(alex.UUID()); e.DisplayName != nil {
		t.Fatalf("expected nil display name without properties, got %v", e.DisplayName)
	}

	if len(steveConn.infoPackets()) == 0 || len(alexConn.infoPackets()) == 0 {
		t.Fatalf("expected info packets on both connections")
	}
}

func TestPlayerListQuitRemovesEverywhere(t *testing.T) {
	t.Parallel()

	pl, reg := testPlayerList(mapSource{}, Config{AntiOverride: true})

	steve, _ := newListPlayer("Steve")
	alex, _ := newListPlayer("Alex")
	for _, p := range []*player.Player{steve, alex} {
		reg.Add(p)
		if err := pl.HandleJoin(p); err != nil {
			t.Fatalf("HandleJoin returned error: %v", err)
		}
		p.MarkLoaded()
	}

	if err := pl.HandleQuit(alex); err != nil {
		t.Fatalf("HandleQuit returned error: %v", err)
	}
	reg.Remove(alex.UUID())

	if _, ok := pl.Roster(alex); ok {
		t.Fatalf("expected the departing player's roster dropped")
	}
	r, _ := pl.Roster(steve)
	if _, ok := r.Entry(alex.UUID()); ok {
		t.Fatalf("expected the entry removed from remaining rosters")
	}
	if r.ExpectedCount() != 1 {
		t.Fatalf("ExpectedCount = %v, want only the remaining entry", r.ExpectedCount())
	}
}

func TestPlayerListRefresh(t *testing.T) {
	t.Parallel()

	source := mapSource{values: map[string]map[string]string{}}
	pl, reg := testPlayerList(source, Config{AntiOverride: true})

	steve, conn := newListPlayer("Steve")
	reg.Add(steve)
	_ = pl.HandleJoin(steve)
	steve.MarkLoaded()
	before := len(conn.packets)

	// Without a property change and without force, nothing is pushed.
	if err := pl.Refresh(steve, false); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if len(conn.packets) != before {
		t.Fatalf("expected no packets for an unchanged refresh")
	}

	source.values["Steve"] = map[string]string{player.PropertyCustomName: "&bWanderer"}
	if err := pl.Refresh(steve, false); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	infos := conn.infoPackets()
	last := infos[len(infos)-1]
	if last.Action != protocol.UpdateDisplayName {
		t.Fatalf("last action = %v, want display name update", last.Action)
	}
	if last.Entries[0].DisplayName.Text != "§bWanderer" {
		t.Fatalf("pushed display name = %q", last.Entries[0].DisplayName.Text)
	}

	// The pushed name becomes the new expectation answered to the dispatch
	// core during packet reconciliation.
	got := pl.HandleDisplayNameChange(steve, steve.UUID())
	if got == nil || got.Text != "§bWanderer" {
		t.Fatalf("HandleDisplayNameChange = %v, want §bWanderer", got)
	}
}

func TestPlayerListVanish(t *testing.T) {
	t.Parallel()

	pl, reg := testPlayerList(mapSource{}, Config{})

	steve, _ := newListPlayer("Steve")
	alex, alexConn := newListPlayer("Alex")
	for _, p := range []*player.Player{steve, alex} {
		reg.Add(p)
		_ = pl.HandleJoin(p)
		p.MarkLoaded()
	}

	steve.SetVanished(true)
	if err := pl.HandleVanishChange(steve); err != nil {
		t.Fatalf("HandleVanishChange returned error: %v", err)
	}
	infos := alexConn.infoPackets()
	last := infos[len(infos)-1]
	if last.Action != protocol.UpdateListed || last.Entries[0].Listed {
		t.Fatalf("expected an unlisted update, got action %v listed %v", last.Action, last.Entries[0].Listed)
	}
	r, _ := pl.Roster(alex)
	if e, _ := r.Entry(steve.UUID()); e.Listed {
		t.Fatalf("expected tracked entry unlisted")
	}
}

func TestPlayerListHeaderFooter(t *testing.T) {
	t.Parallel()

	pl, reg := testPlayerList(mapSource{}, Config{Header: "&6Welcome", Footer: "&7play.example.net"})

	steve, conn := newListPlayer("Steve")
	reg.Add(steve)
	_ = pl.HandleJoin(steve)

	var hf *protocol.HeaderFooter
	for _, pk := range conn.packets {
		if v, ok := pk.(*protocol.HeaderFooter); ok {
			hf = v
		}
	}
	if hf == nil {
		t.Fatalf("expected a header/footer packet on join")
	}
	if hf.Header.Text != "§6Welcome" || hf.Footer.Text != "§7play.example.net" {
		t.Fatalf("header/footer = %q/%q", hf.Header.Text, hf.Footer.Text)
	}

	if err := pl.Unload(); err != nil {
		t.Fatalf("Unload returned error: %v", err)
	}
	last := conn.packets[len(conn.packets)-1]
	hf, ok := last.(*protocol.HeaderFooter)
	if !ok || !hf.Header.Zero() || !hf.Footer.Zero() {
		t.Fatalf("expected a clearing header/footer on unload, got %#v", last)
	}
	if _, ok := pl.Roster(steve); ok {
		t.Fatalf("expected rosters dropped on unload")
	}
}
