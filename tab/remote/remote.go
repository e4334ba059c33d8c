package remote

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/df-mc/tablist/tab/feature"
	"github.com/df-mc/tablist/tab/player"
	"github.com/google/uuid"
)

// FeatureRemote is the name the cross-server support feature registers under.
const FeatureRemote = "remote"

// Bus publishes envelopes to every other backend server in the network. The
// host platform supplies the transport, typically a redis pub/sub channel or
// a proxy plugin message channel.
type Bus interface {
	Publish(payload []byte) error
}

// Handler runs the same join and quit paths used for local connections. It is
// implemented by the dispatch core owning the player registry.
type Handler interface {
	Join(p *player.Player) error
	Quit(p *player.Player) error
}

// Reporter records non-fatal errors encountered while processing messages.
type Reporter interface {
	Report(err error)
}

// Support replicates join and quit events across backend servers. Local
// events are published to the bus and inbound messages maintain a table of
// remote replicas registered through the regular join path.
type Support struct {
	handler  Handler
	bus      Bus
	reporter Reporter
	log      *slog.Logger

	server string

	mu      sync.RWMutex
	players map[uuid.UUID]*player.Player
}

// NewSupport creates the cross-server support feature. The server name is
// attached to outbound join announcements so other sides can tell where a
// player lives.
func NewSupport(handler Handler, bus Bus, reporter Reporter, server string, log *slog.Logger) *Support {
	return &Support{
		handler:  handler,
		bus:      bus,
		reporter: reporter,
		log:      log.With("subsystem", "remote"),
		server:   server,
		players:  map[uuid.UUID]*player.Player{},
	}
}

// Name ...
func (s *Support) Name() string { return FeatureRemote }

// Unload drops every remote replica through the regular quit path so viewers
// see them leave.
func (s *Support) Unload() error {
	s.mu.Lock()
	replicas := make([]*player.Player, 0, len(s.players))
	for _, p := range s.players {
		replicas = append(replicas, p)
	}
	s.mu.Unlock()

	for _, p := range replicas {
		if err := s.handler.Quit(p); err != nil {
			s.reporter.Report(fmt.Errorf("unload remote replica %v: %w", p.Name(), err))
		}
		s.remove(p.UUID())
	}
	return nil
}

// HandleJoin announces a locally connecting player to the rest of the
// network. Joins of remote replicas are not re-published.
func (s *Support) HandleJoin(p *player.Player) error {
	if s.remote(p.UUID()) {
		return nil
	}
	return s.publish(&PlayerJoin{PlayerID: p.UUID(), Name: p.Name(), Group: p.Group(), Server: s.server})
}

// HandleQuit announces a locally disconnecting player to the rest of the
// network. Quits of remote replicas are not re-published.
func (s *Support) HandleQuit(p *player.Player) error {
	if s.remote(p.UUID()) {
		return nil
	}
	return s.publish(&PlayerQuit{PlayerID: p.UUID()})
}

// HandleMessage decodes an inbound envelope and applies it to the local
// state. Malformed envelopes are reported and discarded.
func (s *Support) HandleMessage(payload []byte) error {
	m, err := Decode(payload)
	if err != nil {
		s.reporter.Report(err)
		return nil
	}
	return m.Process(s)
}

// Lookup finds the remote replica registered for the given identifier.
func (s *Support) Lookup(id uuid.UUID) (*player.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	return p, ok
}

// Count returns the number of remote replicas currently registered.
func (s *Support) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

func (s *Support) processJoin(m *PlayerJoin) error {
	if _, ok := s.Lookup(m.PlayerID); ok {
		s.log.Debug("Ignoring duplicate join of remote player.", "name", m.Name)
		return nil
	}
	p := player.Config{
		UUID:   m.PlayerID,
		Name:   m.Name,
		Group:  m.Group,
		Server: m.Server,
	}.New()

	s.mu.Lock()
	s.players[m.PlayerID] = p
	s.mu.Unlock()

	s.log.Debug("Registering remote player.", "name", m.Name, "server", m.Server)
	if err := s.handler.Join(p); err != nil {
		s.remove(m.PlayerID)
		return err
	}
	p.MarkLoaded()
	return nil
}

func (s *Support) processQuit(m *PlayerQuit) error {
	p, ok := s.Lookup(m.PlayerID)
	if !ok {
		s.reporter.Report(fmt.Errorf("%w: quit of remote player %v", feature.ErrPlayerNotFound, m.PlayerID))
		return nil
	}
	s.log.Debug("Removing remote player.", "name", p.Name())
	err := s.handler.Quit(p)
	s.remove(m.PlayerID)
	return err
}

func (s *Support) publish(m Message) error {
	if s.bus == nil {
		return nil
	}
	if err := s.bus.Publish(Encode(m)); err != nil {
		return fmt.Errorf("publish remote message: %w", err)
	}
	return nil
}

func (s *Support) remote(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.players[id]
	return ok
}

func (s *Support) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.players, id)
	s.mu.Unlock()
}
