package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/nevi/revolt-chess-bot/internal/entitycache"
	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

// Phase is the supervisor's lifecycle position on the event stream.
type Phase string

const (
	PhaseDisconnected     Phase = "disconnected"
	PhaseConnecting       Phase = "connecting"
	PhaseAwaitingSnapshot Phase = "awaiting_snapshot"
	PhaseLive             Phase = "live"
)

// EventSocket is the stream transport the supervisor drives.
// *revoltfast.Socket implements it.
type EventSocket interface {
	Dial(ctx context.Context) error
	Authenticate(ctx context.Context, token string) error
	ReadEvent(ctx context.Context) (any, error)
	SendPing(ctx context.Context, token int64) error
	Drop(code websocket.StatusCode, reason string) error
	Close(code websocket.StatusCode, reason string) error
}

// Dispatcher receives inbound messages from the live stream. Dispatch must
// not block; the read loop is the delivery-order source of truth.
type Dispatcher interface {
	Dispatch(msg *revoltfast.Message)
}

// Presence updates the bot's displayed status after a snapshot load. It is
// satisfied by the REST client.
type Presence interface {
	EditStatus(ctx context.Context, text string) error
}

// Config carries the supervisor's tunables.
type Config struct {
	Token                string
	MaxReconnectAttempts int
	HeartbeatDelay       time.Duration

	// Backoff computes the delay before reconnect attempt n. Defaults to
	// revoltfast.ReconnectBackoff.
	Backoff func(attempt int) time.Duration
}

// Supervisor owns the websocket lifecycle: dial, authenticate, load the
// Ready snapshot into the cache, then pump events to the dispatcher. On
// stream failure it reconnects with capped exponential backoff; the attempt
// budget bounds consecutive failures only and resets once a connection
// reaches the live phase.
type Supervisor struct {
	cfg      Config
	sock     EventSocket
	cache    *entitycache.Cache
	presence Presence
	disp     Dispatcher
	logger   *zap.Logger

	phaseM sync.Mutex
	phase  Phase
}

func NewSupervisor(cfg Config, sock EventSocket, cache *entitycache.Cache, presence Presence, disp Dispatcher, logger *zap.Logger) *Supervisor {
	if cfg.HeartbeatDelay <= 0 {
		cfg.HeartbeatDelay = 10 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.Backoff == nil {
		cfg.Backoff = revoltfast.ReconnectBackoff
	}
	return &Supervisor{
		cfg:      cfg,
		sock:     sock,
		cache:    cache,
		presence: presence,
		disp:     disp,
		logger:   logger,
		phase:    PhaseDisconnected,
	}
}

func (s *Supervisor) Phase() Phase {
	s.phaseM.Lock()
	defer s.phaseM.Unlock()
	return s.phase
}

func (s *Supervisor) setPhase(p Phase) {
	s.phaseM.Lock()
	s.phase = p
	s.phaseM.Unlock()
}

// Run drives connect/serve/reconnect until ctx is cancelled or the budget
// of consecutive failed connections is exhausted.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return ctx.Err()
		}

		live, err := s.serveOnce(ctx)
		if ctx.Err() != nil {
			s.shutdown()
			return ctx.Err()
		}
		if live {
			attempt = 0
		}

		attempt++
		if attempt > s.cfg.MaxReconnectAttempts {
			s.shutdown()
			return fmt.Errorf("gateway: giving up after %d reconnect attempts: %w",
				s.cfg.MaxReconnectAttempts, err)
		}
		delay := s.cfg.Backoff(attempt)
		s.logger.Warn("gateway_reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		s.setPhase(PhaseDisconnected)

		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// serveOnce runs one full connection: dial, authenticate, snapshot, live
// loop. It reports whether the connection reached the live phase and
// releases the connection when the cycle ends.
func (s *Supervisor) serveOnce(ctx context.Context) (live bool, err error) {
	s.setPhase(PhaseConnecting)
	if err := s.sock.Dial(ctx); err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = s.sock.Drop(websocket.StatusInternalError, "connection cycle ended")
		}
	}()

	if err := s.sock.Authenticate(ctx, s.cfg.Token); err != nil {
		return false, err
	}
	if err := s.awaitAuthenticated(ctx); err != nil {
		return false, err
	}

	s.setPhase(PhaseAwaitingSnapshot)
	if err := s.awaitSnapshot(ctx); err != nil {
		return false, err
	}

	s.setPhase(PhaseLive)
	s.logger.Info("gateway_live")
	return true, s.live(ctx)
}

func (s *Supervisor) awaitAuthenticated(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for {
		ev, err := s.sock.ReadEvent(waitCtx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case *revoltfast.AuthenticatedEvent:
			return nil
		case *revoltfast.ErrorEvent:
			return fmt.Errorf("gateway: authentication rejected: %s", e.ID)
		default:
			// Anything else before Authenticated is out of protocol order;
			// keep reading, the peer may interleave.
		}
	}
}

// awaitSnapshot consumes exactly one Ready event, replaces the entity cache
// wholesale and primes the heartbeat cycle with token zero.
func (s *Supervisor) awaitSnapshot(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for {
		ev, err := s.sock.ReadEvent(waitCtx)
		if err != nil {
			return err
		}
		ready, ok := ev.(*revoltfast.ReadyEvent)
		if !ok {
			continue
		}
		s.loadSnapshot(ctx, ready)
		return s.sock.SendPing(ctx, 0)
	}
}

func (s *Supervisor) loadSnapshot(ctx context.Context, ready *revoltfast.ReadyEvent) {
	loadCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	kinds := []struct {
		kind     string
		entities map[string][]byte
	}{
		{revoltfast.KindUser, rawByID(ready.Users, func(u revoltfast.User) string { return u.ID })},
		{revoltfast.KindServer, rawByID(ready.Servers, func(v revoltfast.Server) string { return v.ID })},
		{revoltfast.KindChannel, rawByID(ready.Channels, func(c revoltfast.Channel) string { return c.ID })},
		{revoltfast.KindEmoji, rawByID(ready.Emojis, func(e revoltfast.Emoji) string { return e.ID })},
	}
	for _, k := range kinds {
		if err := s.cache.BulkLoad(loadCtx, k.kind, k.entities); err != nil {
			// A partial cache degrades to read-through fetches; the stream
			// stays up.
			s.logger.Error("snapshot_load_failed",
				zap.String("kind", k.kind),
				zap.Error(err))
		}
	}

	servers, err := s.cache.Count(loadCtx, revoltfast.KindServer)
	if err != nil {
		s.logger.Warn("server_count_failed", zap.Error(err))
		return
	}
	if s.presence != nil {
		if err := s.presence.EditStatus(loadCtx, fmt.Sprintf("servers: %d", servers)); err != nil {
			s.logger.Warn("presence_update_failed", zap.Error(err))
		}
	}
	s.logger.Info("snapshot_loaded",
		zap.Int("users", len(ready.Users)),
		zap.Int("servers", len(ready.Servers)),
		zap.Int("channels", len(ready.Channels)),
		zap.Int("emojis", len(ready.Emojis)))
}

// live pumps the event stream. Pong echoes are deferred off the read loop so
// a slow write can never stall message delivery.
func (s *Supervisor) live(ctx context.Context) error {
	for {
		ev, err := s.sock.ReadEvent(ctx)
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case *revoltfast.MessageEvent:
			s.disp.Dispatch(&e.Message)
		case *revoltfast.PongEvent:
			s.scheduleHeartbeat(ctx, e.Data)
		case *revoltfast.ErrorEvent:
			return fmt.Errorf("gateway: %w", e)
		case *revoltfast.ReadyEvent:
			// Late duplicate snapshot; refresh the cache but do not restart
			// the heartbeat cycle.
			s.loadSnapshot(ctx, e)
		}
	}
}

// scheduleHeartbeat echoes the pong token back as a ping after the
// configured delay. Cancelled with ctx so a dead connection leaks nothing.
func (s *Supervisor) scheduleHeartbeat(ctx context.Context, token int64) {
	timer := time.NewTimer(s.cfg.HeartbeatDelay)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := s.sock.SendPing(ctx, token); err != nil {
			s.logger.Debug("heartbeat_send_failed", zap.Error(err))
		}
	}()
}

// rawByID re-serializes snapshot entities into the cache's raw-JSON form.
func rawByID[T any](entities []T, id func(T) string) map[string][]byte {
	out := make(map[string][]byte, len(entities))
	for _, e := range entities {
		raw, err := json.Marshal(e)
		if err != nil {
			continue
		}
		out[id(e)] = raw
	}
	return out
}

func (s *Supervisor) shutdown() {
	s.setPhase(PhaseDisconnected)
	_ = s.sock.Close(websocket.StatusNormalClosure, "shutting down")
}
