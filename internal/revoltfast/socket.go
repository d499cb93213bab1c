package revoltfast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type SocketState string

const (
	SockDisconnected SocketState = "disconnected"
	SockConnecting   SocketState = "connecting"
	SockConnected    SocketState = "connected"
	SockClosed       SocketState = "closed"
)

type StateCallback func(state SocketState)

// Socket is one logical websocket connection to the event stream. It does a
// single dial per Dial call; the supervisor owns reconnect policy.
type Socket struct {
	wsURL string

	conn   *websocket.Conn
	state  SocketState
	stateM sync.RWMutex

	// wsjson.Write is not safe for concurrent writers; heartbeat timers and
	// the supervisor can overlap.
	writeM sync.Mutex

	stateCbs []StateCallback
	cbM      sync.RWMutex
}

func NewSocket(wsURL string) *Socket {
	return &Socket{wsURL: wsURL, state: SockDisconnected}
}

func (s *Socket) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	s.stateCbs = append(s.stateCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) State() SocketState {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

// Dial opens the stream. One attempt; callers schedule retries.
func (s *Socket) Dial(ctx context.Context) error {
	s.setState(SockConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.setState(SockDisconnected)
		return err
	}
	// Ready snapshots for large sessions exceed the 32KiB default.
	conn.SetReadLimit(16 * 1024 * 1024)

	s.stateM.Lock()
	s.conn = conn
	s.stateM.Unlock()
	s.setState(SockConnected)
	return nil
}

// ReadEvent blocks for the next decodable event, skipping unknown frame
// types. Returns an error when the stream terminates.
func (s *Socket) ReadEvent(ctx context.Context) (any, error) {
	conn := s.current()
	if conn == nil {
		return nil, errors.New("socket not connected")
	}
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			s.setState(SockDisconnected)
			return nil, err
		}
		ev, err := DecodeEvent(raw)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			continue
		}
		return ev, nil
	}
}

func (s *Socket) writeJSON(ctx context.Context, v any) error {
	conn := s.current()
	if conn == nil {
		return errors.New("socket not connected")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return wsjson.Write(ctx, conn, v)
}

// Authenticate presents the session token; the peer answers with an
// Authenticated event on success.
func (s *Socket) Authenticate(ctx context.Context, token string) error {
	return s.writeJSON(ctx, &authenticateFrame{Type: "Authenticate", Token: token})
}

// SendPing emits a heartbeat frame carrying the given token.
func (s *Socket) SendPing(ctx context.Context, token int64) error {
	return s.writeJSON(ctx, &pingFrame{Type: "Ping", Data: token})
}

// Drop closes the current connection without latching the terminal state,
// so a later Dial can reuse the socket.
func (s *Socket) Drop(code websocket.StatusCode, reason string) error {
	s.stateM.Lock()
	conn := s.conn
	s.conn = nil
	s.stateM.Unlock()
	s.setState(SockDisconnected)
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

func (s *Socket) Close(code websocket.StatusCode, reason string) error {
	s.stateM.Lock()
	conn := s.conn
	s.conn = nil
	s.stateM.Unlock()
	s.setState(SockClosed)
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

func (s *Socket) current() *websocket.Conn {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.conn
}

func (s *Socket) setState(state SocketState) {
	s.stateM.Lock()
	if s.state == SockClosed && state != SockClosed {
		s.stateM.Unlock()
		return
	}
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	callbacks := make([]StateCallback, len(s.stateCbs))
	copy(callbacks, s.stateCbs)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		if cb != nil {
			cb(state)
		}
	}
}

// ReconnectBackoff returns the delay before reconnect attempt n, capped
// exponential: 1s, 2s, 4s ... up to 32s.
func ReconnectBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * time.Second
}
