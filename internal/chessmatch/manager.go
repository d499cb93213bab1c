package chessmatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nevi/revolt-chess-bot/internal/msgcat"
)

var ErrSessionActive = errors.New("a chess match is already running in this conversation")

// Manager indexes live sessions by conversation and routes inbound messages
// from the top-level dispatcher into the right mailbox. There is never more
// than one session per conversation.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	rootCtx context.Context
	sender  Sender
	cat     *msgcat.Catalog
	prefix  string
	idleTTL time.Duration
	repo    *Repository // optional
	logger  *zap.Logger
}

func NewManager(ctx context.Context, sender Sender, cat *msgcat.Catalog, prefix string, idleTTL time.Duration, repo *Repository, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		rootCtx:  ctx,
		sender:   sender,
		cat:      cat,
		prefix:   prefix,
		idleTTL:  idleTTL,
		repo:     repo,
		logger:   logger,
	}
}

// Start creates a session for the conversation and launches its loop.
func (m *Manager) Start(channelID string, white, black Player) (*Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[channelID]; ok {
		return nil, ErrSessionActive
	}

	now := time.Now()
	match := &Match{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		WhiteID:   white.ID,
		WhiteName: white.Name,
		BlackID:   black.ID,
		BlackName: black.Name,
		MovesUCI:  []string{},
		MovesSAN:  []string{},
		Turn:      White,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s := newSession(m.rootCtx, match, m.sender, m.cat, m.prefix, m.idleTTL, m.logger)
	s.mgr = m
	match.FEN = s.game.FEN()
	m.sessions[channelID] = s
	go s.run()

	m.logger.Info("match_create",
		zap.String("match_id", match.ID),
		zap.String("channel_id", channelID),
		zap.String("white_id", white.ID),
		zap.String("black_id", black.ID),
	)
	return match, nil
}

// Deliver offers a message to the conversation's session, if any. The send
// never blocks the caller; a full mailbox drops the message.
func (m *Manager) Deliver(in Inbound) bool {
	m.mu.RLock()
	s := m.sessions[in.ChannelID]
	m.mu.RUnlock()
	if s == nil {
		return false
	}
	if in.AuthorID != s.match.WhiteID && in.AuthorID != s.match.BlackID {
		return false
	}
	select {
	case s.mailbox <- in:
		return true
	default:
		m.logger.Warn("match_mailbox_full",
			zap.String("match_id", s.match.ID),
			zap.String("channel_id", in.ChannelID),
		)
		return false
	}
}

// Active reports whether a session is live in the conversation.
func (m *Manager) Active(channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[channelID]
	return ok
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.cancel()
	}
}

// release drops a finished session from the index and persists its result.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.match.ChannelID]; ok && cur == s {
		delete(m.sessions, s.match.ChannelID)
	}
	m.mu.Unlock()
	s.cancel()

	if m.repo != nil && isFinal(s.match.Status) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.repo.SaveResult(ctx, s.match, methodFor(s.match)); err != nil {
			m.logger.Error("match_persist_error", zap.String("match_id", s.match.ID), zap.Error(err))
		}
	}
	m.logger.Info("match_release",
		zap.String("match_id", s.match.ID),
		zap.String("channel_id", s.match.ChannelID),
		zap.String("status", string(s.match.Status)),
	)
}

func isFinal(st Status) bool {
	switch st {
	case StatusFinished, StatusResigned, StatusDraw:
		return true
	default:
		return false
	}
}

func methodFor(match *Match) string {
	switch match.Status {
	case StatusResigned:
		return "resignation"
	case StatusDraw:
		return "draw"
	default:
		return "checkmate"
	}
}
