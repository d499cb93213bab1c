package chessmatch

import (
	"context"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/nevi/revolt-chess-bot/internal/msgcat"
)

// Session is one live turn-gated game. It owns the board and consumes its
// mailbox on a dedicated goroutine; the dispatcher feeds the mailbox in
// stream arrival order, so moves within a conversation are never reordered.
type Session struct {
	match   *Match
	game    *chess.Game
	mailbox chan Inbound

	ctx    context.Context
	cancel context.CancelFunc

	sender  Sender
	cat     *msgcat.Catalog
	prefix  string
	idleTTL time.Duration
	logger  *zap.Logger

	mgr *Manager // nil in unit tests
}

const mailboxDepth = 16

func newSession(ctx context.Context, match *Match, sender Sender, cat *msgcat.Catalog, prefix string, idleTTL time.Duration, logger *zap.Logger) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		match:   match,
		game:    chess.NewGame(),
		mailbox: make(chan Inbound, mailboxDepth),
		ctx:     sctx,
		cancel:  cancel,
		sender:  sender,
		cat:     cat,
		prefix:  prefix,
		idleTTL: idleTTL,
		logger:  logger,
	}
}

func (s *Session) run() {
	defer func() {
		if s.mgr != nil {
			s.mgr.release(s)
		}
	}()

	idle := time.NewTimer(s.idleTTL)
	defer idle.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-idle.C:
			s.match.Status = StatusExpired
			s.match.UpdatedAt = time.Now()
			s.say("chess.finished_idle", nil, "Chess match closed after inactivity.", "")
			return
		case in := <-s.mailbox:
			if s.handle(in) {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(s.idleTTL)
			}
			if s.match.Status != StatusActive {
				return
			}
		}
	}
}

// handle processes one inbound message; it returns true when the message
// advanced the match (an accepted move or a resignation).
func (s *Session) handle(in Inbound) bool {
	if in.ChannelID != s.match.ChannelID {
		return false
	}
	fields := strings.Fields(in.Text)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case s.prefix + "resign":
		if in.AuthorID != s.match.WhiteID && in.AuthorID != s.match.BlackID {
			return false
		}
		s.resign(in.AuthorID)
		return true
	case s.prefix + "move":
		// turn gate: only the current holder may move, everyone else is
		// ignored without a reply
		if in.AuthorID != s.turnHolder().ID {
			return false
		}
		if len(fields) < 2 {
			s.say("chess.move_usage", map[string]any{"Prefix": s.prefix},
				"Expected a move argument. Usage:\n> "+s.prefix+"move [a-h][1-8][a-h][1-8](r|n|b|q)?", in.MessageID)
			return false
		}
		mv, err := ParseMove(fields[1])
		if err != nil {
			// out-of-grammar input is dropped without a reply
			s.logger.Debug("move_rejected_grammar",
				zap.String("match_id", s.match.ID),
				zap.String("author", in.AuthorID),
				zap.String("text", fields[1]),
			)
			return false
		}
		return s.apply(in, mv)
	default:
		return false
	}
}

func (s *Session) apply(in Inbound, mv Move) bool {
	pos := s.game.Position()
	uci := mv.UCI()

	decoded, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		s.say("chess.move_illegal", map[string]any{"Move": uci}, "Illegal move: "+uci, in.MessageID)
		return false
	}
	if err := s.game.Move(decoded, nil); err != nil {
		s.say("chess.move_illegal", map[string]any{"Move": uci}, "Illegal move: "+uci, in.MessageID)
		return false
	}

	san := chess.AlgebraicNotation{}.Encode(pos, decoded)
	s.match.MovesUCI = append(s.match.MovesUCI, uci)
	s.match.MovesSAN = append(s.match.MovesSAN, san)
	s.match.FEN = s.game.FEN()
	s.match.Turn = s.match.Turn.other()
	s.match.UpdatedAt = time.Now()

	switch s.game.Outcome() {
	case chess.WhiteWon:
		s.match.Status = StatusFinished
		s.match.Winner = s.match.WhiteID
		s.match.Outcome = "white"
		s.say("chess.finished_checkmate", map[string]any{"Winner": s.match.WhiteName},
			"Checkmate. "+s.match.WhiteName+" wins.", in.MessageID)
	case chess.BlackWon:
		s.match.Status = StatusFinished
		s.match.Winner = s.match.BlackID
		s.match.Outcome = "black"
		s.say("chess.finished_checkmate", map[string]any{"Winner": s.match.BlackName},
			"Checkmate. "+s.match.BlackName+" wins.", in.MessageID)
	case chess.Draw:
		s.match.Status = StatusDraw
		s.match.Outcome = "draw"
		if s.game.Method() == chess.Stalemate {
			s.say("chess.finished_stalemate", nil, "Stalemate. The match is a draw.", in.MessageID)
		} else {
			s.say("chess.finished_draw", nil, "The match is a draw.", in.MessageID)
		}
	default:
		s.say("chess.move_applied", map[string]any{"SAN": san, "Next": s.turnHolder().Name},
			san+" — "+s.turnHolder().Name+" to move.", in.MessageID)
	}

	s.logger.Info("match_move",
		zap.String("match_id", s.match.ID),
		zap.String("channel_id", s.match.ChannelID),
		zap.String("uci", uci),
		zap.String("san", san),
		zap.String("turn", string(s.match.Turn)),
		zap.String("status", string(s.match.Status)),
	)
	return true
}

func (s *Session) resign(authorID string) {
	resigner := s.playerByID(authorID)
	winner := s.match.WhiteID
	winnerName := s.match.WhiteName
	if authorID == s.match.WhiteID {
		winner = s.match.BlackID
		winnerName = s.match.BlackName
	}
	s.match.Status = StatusResigned
	s.match.Winner = winner
	s.match.Outcome = "resign"
	s.match.UpdatedAt = time.Now()
	s.say("chess.finished_resign", map[string]any{"Resigner": resigner.Name, "Winner": winnerName},
		resigner.Name+" resigned. "+winnerName+" wins.", "")
	s.logger.Info("match_resign",
		zap.String("match_id", s.match.ID),
		zap.String("resigner", authorID),
		zap.String("winner", winner),
	)
}

func (s *Session) turnHolder() Player {
	if s.match.Turn == White {
		return Player{ID: s.match.WhiteID, Name: s.match.WhiteName}
	}
	return Player{ID: s.match.BlackID, Name: s.match.BlackName}
}

func (s *Session) playerByID(id string) Player {
	if id == s.match.WhiteID {
		return Player{ID: s.match.WhiteID, Name: s.match.WhiteName}
	}
	return Player{ID: s.match.BlackID, Name: s.match.BlackName}
}

// say posts a reply into the match conversation. Send failures are logged
// only; the session keeps running.
func (s *Session) say(key string, data map[string]any, fallback, replyTo string) {
	text := fallback
	if s.cat != nil {
		text = s.cat.MustRender(key, data, fallback)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.sender.SendReply(ctx, s.match.ChannelID, text, replyTo, replyTo != ""); err != nil {
		s.logger.Warn("match_reply_failed", zap.String("match_id", s.match.ID), zap.Error(err))
	}
}

func (c Color) other() Color {
	if c == White {
		return Black
	}
	return White
}
