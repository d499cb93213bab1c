package chessmatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) SendReply(ctx context.Context, channelID, content, replyTo string, mention bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, content)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSender) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

func newTestSession(t *testing.T) (*Session, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	match := &Match{
		ID:        "m1",
		ChannelID: "c1",
		WhiteID:   "w1",
		WhiteName: "Walter",
		BlackID:   "b1",
		BlackName: "Bella",
		MovesUCI:  []string{},
		MovesSAN:  []string{},
		Turn:      White,
		Status:    StatusActive,
	}
	s := newSession(context.Background(), match, sender, nil, "!", time.Minute, zap.NewNop())
	t.Cleanup(s.cancel)
	s.match.FEN = s.game.FEN()
	return s, sender
}

func inbound(author, text string) Inbound {
	return Inbound{MessageID: "msg1", ChannelID: "c1", AuthorID: author, Text: text}
}

func TestMoveAppliedAndTurnAlternates(t *testing.T) {
	s, sender := newTestSession(t)

	if !s.handle(inbound("w1", "!move e2e4")) {
		t.Fatal("white's opening move was rejected")
	}
	if got := s.match.MovesSAN; len(got) != 1 || got[0] != "e4" {
		t.Fatalf("MovesSAN = %v, want [e4]", got)
	}
	if s.match.Turn != Black {
		t.Fatalf("Turn = %v, want Black", s.match.Turn)
	}
	if !strings.HasPrefix(s.match.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq") {
		t.Fatalf("FEN after e4 = %q", s.match.FEN)
	}
	if sender.count() != 1 {
		t.Fatalf("replies = %d, want 1", sender.count())
	}

	if !s.handle(inbound("b1", "!move e7e5")) {
		t.Fatal("black's reply move was rejected")
	}
	if s.match.Turn != White {
		t.Fatalf("Turn after two moves = %v, want White", s.match.Turn)
	}
	if len(s.match.MovesUCI) != 2 {
		t.Fatalf("MovesUCI = %v", s.match.MovesUCI)
	}
}

func TestOutOfTurnMoveIgnoredSilently(t *testing.T) {
	s, sender := newTestSession(t)

	if s.handle(inbound("b1", "!move e7e5")) {
		t.Fatal("out-of-turn move was accepted")
	}
	if len(s.match.MovesUCI) != 0 || s.match.Turn != White {
		t.Fatalf("board mutated: moves=%v turn=%v", s.match.MovesUCI, s.match.Turn)
	}
	if sender.count() != 0 {
		t.Fatalf("out-of-turn move produced %d replies, want 0", sender.count())
	}
}

func TestMissingMoveArgumentRepliesUsage(t *testing.T) {
	s, sender := newTestSession(t)

	if s.handle(inbound("w1", "!move")) {
		t.Fatal("bare move command counted as progress")
	}
	if sender.count() != 1 {
		t.Fatalf("replies = %d, want 1", sender.count())
	}
	if !strings.Contains(sender.last(), "move") {
		t.Fatalf("usage reply = %q", sender.last())
	}
	if len(s.match.MovesUCI) != 0 {
		t.Fatalf("board mutated: %v", s.match.MovesUCI)
	}
}

func TestMalformedMoveDroppedSilently(t *testing.T) {
	s, sender := newTestSession(t)

	if s.handle(inbound("w1", "!move z9z9")) {
		t.Fatal("malformed move was accepted")
	}
	if sender.count() != 0 {
		t.Fatalf("malformed move produced %d replies, want 0", sender.count())
	}
}

func TestIllegalMoveRepliesAndKeepsBoard(t *testing.T) {
	s, sender := newTestSession(t)

	// In-grammar but illegal on the board.
	if s.handle(inbound("w1", "!move e2e5")) {
		t.Fatal("illegal move counted as progress")
	}
	if sender.count() != 1 {
		t.Fatalf("replies = %d, want 1", sender.count())
	}
	if len(s.match.MovesUCI) != 0 || s.match.Turn != White {
		t.Fatalf("board mutated: moves=%v turn=%v", s.match.MovesUCI, s.match.Turn)
	}
}

func TestNonMoveChatterIgnored(t *testing.T) {
	s, sender := newTestSession(t)

	for _, text := range []string{"good luck!", "!help", "", "move e2e4"} {
		if s.handle(inbound("w1", text)) {
			t.Fatalf("chatter %q counted as progress", text)
		}
	}
	if sender.count() != 0 {
		t.Fatalf("chatter produced %d replies", sender.count())
	}
}

func TestWrongChannelIgnored(t *testing.T) {
	s, _ := newTestSession(t)
	in := Inbound{MessageID: "x", ChannelID: "other", AuthorID: "w1", Text: "!move e2e4"}
	if s.handle(in) {
		t.Fatal("message from another conversation was handled")
	}
}

func TestFoolsMateFinishesMatch(t *testing.T) {
	s, sender := newTestSession(t)

	seq := []struct{ author, uci string }{
		{"w1", "f2f3"},
		{"b1", "e7e5"},
		{"w1", "g2g4"},
		{"b1", "d8h4"},
	}
	for _, step := range seq {
		if !s.handle(inbound(step.author, "!move "+step.uci)) {
			t.Fatalf("move %s by %s rejected", step.uci, step.author)
		}
	}

	if s.match.Status != StatusFinished {
		t.Fatalf("Status = %v, want %v", s.match.Status, StatusFinished)
	}
	if s.match.Winner != "b1" {
		t.Fatalf("Winner = %q, want b1", s.match.Winner)
	}
	if !strings.Contains(sender.last(), "Bella") {
		t.Fatalf("final reply = %q, want winner name", sender.last())
	}
}

func TestResignAwardsOpponent(t *testing.T) {
	s, sender := newTestSession(t)

	// Resignation is not turn-gated; black may resign on white's turn.
	if !s.handle(inbound("b1", "!resign")) {
		t.Fatal("resign rejected")
	}
	if s.match.Status != StatusResigned {
		t.Fatalf("Status = %v, want %v", s.match.Status, StatusResigned)
	}
	if s.match.Winner != "w1" {
		t.Fatalf("Winner = %q, want w1", s.match.Winner)
	}
	if !strings.Contains(sender.last(), "Walter") {
		t.Fatalf("resign reply = %q", sender.last())
	}
}

func TestManagerRejectsDuplicateSession(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager(context.Background(), sender, nil, "!", time.Minute, nil, zap.NewNop())
	t.Cleanup(m.Shutdown)

	white := Player{ID: "w1", Name: "Walter"}
	black := Player{ID: "b1", Name: "Bella"}
	if _, err := m.Start("c1", white, black); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := m.Start("c1", black, white); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start err = %v, want ErrSessionActive", err)
	}
	// A different conversation is fine.
	if _, err := m.Start("c2", white, black); err != nil {
		t.Fatalf("Start in second conversation: %v", err)
	}
}

func TestManagerDeliverFiltersNonPlayers(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager(context.Background(), sender, nil, "!", time.Minute, nil, zap.NewNop())
	t.Cleanup(m.Shutdown)

	if _, err := m.Start("c1", Player{ID: "w1", Name: "Walter"}, Player{ID: "b1", Name: "Bella"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if m.Deliver(Inbound{ChannelID: "c1", AuthorID: "stranger", Text: "!move e2e4"}) {
		t.Fatal("non-player message was delivered")
	}
	if m.Deliver(Inbound{ChannelID: "nosession", AuthorID: "w1", Text: "!move e2e4"}) {
		t.Fatal("message without a session was delivered")
	}
	if !m.Deliver(Inbound{ChannelID: "c1", AuthorID: "w1", Text: "!move e2e4"}) {
		t.Fatal("player message was not delivered")
	}
}

func TestManagerReleasesFinishedSession(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager(context.Background(), sender, nil, "!", time.Minute, nil, zap.NewNop())
	t.Cleanup(m.Shutdown)

	if _, err := m.Start("c1", Player{ID: "w1", Name: "Walter"}, Player{ID: "b1", Name: "Bella"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Deliver(Inbound{MessageID: "m", ChannelID: "c1", AuthorID: "w1", Text: "!resign"}) {
		t.Fatal("resign not delivered")
	}

	deadline := time.After(5 * time.Second)
	for m.Active("c1") {
		select {
		case <-deadline:
			t.Fatal("session still indexed after resignation")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// The slot is free again.
	if _, err := m.Start("c1", Player{ID: "w1", Name: "Walter"}, Player{ID: "b1", Name: "Bella"}); err != nil {
		t.Fatalf("restart after release: %v", err)
	}
}

func TestIdleSessionExpires(t *testing.T) {
	sender := &recordingSender{}
	m := NewManager(context.Background(), sender, nil, "!", 50*time.Millisecond, nil, zap.NewNop())
	t.Cleanup(m.Shutdown)

	if _, err := m.Start("c1", Player{ID: "w1", Name: "Walter"}, Player{ID: "b1", Name: "Bella"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for m.Active("c1") {
		select {
		case <-deadline:
			t.Fatal("idle session was never reaped")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if sender.count() == 0 {
		t.Fatal("expiry produced no notification")
	}
}
