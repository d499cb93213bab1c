package chessmatch

import (
	"context"
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Status represents a match lifecycle state.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
	StatusResigned Status = "RESIGNED"
	StatusDraw     Status = "DRAW"
	StatusExpired  Status = "EXPIRED"
)

// Player is one seat at the board.
type Player struct {
	ID   string
	Name string
}

// Match is the state of one two-player game, persisted on completion.
type Match struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	WhiteID   string    `json:"white_id"`
	WhiteName string    `json:"white_name"`
	BlackID   string    `json:"black_id"`
	BlackName string    `json:"black_name"`
	MovesUCI  []string  `json:"moves_uci"`
	MovesSAN  []string  `json:"moves_san"`
	FEN       string    `json:"fen"`
	Turn      Color     `json:"turn"`
	Status    Status    `json:"status"`
	Winner    string    `json:"winner,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Inbound is a chat message offered to a session's mailbox.
type Inbound struct {
	MessageID string
	ChannelID string
	AuthorID  string
	Text      string
}

// Sender posts replies back into the originating conversation.
type Sender interface {
	SendReply(ctx context.Context, channelID, content, replyTo string, mention bool) error
}
