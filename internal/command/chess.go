package command

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/nevi/revolt-chess-bot/internal/chessmatch"
	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

func runChess(ctx context.Context, env *Env, msg *revoltfast.Message, args []string) error {
	if len(args) < 1 {
		return &UsageError{Message: "Color argument needed.", Usage: "[white|black|random] <opponent>"}
	}
	invokerColor, ok := parseColor(args[0])
	if !ok {
		return &UsageError{
			Message: fmt.Sprintf("Unexpected color %q.", args[0]),
			Usage:   "[white|black|random] <opponent>",
		}
	}
	if len(args) < 2 {
		return &UsageError{Message: "Opponent argument needed.", Usage: "[white|black|random] <opponent>"}
	}

	opponent, err := resolveUserRef(ctx, env, args[1])
	if err != nil {
		return err
	}
	if opponent == nil {
		return errors.New(env.Cat.MustRender("command.resolve_failed", nil, "Failed to find user."))
	}
	invoker, err := fetchUser(ctx, env, msg.Author)
	if err != nil {
		return err
	}

	white := chessmatch.Player{ID: invoker.ID, Name: invoker.Username}
	black := chessmatch.Player{ID: opponent.ID, Name: opponent.Username}
	if invokerColor == chessmatch.Black {
		white, black = black, white
	}

	m, err := env.Matches.Start(msg.Channel, white, black)
	if err != nil {
		if errors.Is(err, chessmatch.ErrSessionActive) {
			return errors.New(env.Cat.MustRender("chess.already_active", nil,
				"A match is already running in this channel."))
		}
		return err
	}

	text := env.Cat.MustRender("chess.started", map[string]any{
		"White":  m.WhiteName,
		"Black":  m.BlackName,
		"Prefix": env.Prefix,
	}, fmt.Sprintf("Match started: %s (white) vs %s (black).", m.WhiteName, m.BlackName))
	_ = env.Client.SendReply(ctx, msg.Channel, text, msg.ID, true)
	return nil
}

func parseColor(s string) (chessmatch.Color, bool) {
	switch s {
	case "white":
		return chessmatch.White, true
	case "black":
		return chessmatch.Black, true
	case "random":
		return coinFlip(), true
	default:
		return chessmatch.White, false
	}
}

func coinFlip() chessmatch.Color {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n.Int64() == 0 {
		return chessmatch.White
	}
	return chessmatch.Black
}
