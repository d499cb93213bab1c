package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nevi/revolt-chess-bot/internal/chessmatch"
	"github.com/nevi/revolt-chess-bot/internal/entitycache"
	"github.com/nevi/revolt-chess-bot/internal/msgcat"
	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

// Env holds the collaborators every command handler needs. It is built once
// at startup and passed through the router; there are no package-level
// singletons.
type Env struct {
	Client  *revoltfast.Client
	Cache   *entitycache.Cache
	Cat     *msgcat.Catalog
	Matches *chessmatch.Manager
	Prefix  string
	// SelfID lets the router drop the bot's own messages off the stream.
	SelfID string
}

// Command is one registry entry. Matching walks the registry in order and
// picks the first command whose prefixed name or alias starts the message.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Run     func(ctx context.Context, env *Env, msg *revoltfast.Message, args []string) error
}

// ErrUnimplemented marks a registered command with no executable behavior.
var ErrUnimplemented = errors.New("unimplemented")

// UsageError reports malformed arguments together with the usage string the
// user needs to self-correct.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string { return e.Message }

// FetchError wraps a failed remote lookup with the resource kind.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Registry returns all commands in registration order. Order matters: the
// router's prefix match stops at the first hit.
func Registry() []Command {
	return []Command{
		{Name: "chess", Aliases: []string{"play-chess"}, Usage: "[white|black|random] <opponent>", Run: runChess},
		{Name: "help", Aliases: []string{"h"}, Usage: "[command]", Run: runHelp},
		{Name: "ban", Aliases: []string{"b"}, Usage: "<user> [reason]", Run: runBan},
		{Name: "kick", Aliases: []string{"k"}, Usage: "<user> [reason]", Run: runKick},
		{Name: "unban", Aliases: []string{"ub"}, Usage: "<user> [reason]", Run: runUnban},
	}
}

// resolveUserRef resolves a canonical id or <@id> mention through the cache.
// Free-text usernames return (nil, nil); the caller owns that message.
func resolveUserRef(ctx context.Context, env *Env, ref string) (*revoltfast.User, error) {
	id, ok := revoltfast.ResolveUserRef(ref)
	if !ok {
		return nil, nil
	}
	return fetchUser(ctx, env, id)
}

func fetchUser(ctx context.Context, env *Env, id string) (*revoltfast.User, error) {
	raw, err := env.Cache.GetOrFetch(ctx, revoltfast.KindUser, id)
	if err != nil {
		return nil, &FetchError{Resource: "user", Err: err}
	}
	var u revoltfast.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, &FetchError{Resource: "user", Err: err}
	}
	return &u, nil
}
