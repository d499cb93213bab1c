package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

// moderationTarget is the shared parse result for ban, kick and unban.
type moderationTarget struct {
	serverID string
	user     *revoltfast.User
	reason   string
}

func parseModerationTarget(ctx context.Context, env *Env, msg *revoltfast.Message, args []string, usage string) (*moderationTarget, error) {
	if len(args) < 1 {
		return nil, &UsageError{Message: "User argument needed.", Usage: usage}
	}
	user, err := resolveUserRef(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New(env.Cat.MustRender("command.resolve_failed", nil, "Failed to find user."))
	}

	raw, ok, err := env.Cache.Peek(ctx, revoltfast.KindChannel, msg.Channel)
	if err != nil || !ok {
		raw, err = env.Cache.GetOrFetch(ctx, revoltfast.KindChannel, msg.Channel)
		if err != nil {
			return nil, &FetchError{Resource: "channel", Err: err}
		}
	}
	var ch revoltfast.Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, &FetchError{Resource: "channel", Err: err}
	}
	serverID, ok := ch.ServerID()
	if !ok {
		return nil, errors.New(env.Cat.MustRender("moderation.bad_scope", nil,
			"This command only works in server channels."))
	}

	return &moderationTarget{
		serverID: serverID,
		user:     user,
		reason:   strings.Join(args[1:], " "),
	}, nil
}

func runBan(ctx context.Context, env *Env, msg *revoltfast.Message, args []string) error {
	t, err := parseModerationTarget(ctx, env, msg, args, "<user> [reason]")
	if err != nil {
		return err
	}
	if err := env.Client.BanCreate(ctx, t.serverID, t.user.ID, t.reason); err != nil {
		return moderationError(env, err)
	}
	return moderationReply(ctx, env, msg, "moderation.banned", t)
}

func runKick(ctx context.Context, env *Env, msg *revoltfast.Message, args []string) error {
	t, err := parseModerationTarget(ctx, env, msg, args, "<user> [reason]")
	if err != nil {
		return err
	}
	if err := env.Client.MemberKick(ctx, t.serverID, t.user.ID); err != nil {
		return moderationError(env, err)
	}
	return moderationReply(ctx, env, msg, "moderation.kicked", t)
}

func runUnban(ctx context.Context, env *Env, msg *revoltfast.Message, args []string) error {
	t, err := parseModerationTarget(ctx, env, msg, args, "<user> [reason]")
	if err != nil {
		return err
	}
	if err := env.Client.BanRemove(ctx, t.serverID, t.user.ID); err != nil {
		return moderationError(env, err)
	}
	return moderationReply(ctx, env, msg, "moderation.unbanned", t)
}

func moderationError(env *Env, err error) error {
	var se *revoltfast.StatusError
	if errors.As(err, &se) && se.Code == 400 {
		return errors.New(env.Cat.MustRender("moderation.invalid_op", nil, "Invalid operation."))
	}
	return err
}

func moderationReply(ctx context.Context, env *Env, msg *revoltfast.Message, key string, t *moderationTarget) error {
	reason := t.reason
	if reason == "" {
		reason = env.Cat.MustRender("moderation.no_reason", nil, "no reason given")
	}
	text := env.Cat.MustRender(key, map[string]any{
		"User":   t.user.Username,
		"Reason": reason,
	}, "Done.")
	_ = env.Client.SendReply(ctx, msg.Channel, text, msg.ID, true)
	return nil
}
