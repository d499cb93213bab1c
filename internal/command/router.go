package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gammazero/workerpool"
	"go.uber.org/zap"

	"github.com/nevi/revolt-chess-bot/internal/chessmatch"
	"github.com/nevi/revolt-chess-bot/internal/revoltfast"
)

const runTimeout = 30 * time.Second

// Router turns inbound messages into command executions. Session delivery
// happens synchronously on the caller's goroutine so per-conversation order
// is preserved; only command handlers run on the pool.
type Router struct {
	env      *Env
	commands []Command
	pool     *workerpool.WorkerPool
	logger   *zap.Logger
}

func NewRouter(env *Env, commands []Command, workers int, logger *zap.Logger) *Router {
	if workers <= 0 {
		workers = 8
	}
	return &Router{
		env:      env,
		commands: commands,
		pool:     workerpool.New(workers),
		logger:   logger,
	}
}

// Dispatch is called from the gateway read loop and must not block.
func (r *Router) Dispatch(msg *revoltfast.Message) {
	if msg == nil || msg.Content == "" {
		return
	}
	if r.env.SelfID != "" && msg.Author == r.env.SelfID {
		return
	}
	// Live match input first, in arrival order.
	if r.env.Matches != nil {
		r.env.Matches.Deliver(chessmatch.Inbound{
			MessageID: msg.ID,
			ChannelID: msg.Channel,
			AuthorID:  msg.Author,
			Text:      msg.Content,
		})
	}
	if !strings.HasPrefix(msg.Content, r.env.Prefix) {
		return
	}
	cmd := r.match(msg.Content)
	if cmd == nil {
		return
	}
	fields := strings.Fields(msg.Content)
	args := fields[1:]
	m := *msg
	r.pool.Submit(func() {
		r.invoke(cmd, &m, args)
	})
}

func (r *Router) match(text string) *Command {
	for i := range r.commands {
		c := &r.commands[i]
		if strings.HasPrefix(text, r.env.Prefix+c.Name) {
			return c
		}
		for _, a := range c.Aliases {
			if strings.HasPrefix(text, r.env.Prefix+a) {
				return c
			}
		}
	}
	return nil
}

func (r *Router) invoke(c *Command, msg *revoltfast.Message, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	err := c.Run(ctx, r.env, msg, args)
	if err == nil {
		return
	}
	r.logger.Info("command_failed",
		zap.String("command", c.Name),
		zap.String("channel_id", msg.Channel),
		zap.Error(err))
	text := r.renderError(c, err)
	if sendErr := r.env.Client.SendReply(ctx, msg.Channel, text, msg.ID, true); sendErr != nil {
		r.logger.Warn("command_error_reply_failed",
			zap.String("channel_id", msg.Channel),
			zap.Error(sendErr))
	}
}

func (r *Router) renderError(c *Command, err error) string {
	var ue *UsageError
	if errors.As(err, &ue) {
		return r.env.Cat.MustRender("command.usage", map[string]any{
			"Message": ue.Message,
			"Prefix":  r.env.Prefix,
			"Name":    c.Name,
			"Usage":   ue.Usage,
		}, ue.Message)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return r.env.Cat.MustRender("command.fetch_failed", map[string]any{
			"Resource": fe.Resource,
			"Cause":    fe.Err.Error(),
		}, "Failed to fetch "+fe.Resource+".")
	}
	if errors.Is(err, ErrUnimplemented) {
		return r.env.Cat.MustRender("command.unimplemented", map[string]any{
			"Name": c.Name,
		}, "Command not implemented.")
	}
	return err.Error()
}

// Stop drains in-flight command executions.
func (r *Router) Stop() {
	r.pool.StopWait()
}
