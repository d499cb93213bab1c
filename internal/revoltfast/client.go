package revoltfast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Kind names the entity namespaces the API (and the entity cache) knows.
const (
	KindUser    = "users"
	KindServer  = "servers"
	KindChannel = "channels"
	KindEmoji   = "emojis"
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("revolt api error: status=%d body=%s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	token   string
	isBot   bool
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL, token string, isBot bool, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		isBot:          isBot,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchRaw fetches one entity payload by kind and id. The entity cache uses
// this as its miss path; payloads stay raw JSON end to end.
func (c *Client) FetchRaw(ctx context.Context, kind, id string) ([]byte, error) {
	path, err := entityPath(kind, id)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

func entityPath(kind, id string) (string, error) {
	switch kind {
	case KindUser:
		return "/users/" + id, nil
	case KindServer:
		return "/servers/" + id, nil
	case KindChannel:
		return "/channels/" + id, nil
	case KindEmoji:
		return "/custom/emoji/" + id, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

// FetchSelf returns the bot's own user record.
func (c *Client) FetchSelf(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/users/@me", nil, &u, true); err != nil {
		return nil, err
	}
	return &u, nil
}

type messageReply struct {
	ID      string `json:"id"`
	Mention bool   `json:"mention"`
}

type sendMessageRequest struct {
	Content string         `json:"content"`
	Replies []messageReply `json:"replies,omitempty"`
}

// SendReply posts a message into a channel, optionally tagging an earlier
// message as a reply.
func (c *Client) SendReply(ctx context.Context, channelID, content, replyTo string, mention bool) error {
	req := sendMessageRequest{Content: content}
	if replyTo != "" {
		req.Replies = []messageReply{{ID: replyTo, Mention: mention}}
	}
	return c.doJSON(ctx, fasthttp.MethodPost, "/channels/"+channelID+"/messages", req, nil, false)
}

// EditStatus updates the bot's presence text.
func (c *Client) EditStatus(ctx context.Context, text string) error {
	req := map[string]any{"status": map[string]string{"text": text}}
	return c.doJSON(ctx, fasthttp.MethodPatch, "/users/@me", req, nil, false)
}

func (c *Client) BanCreate(ctx context.Context, serverID, userID, reason string) error {
	var body any
	if strings.TrimSpace(reason) != "" {
		body = map[string]string{"reason": reason}
	}
	return c.doJSON(ctx, fasthttp.MethodPut, "/servers/"+serverID+"/bans/"+userID, body, nil, false)
}

func (c *Client) BanRemove(ctx context.Context, serverID, userID string) error {
	return c.doJSON(ctx, fasthttp.MethodDelete, "/servers/"+serverID+"/bans/"+userID, nil, nil, false)
}

func (c *Client) MemberKick(ctx context.Context, serverID, userID string) error {
	return c.doJSON(ctx, fasthttp.MethodDelete, "/servers/"+serverID+"/members/"+userID, nil, nil, false)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if c.isBot {
		req.Header.Set("x-bot-token", c.token)
	} else {
		req.Header.Set("x-session-token", c.token)
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, retryBackoff(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := &StatusError{Code: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, retryBackoff(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
