package revoltfast

import (
	"encoding/json"
	"fmt"
)

// Entity records mirror the Revolt API shapes. Only the fields the bot reads
// are modeled here; full payloads round-trip through the entity cache as raw
// JSON so nothing is lost on re-serialization.

type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Bot      *struct {
		Owner string `json:"owner"`
	} `json:"bot,omitempty"`
}

type Server struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Channel struct {
	ID          string `json:"_id"`
	ChannelType string `json:"channel_type"`
	Server      string `json:"server,omitempty"`
	Name        string `json:"name,omitempty"`
}

type Emoji struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Message struct {
	ID      string `json:"_id"`
	Channel string `json:"channel"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// ServerID resolves the moderation scope of a channel: text channels belong
// to their server, groups act as their own scope.
func (c *Channel) ServerID() (string, bool) {
	switch c.ChannelType {
	case "TextChannel":
		if c.Server != "" {
			return c.Server, true
		}
		return "", false
	case "Group":
		return c.ID, true
	default:
		return "", false
	}
}

// Inbound events decoded from {"type": ...} frames.

type ReadyEvent struct {
	Users    []User    `json:"users"`
	Servers  []Server  `json:"servers"`
	Channels []Channel `json:"channels"`
	Emojis   []Emoji   `json:"emojis"`
}

type PongEvent struct {
	Data int64 `json:"data"`
}

type MessageEvent struct {
	Message
}

type AuthenticatedEvent struct{}

type ErrorEvent struct {
	ID string `json:"error"`
}

func (e *ErrorEvent) Error() string { return fmt.Sprintf("revolt stream error: %s", e.ID) }

// DecodeEvent parses one inbound frame. Unrecognized event types return
// (nil, nil) and are skipped by the reader.
func DecodeEvent(raw []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode event header: %w", err)
	}
	switch head.Type {
	case "Ready":
		var ev ReadyEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode Ready: %w", err)
		}
		return &ev, nil
	case "Pong":
		var ev PongEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode Pong: %w", err)
		}
		return &ev, nil
	case "Message":
		var ev MessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode Message: %w", err)
		}
		return &ev, nil
	case "Authenticated":
		return &AuthenticatedEvent{}, nil
	case "Error", "NotFound":
		var ev ErrorEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode Error: %w", err)
		}
		return &ev, nil
	default:
		return nil, nil
	}
}

// Outbound frames.

type pingFrame struct {
	Type string `json:"type"`
	Data int64  `json:"data"`
}

type authenticateFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}
