package revoltfast

import (
	"testing"
	"time"
)

func TestDecodeEventReady(t *testing.T) {
	raw := []byte(`{
		"type": "Ready",
		"users": [{"_id": "u1", "username": "alice"}],
		"servers": [{"_id": "s1", "name": "home"}],
		"channels": [{"_id": "c1", "channel_type": "TextChannel", "server": "s1"}],
		"emojis": []
	}`)
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	ready, ok := ev.(*ReadyEvent)
	if !ok {
		t.Fatalf("event type = %T, want *ReadyEvent", ev)
	}
	if len(ready.Users) != 1 || ready.Users[0].Username != "alice" {
		t.Fatalf("users = %+v", ready.Users)
	}
	if len(ready.Channels) != 1 || ready.Channels[0].Server != "s1" {
		t.Fatalf("channels = %+v", ready.Channels)
	}
}

func TestDecodeEventPongCarriesToken(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type": "Pong", "data": 42}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	pong, ok := ev.(*PongEvent)
	if !ok {
		t.Fatalf("event type = %T, want *PongEvent", ev)
	}
	if pong.Data != 42 {
		t.Fatalf("token = %d, want 42", pong.Data)
	}
}

func TestDecodeEventMessage(t *testing.T) {
	raw := []byte(`{"type": "Message", "_id": "m1", "channel": "c1", "author": "u1", "content": "!help"}`)
	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	msg, ok := ev.(*MessageEvent)
	if !ok {
		t.Fatalf("event type = %T, want *MessageEvent", ev)
	}
	if msg.Channel != "c1" || msg.Author != "u1" || msg.Content != "!help" {
		t.Fatalf("message = %+v", msg.Message)
	}
}

func TestDecodeEventUnknownSkipped(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type": "ChannelStartTyping", "id": "c1"}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if ev != nil {
		t.Fatalf("unknown event decoded to %T, want nil", ev)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestChannelServerID(t *testing.T) {
	cases := []struct {
		ch     Channel
		wantID string
		wantOK bool
	}{
		{Channel{ID: "c1", ChannelType: "TextChannel", Server: "s1"}, "s1", true},
		{Channel{ID: "g1", ChannelType: "Group"}, "g1", true},
		{Channel{ID: "d1", ChannelType: "DirectMessage"}, "", false},
		{Channel{ID: "c2", ChannelType: "TextChannel"}, "", false},
	}
	for _, tc := range cases {
		id, ok := tc.ch.ServerID()
		if id != tc.wantID || ok != tc.wantOK {
			t.Fatalf("ServerID(%s/%s) = (%q, %v), want (%q, %v)",
				tc.ch.ID, tc.ch.ChannelType, id, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestReconnectBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, 32 * time.Second},
		{100, 32 * time.Second},
	}
	for _, tc := range cases {
		if got := ReconnectBackoff(tc.attempt); got != tc.want {
			t.Fatalf("ReconnectBackoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}
