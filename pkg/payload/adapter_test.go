package payload

import "testing"

func TestParseFullEnvelope(t *testing.T) {
	raw := []byte(`{
		"data": "SGVsbG8=",
		"meta": {
			"id": "m1",
			"date": {"timestamp": 1700000000},
			"network": "mainnet",
			"address": "eu-1",
			"chat": {
				"id": "c1",
				"name": "general",
				"info": "the lobby",
				"username": "generalchan",
				"date": {"timestamp": 1690000000},
				"subchannel": {"id": "s1", "name": "offtopic"}
			},
			"thread": {
				"id": "t1",
				"name": "bug hunt",
				"parent": {"chat": "c1", "subchannel": "s1", "message": "m0"}
			},
			"sender": {"id": "u1", "username": "alice", "firstname": "Alice"},
			"media": {"name": "cat.png"},
			"reactions": [{"reaction": "+1", "count": 3}],
			"reply_to": {"message_id": "m0"}
		}
	}`)
	ev, err := NewJSONAdapter("telegram").Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Protocol != "telegram" || ev.Network != "mainnet" || ev.Address != "eu-1" {
		t.Fatalf("instance fields wrong: %+v", ev)
	}
	if !ev.HasMessageID || ev.MessageID != "m1" {
		t.Fatalf("message id wrong: %+v", ev)
	}
	if !ev.HasTimestamp || ev.Timestamp != 1700000000 {
		t.Fatalf("timestamp wrong: %+v", ev)
	}
	if ev.Chat == nil || ev.Chat.ID != "c1" || ev.Chat.Name != "general" {
		t.Fatalf("chat meta wrong: %+v", ev.Chat)
	}
	if !ev.Chat.HasCreatedTS || ev.Chat.CreatedTS != 1690000000 {
		t.Fatalf("chat created ts wrong: %+v", ev.Chat)
	}
	if ev.SubchannelID() != "s1" {
		t.Fatalf("subchannel id wrong: %q", ev.SubchannelID())
	}
	if ev.Thread == nil || ev.Thread.ParentChat != "c1" || ev.Thread.ParentMessage != "m0" {
		t.Fatalf("thread meta wrong: %+v", ev.Thread)
	}
	if ev.Sender == nil || ev.Sender.Username != "alice" {
		t.Fatalf("sender meta wrong: %+v", ev.Sender)
	}
	if ev.MediaName != "cat.png" {
		t.Fatalf("media name wrong: %q", ev.MediaName)
	}
	if len(ev.Reactions) != 1 || ev.Reactions[0].Label != "+1" || ev.Reactions[0].Count != 3 {
		t.Fatalf("reactions wrong: %+v", ev.Reactions)
	}
	if ev.ReplyToID != "m0" {
		t.Fatalf("reply-to wrong: %q", ev.ReplyToID)
	}
	if ev.Kind() != KindMessage {
		t.Fatalf("kind = %s, want message", ev.Kind())
	}
}

func TestParseMissingOptionalKeys(t *testing.T) {
	ev, err := NewJSONAdapter("discord").Parse([]byte(`{"meta": {"id": "m1", "chat": {"id": "c1"}}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.HasTimestamp || ev.Thread != nil || ev.Sender != nil || len(ev.Reactions) != 0 {
		t.Fatalf("optional fields must stay absent: %+v", ev)
	}
	if ev.SubchannelID() != "" || ev.ThreadID() != "" {
		t.Fatalf("expected empty subchannel/thread ids")
	}
}

func TestParseBadJSON(t *testing.T) {
	if _, err := NewJSONAdapter("telegram").Parse([]byte(`{nope`)); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
}

func TestEventKindClassification(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want EventKind
	}{
		{"message", Event{HasMessageID: true, MessageID: "m1", Chat: &ChatMeta{ID: "c1"}}, KindMessage},
		{"image", Event{HasMessageID: true, MessageID: "m1", Chat: &ChatMeta{ID: "c1"}, DataSHA256: "aa"}, KindImage},
		{"chat ping", Event{Chat: &ChatMeta{ID: "c1"}}, KindChat},
		{"no identity", Event{}, KindInvalid},
		{"message without chat", Event{HasMessageID: true, MessageID: "m1"}, KindInvalid},
	}
	for _, tc := range cases {
		if got := tc.ev.Kind(); got != tc.want {
			t.Fatalf("%s: kind = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestEventTimeFallback(t *testing.T) {
	ev := Event{Timestamp: 1700000000, HasTimestamp: true}
	if ev.EventTime() != 1700000000 {
		t.Fatalf("expected declared timestamp")
	}
	now := Event{}
	if now.EventTime() == 0 {
		t.Fatalf("expected current-time fallback")
	}
}
