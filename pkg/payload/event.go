package payload

import (
	"encoding/json"
	"time"
)

// EventKind classifies what a payload carries.
type EventKind string

const (
	// KindMessage is a regular chat message.
	KindMessage EventKind = "message"
	// KindImage is binary image content identified by a content hash.
	KindImage EventKind = "image"
	// KindChat is a chat-only ping: chat metadata without a message.
	KindChat EventKind = "chat"
	// KindInvalid means no mandatory identity field was present.
	KindInvalid EventKind = "invalid"
)

// Event is the fully-typed result of parsing one feeder payload. All
// optional meta fields are resolved up front so later pipeline steps never
// re-examine raw JSON.
type Event struct {
	Protocol string
	Network  string
	Address  string

	Chat   *ChatMeta
	Thread *ThreadMeta
	Sender *SenderMeta

	MessageID    string
	HasMessageID bool

	Timestamp    int64
	HasTimestamp bool

	MediaName string
	Reactions []Reaction
	ReplyToID string
	// Forward is recorded verbatim; forwarding-edge semantics are
	// intentionally unresolved.
	Forward json.RawMessage

	// Data is the still-encoded content body; DataSHA256, when present,
	// identifies image content.
	Data       string
	DataSHA256 string
}

// ChatMeta is the declared chat container metadata.
type ChatMeta struct {
	ID           string
	Name         string
	Info         string
	Username     string
	Icon         string
	CreatedTS    int64
	HasCreatedTS bool
	Subchannel   *SubChannelMeta
}

// SubChannelMeta is the declared sub-partition metadata.
type SubChannelMeta struct {
	ID           string
	Name         string
	Info         string
	CreatedTS    int64
	HasCreatedTS bool
}

// ThreadMeta declares a thread and its claimed parent context. The parent is
// verified against the ingestion context before any thread is created.
type ThreadMeta struct {
	ID            string
	Name          string
	ParentChat    string
	ParentChannel string
	ParentMessage string
}

// SenderMeta is the declared message author.
type SenderMeta struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
	Phone     string
	Info      string
	Icon      string
}

// Reaction is one reaction label with its reported count.
type Reaction struct {
	Label string
	Count int
}

// Kind classifies the event. A payload without a message id is a chat ping
// when a chat id is declared, otherwise invalid. Image payloads declare a
// content hash alongside the data body.
func (e *Event) Kind() EventKind {
	if !e.HasMessageID {
		if e.Chat != nil && e.Chat.ID != "" {
			return KindChat
		}
		return KindInvalid
	}
	if e.Chat == nil || e.Chat.ID == "" {
		return KindInvalid
	}
	if e.DataSHA256 != "" {
		return KindImage
	}
	return KindMessage
}

// SubchannelID returns the feeder-declared subchannel id, if any.
func (e *Event) SubchannelID() string {
	if e.Chat == nil || e.Chat.Subchannel == nil {
		return ""
	}
	return e.Chat.Subchannel.ID
}

// ThreadID returns the feeder-declared thread id, if any.
func (e *Event) ThreadID() string {
	if e.Thread == nil {
		return ""
	}
	return e.Thread.ID
}

// EventTime resolves the event timestamp, falling back to the current time
// when the feeder omitted a date.
func (e *Event) EventTime() int64 {
	if e.HasTimestamp {
		return e.Timestamp
	}
	return time.Now().UTC().Unix()
}
