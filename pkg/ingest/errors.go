package ingest

import "fmt"

// MalformedPayloadError reports a payload missing a mandatory identity field
// (no message id and no chat id). The payload is rejected with no state
// change.
type MalformedPayloadError struct {
	Protocol string
	Reason   string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %s", e.Protocol, e.Reason)
}

// StorageError reports a store failure partway through a payload. Already
// committed entities stay in place; the caller retries the whole payload and
// idempotent upsert converges.
type StorageError struct {
	Step     State
	Protocol string
	ChatID   string
	MsgID    string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure at %s (protocol=%s chat=%s msg=%s): %v",
		e.Step, e.Protocol, e.ChatID, e.MsgID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// AmbiguousParentAnomaly records a thread whose declared parent context did
// not match the ingestion context. Non-fatal: the thread link is skipped and
// the message is still ingested.
type AmbiguousParentAnomaly struct {
	ThreadID        string `json:"thread_id"`
	DeclaredChat    string `json:"declared_chat"`
	DeclaredChannel string `json:"declared_subchannel,omitempty"`
	ChatID          string `json:"chat_id"`
	ChannelID       string `json:"subchannel_id,omitempty"`
}

func (a AmbiguousParentAnomaly) String() string {
	return fmt.Sprintf("thread %s declares parent (%s,%s) but context is (%s,%s)",
		a.ThreadID, a.DeclaredChat, a.DeclaredChannel, a.ChatID, a.ChannelID)
}
