package models

import "strings"

// Kind identifies a canonical object kind in the chat graph.
type Kind string

const (
	KindChatInstance Kind = "chat-instance"
	KindChat         Kind = "chat"
	KindSubChannel   Kind = "chat-subchannel"
	KindThread       Kind = "chat-thread"
	KindMessage      Kind = "message"
	KindUserAccount  Kind = "user-account"
	KindUsername     Kind = "username"
	KindImage        Kind = "image"
	KindFileName     Kind = "file-name"
)

// ObjRef is a global object reference: (kind, subtype, natural key).
// Chat-scoped kinds carry the chat-instance id as subtype; usernames carry
// the protocol name. Messages and images have no subtype.
type ObjRef struct {
	Kind    Kind   `json:"kind"`
	Subtype string `json:"subtype,omitempty"`
	ID      string `json:"id"`
}

// Global renders the reference as an opaque stable string.
func (r ObjRef) Global() string {
	return string(r.Kind) + ":" + r.Subtype + ":" + r.ID
}

// IsZero reports whether the reference is unset.
func (r ObjRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

// ParseGlobal splits a rendered global id back into an ObjRef. The id part
// may itself contain colons, so only the first two separators are split.
func ParseGlobal(s string) (ObjRef, bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return ObjRef{}, false
	}
	return ObjRef{Kind: Kind(parts[0]), Subtype: parts[1], ID: parts[2]}, true
}
