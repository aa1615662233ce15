package models

// ChatInstance is one deployment of a chat service. Immutable once created;
// looked up by the (protocol, network, address) composite key.
type ChatInstance struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	Network  string `json:"network,omitempty"`
	Address  string `json:"address,omitempty"`
}

// Chat is a conversation container scoped to a ChatInstance.
type Chat struct {
	ID        string   `json:"id"`
	Instance  string   `json:"instance"`
	Name      string   `json:"name,omitempty"`
	Info      string   `json:"info,omitempty"`
	CreatedTS int64    `json:"created_ts,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Children  []string `json:"children,omitempty"`
}

// SubChannel is a named partition inside a Chat. Its natural id is
// chatID/feederSubchannelID; the owning chat is a back-reference.
type SubChannel struct {
	ID        string `json:"id"`
	Instance  string `json:"instance"`
	Name      string `json:"name,omitempty"`
	Info      string `json:"info,omitempty"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}

// Thread is a reply-tree root inside a Chat or SubChannel.
type Thread struct {
	ID            string `json:"id"`
	Instance      string `json:"instance"`
	Name          string `json:"name,omitempty"`
	ParentChat    string `json:"parent_chat,omitempty"`
	ParentChannel string `json:"parent_subchannel,omitempty"`
	ParentMessage string `json:"parent_message,omitempty"`
}

// Message is the atomic unit of communication. ID is derived, never
// feeder-supplied. Forward is recorded verbatim and not validated.
type Message struct {
	ID        string         `json:"id"`
	Sender    string         `json:"sender,omitempty"`
	TS        int64          `json:"ts"`
	Content   []byte         `json:"content,omitempty"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	Forward   string         `json:"forward,omitempty"`
	Reactions map[string]int `json:"reactions,omitempty"`
}

// UserAccount is a sender identity scoped to a ChatInstance.
type UserAccount struct {
	ID        string `json:"id"`
	Instance  string `json:"instance"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Info      string `json:"info,omitempty"`
	Icon      string `json:"icon,omitempty"`
}
