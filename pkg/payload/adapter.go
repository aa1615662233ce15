package payload

import (
	"encoding/json"
	"fmt"
)

// Adapter converts one platform's raw export payload into a typed Event.
// The pipeline consumes only this interface; platform quirks stay behind it.
type Adapter interface {
	// Protocol names the chat protocol this adapter feeds (e.g. "telegram").
	Protocol() string
	// Parse resolves the raw payload into a total Event. A parse failure
	// means the envelope itself is malformed, not that identity fields are
	// missing; classification of incomplete events happens later.
	Parse(raw []byte) (*Event, error)
}

// wireEnvelope is the common JSON export shape shared by the feeders this
// pipeline currently accepts.
type wireEnvelope struct {
	Meta       wireMeta `json:"meta"`
	Data       string   `json:"data"`
	DataSHA256 string   `json:"data-sha256"`
}

type wireMeta struct {
	ID   *string `json:"id"`
	Chat *struct {
		ID         string    `json:"id"`
		Name       string    `json:"name"`
		Info       string    `json:"info"`
		Username   string    `json:"username"`
		Icon       string    `json:"icon"`
		Date       *wireDate `json:"date"`
		Subchannel *struct {
			ID   string    `json:"id"`
			Name string    `json:"name"`
			Info string    `json:"info"`
			Date *wireDate `json:"date"`
		} `json:"subchannel"`
	} `json:"chat"`
	Thread *struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Parent struct {
			Chat       string `json:"chat"`
			Subchannel string `json:"subchannel"`
			Message    string `json:"message"`
		} `json:"parent"`
	} `json:"thread"`
	Sender *struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		FirstName string `json:"firstname"`
		LastName  string `json:"lastname"`
		Phone     string `json:"phone"`
		Info      string `json:"info"`
		Icon      string `json:"icon"`
	} `json:"sender"`
	Date      *wireDate `json:"date"`
	Media     *struct {
		Name string `json:"name"`
	} `json:"media"`
	Reactions []struct {
		Reaction string `json:"reaction"`
		Count    int    `json:"count"`
	} `json:"reactions"`
	ReplyTo *struct {
		MessageID string `json:"message_id"`
	} `json:"reply_to"`
	Forward json.RawMessage `json:"forward"`
	Network string          `json:"network"`
	Address string          `json:"address"`
}

type wireDate struct {
	Timestamp int64 `json:"timestamp"`
}

// JSONAdapter parses the common JSON export envelope for a named protocol.
type JSONAdapter struct {
	protocol string
}

// NewJSONAdapter returns an adapter for the given protocol name.
func NewJSONAdapter(protocol string) *JSONAdapter {
	return &JSONAdapter{protocol: protocol}
}

func (a *JSONAdapter) Protocol() string { return a.protocol }

// Parse implements Adapter. Missing optional keys are absent, never errors.
func (a *JSONAdapter) Parse(raw []byte) (*Event, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid payload json: %w", err)
	}
	ev := &Event{
		Protocol:   a.protocol,
		Network:    env.Meta.Network,
		Address:    env.Meta.Address,
		Data:       env.Data,
		DataSHA256: env.DataSHA256,
		Forward:    env.Meta.Forward,
	}
	if env.Meta.ID != nil {
		ev.MessageID = *env.Meta.ID
		ev.HasMessageID = true
	}
	if env.Meta.Date != nil {
		ev.Timestamp = env.Meta.Date.Timestamp
		ev.HasTimestamp = true
	}
	if c := env.Meta.Chat; c != nil {
		cm := &ChatMeta{ID: c.ID, Name: c.Name, Info: c.Info, Username: c.Username, Icon: c.Icon}
		if c.Date != nil {
			cm.CreatedTS = c.Date.Timestamp
			cm.HasCreatedTS = true
		}
		if sc := c.Subchannel; sc != nil {
			scm := &SubChannelMeta{ID: sc.ID, Name: sc.Name, Info: sc.Info}
			if sc.Date != nil {
				scm.CreatedTS = sc.Date.Timestamp
				scm.HasCreatedTS = true
			}
			cm.Subchannel = scm
		}
		ev.Chat = cm
	}
	if t := env.Meta.Thread; t != nil {
		ev.Thread = &ThreadMeta{
			ID:            t.ID,
			Name:          t.Name,
			ParentChat:    t.Parent.Chat,
			ParentChannel: t.Parent.Subchannel,
			ParentMessage: t.Parent.Message,
		}
	}
	if s := env.Meta.Sender; s != nil {
		ev.Sender = &SenderMeta{
			ID:        s.ID,
			Username:  s.Username,
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Phone:     s.Phone,
			Info:      s.Info,
			Icon:      s.Icon,
		}
	}
	if env.Meta.Media != nil {
		ev.MediaName = env.Meta.Media.Name
	}
	for _, r := range env.Meta.Reactions {
		ev.Reactions = append(ev.Reactions, Reaction{Label: r.Reaction, Count: r.Count})
	}
	if env.Meta.ReplyTo != nil {
		ev.ReplyToID = env.Meta.ReplyTo.MessageID
	}
	return ev, nil
}
