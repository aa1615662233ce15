package graph

import (
	"chatgraph/pkg/models"
	"chatgraph/pkg/store"
)

// Correlator records the edges of one ingestion event: per-day timeline
// membership, parent/child links, sender correlations, reply targets and
// username claims. Every edge is idempotent; replaying a payload adds
// nothing.
type Correlator struct {
	st *store.Store
}

// NewCorrelator returns a Correlator backed by st.
func NewCorrelator(st *store.Store) *Correlator {
	return &Correlator{st: st}
}

// AddDay records that ref was active on date (YYYYMMDD), both on the entity
// and in the global per-day index.
func (c *Correlator) AddDay(d *Delta, ref models.ObjRef, date string) error {
	changed, err := c.st.AddToSet(store.SetKey(ref.Global(), "days", date))
	if err != nil {
		return err
	}
	if _, err := c.st.SetIfUnset(store.DayKey(date, ref.Global()), []byte{'1'}); err != nil {
		return err
	}
	if changed {
		d.Mark(ref)
	}
	return nil
}

// Link records a non-owning parent/child edge on both sides.
func (c *Correlator) Link(d *Delta, parent, child models.ObjRef) error {
	changed, err := c.st.AddToSet(store.SetKey(parent.Global(), "children", child.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(parent)
	}
	changed, err = c.st.AddToSet(store.SetKey(child.Global(), "parents", parent.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(child)
	}
	return nil
}

// Correlate records a bidirectional association edge distinct from
// parent/child ownership.
func (c *Correlator) Correlate(d *Delta, a, b models.ObjRef) error {
	changed, err := c.st.AddToSet(store.SetKey(a.Global(), "corr", b.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(a)
	}
	changed, err = c.st.AddToSet(store.SetKey(b.Global(), "corr", a.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(b)
	}
	return nil
}

// AddMessage attaches a message to its container (chat, subchannel or
// thread): membership edge, chronological timeline entry, and a feeder-id
// index so later reply references can resolve to the derived id. When the
// message carries a reply reference the edge is recorded optimistically:
// resolved against the index if the target already arrived, kept as the raw
// feeder id otherwise.
func (c *Correlator) AddMessage(d *Delta, container, msg models.ObjRef, feederID string, ts int64, replyTo string) error {
	if err := c.Link(d, container, msg); err != nil {
		return err
	}
	changed, err := c.st.SetIfUnset(store.TimelineKey(container.Global(), "messages", ts, feederID), []byte(msg.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(container)
	}
	if feederID != "" {
		if _, err := c.st.SetIfUnset(store.SetKey(container.Global(), "msgids", feederID), []byte(msg.Global())); err != nil {
			return err
		}
	}
	if replyTo == "" {
		return nil
	}
	// reply target: never validated for existence; messages may arrive out
	// of order before their target.
	if v, ok, err := c.st.Get(store.SetKey(container.Global(), "msgids", replyTo)); err != nil {
		return err
	} else if ok {
		if target, valid := models.ParseGlobal(string(v)); valid {
			return c.Correlate(d, msg, target)
		}
	}
	changed, err = c.st.AddToSet(store.SetKey(msg.Global(), "reply-to", replyTo))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(msg)
	}
	return nil
}

// CorrelateSender records the account's participation in every chat object
// of the event.
func (c *Correlator) CorrelateSender(d *Delta, account models.ObjRef, chatObjs []models.ObjRef) error {
	for _, obj := range chatObjs {
		if err := c.Correlate(d, account, obj); err != nil {
			return err
		}
	}
	return nil
}

// ClaimUsername records, at the event timestamp, that account held the
// handle. Both sides keep ordered timelines so "who held this handle at
// time T" stays answerable.
func (c *Correlator) ClaimUsername(d *Delta, account, username models.ObjRef, ts int64) error {
	changed, err := c.st.SetIfUnset(store.TimelineKey(account.Global(), "username", ts, username.ID), []byte(username.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(account)
	}
	changed, err = c.st.SetIfUnset(store.TimelineKey(username.Global(), "accounts", ts, account.ID), []byte(account.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(username)
	}
	return c.Correlate(d, account, username)
}

// SetParent records a media entity's back-reference to the object it was
// attached to.
func (c *Correlator) SetParent(d *Delta, child, parent models.ObjRef) error {
	changed, err := c.st.SetIfUnset(store.FieldKey(child.Global(), "parent"), []byte(parent.Global()))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(child)
	}
	return c.Correlate(d, child, parent)
}
