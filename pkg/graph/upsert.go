package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"chatgraph/pkg/models"
	"chatgraph/pkg/objid"
	"chatgraph/pkg/payload"
	"chatgraph/pkg/store"
)

// Upserter creates-or-updates canonical entities. Merge policy: scalar
// descriptive fields are first-writer-wins, counters are additive, sets are
// unions. Nothing here ever deletes or overwrites a populated field.
type Upserter struct {
	st *store.Store
}

// NewUpserter returns an Upserter backed by st.
func NewUpserter(st *store.Store) *Upserter {
	return &Upserter{st: st}
}

// Store exposes the underlying store to collaborators sharing the upserter.
func (u *Upserter) Store() *store.Store { return u.st }

// ensure writes the presence marker for ref and marks the delta if the
// entity is new.
func (u *Upserter) ensure(d *Delta, ref models.ObjRef) error {
	changed, err := u.st.SetIfUnset(store.ObjKey(ref.Global()), []byte{'1'})
	if err != nil {
		return err
	}
	if changed {
		d.Mark(ref)
	}
	return nil
}

// setScalar applies the first-writer-wins policy for one field. Empty values
// are skipped entirely so re-ingestion can never erase recorded data.
func (u *Upserter) setScalar(d *Delta, ref models.ObjRef, field, val string) error {
	if val == "" {
		return nil
	}
	changed, err := u.st.SetIfUnset(store.FieldKey(ref.Global(), field), []byte(val))
	if err != nil {
		return err
	}
	if changed {
		d.Mark(ref)
	}
	return nil
}

// EnsureChatInstance materializes the chat-service instance for the
// discriminator tuple, creating it lazily on first reference. The returned
// reference is stable across runs.
func (u *Upserter) EnsureChatInstance(d *Delta, protocol, network, address string) (models.ObjRef, error) {
	id := objid.ChatInstanceID(protocol, network, address)
	ref := models.ObjRef{Kind: models.KindChatInstance, ID: id}
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return models.ObjRef{}, err
	}
	if err := u.setScalar(d, ref, "protocol", protocol); err != nil {
		return models.ObjRef{}, err
	}
	if err := u.setScalar(d, ref, "network", network); err != nil {
		return models.ObjRef{}, err
	}
	if err := u.setScalar(d, ref, "address", address); err != nil {
		return models.ObjRef{}, err
	}
	return ref, nil
}

// UpsertChat merges declared chat metadata into the chat entity.
func (u *Upserter) UpsertChat(d *Delta, ref models.ObjRef, meta *payload.ChatMeta) error {
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	if err := u.setScalar(d, ref, "name", meta.Name); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "info", meta.Info); err != nil {
		return err
	}
	if meta.HasCreatedTS {
		if err := u.setScalar(d, ref, "created_at", strconv.FormatInt(meta.CreatedTS, 10)); err != nil {
			return err
		}
	}
	return nil
}

// UpsertSubChannel merges declared subchannel metadata.
func (u *Upserter) UpsertSubChannel(d *Delta, ref models.ObjRef, meta *payload.SubChannelMeta) error {
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	if err := u.setScalar(d, ref, "name", meta.Name); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "info", meta.Info); err != nil {
		return err
	}
	if meta.HasCreatedTS {
		if err := u.setScalar(d, ref, "created_at", strconv.FormatInt(meta.CreatedTS, 10)); err != nil {
			return err
		}
	}
	return nil
}

// UpsertThread records a thread whose declared parent already matched the
// ingestion context (the caller verifies that).
func (u *Upserter) UpsertThread(d *Delta, ref models.ObjRef, meta *payload.ThreadMeta) error {
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	if err := u.setScalar(d, ref, "name", meta.Name); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "parent_chat", meta.ParentChat); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "parent_subchannel", meta.ParentChannel); err != nil {
		return err
	}
	return u.setScalar(d, ref, "parent_message", meta.ParentMessage)
}

// MessageFields carries the merge inputs for one message upsert. A nil
// Content leaves any stored content untouched; empty placeholder messages
// (image carriers) pass nil.
type MessageFields struct {
	SenderID string
	TS       int64
	Content  []byte
	ReplyTo  string
	Forward  []byte
}

// UpsertMessage creates or merges a message entity under its derived id.
func (u *Upserter) UpsertMessage(d *Delta, ref models.ObjRef, f MessageFields) error {
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return err
	}
	if f.TS != 0 {
		if err := u.setScalar(d, ref, "ts", strconv.FormatInt(f.TS, 10)); err != nil {
			return err
		}
	}
	if err := u.setScalar(d, ref, "sender", f.SenderID); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "reply_to", f.ReplyTo); err != nil {
		return err
	}
	if len(f.Forward) > 0 {
		changed, err := u.st.SetIfUnset(store.FieldKey(ref.Global(), "forward"), f.Forward)
		if err != nil {
			return err
		}
		if changed {
			d.Mark(ref)
		}
	}
	if f.Content != nil {
		changed, err := u.st.SetIfUnset(store.FieldKey(ref.Global(), "content"), f.Content)
		if err != nil {
			return err
		}
		if changed {
			d.Mark(ref)
		}
	}
	return nil
}

// AddReaction additively merges one reaction count onto a message.
func (u *Upserter) AddReaction(d *Delta, ref models.ObjRef, label string, count int) error {
	if label == "" || count == 0 {
		return nil
	}
	if _, err := u.st.IncrCounter(store.CounterKey(ref.Global(), label), int64(count)); err != nil {
		return err
	}
	d.Mark(ref)
	return nil
}

// UpsertUserAccount merges declared sender metadata into the
// instance-scoped account entity.
func (u *Upserter) UpsertUserAccount(d *Delta, ref models.ObjRef, meta *payload.SenderMeta) error {
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	if err := u.setScalar(d, ref, "firstname", meta.FirstName); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "lastname", meta.LastName); err != nil {
		return err
	}
	if err := u.setScalar(d, ref, "phone", meta.Phone); err != nil {
		return err
	}
	return u.setScalar(d, ref, "info", meta.Info)
}

// UpsertUsername records a protocol-scoped handle.
func (u *Upserter) UpsertUsername(d *Delta, protocol, name string) (models.ObjRef, error) {
	ref := models.ObjRef{Kind: models.KindUsername, Subtype: protocol, ID: name}
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return models.ObjRef{}, err
	}
	return ref, nil
}

// UpsertImage stores image content under its hash. An existing entity with
// the same hash is reused untouched (content-addressed dedup).
func (u *Upserter) UpsertImage(d *Delta, sha string, content []byte) (models.ObjRef, error) {
	ref := models.ObjRef{Kind: models.KindImage, ID: sha}
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return models.ObjRef{}, err
	}
	if len(content) > 0 {
		changed, err := u.st.SetIfUnset(store.FieldKey(ref.Global(), "content"), content)
		if err != nil {
			return models.ObjRef{}, err
		}
		if changed {
			d.Mark(ref)
		}
	}
	return ref, nil
}

// UpsertImageContent hashes content and stores it as an image entity.
// Used for inline media such as chat and account icons.
func (u *Upserter) UpsertImageContent(d *Delta, content []byte) (models.ObjRef, error) {
	sum := sha256.Sum256(content)
	return u.UpsertImage(d, hex.EncodeToString(sum[:]), content)
}

// SetIcon records an icon reference, first writer wins.
func (u *Upserter) SetIcon(d *Delta, ref models.ObjRef, iconGlobal string) error {
	return u.setScalar(d, ref, "icon", iconGlobal)
}

// UpsertFileName records a declared media filename as its own entity so
// identical names across messages correlate.
func (u *Upserter) UpsertFileName(d *Delta, name string) (models.ObjRef, error) {
	ref := models.ObjRef{Kind: models.KindFileName, ID: name}
	unlock := u.st.LockEntity(ref.Global())
	defer unlock()
	if err := u.ensure(d, ref); err != nil {
		return models.ObjRef{}, err
	}
	return ref, nil
}
