// Package ingest drives one ingestion transaction end to end: decode the
// transport body, classify the object kind, resolve canonical identity,
// upsert every referenced entity and record the correlation edges, then hand
// the delta of touched objects to downstream sinks.
package ingest

import (
	"context"
	"time"

	"chatgraph/pkg/graph"
	"chatgraph/pkg/logger"
	"chatgraph/pkg/models"
	"chatgraph/pkg/objid"
	"chatgraph/pkg/payload"
	"chatgraph/pkg/store"
)

// State names one step of the per-payload state machine.
type State string

const (
	StateDecoding  State = "DECODING"
	StateClassify  State = "CLASSIFYING"
	StateResolving State = "RESOLVING_CONTEXT"
	StateUpserting State = "UPSERTING"
	StateCorrelate State = "CORRELATING"
	StateDone      State = "DONE"
	StateRejected  State = "REJECTED"
)

// Result is the terminal outcome of one payload.
type Result struct {
	State State             `json:"state"`
	Step  State             `json:"step,omitempty"` // failing step when rejected
	Kind  payload.EventKind `json:"kind,omitempty"`
	// Object is the primary object of the event (message, image, or chat).
	Object models.ObjRef `json:"object,omitempty"`
	// Delta lists every object whose stored state actually changed.
	// Re-ingesting unchanged data yields an empty delta.
	Delta     []models.ObjRef          `json:"delta,omitempty"`
	Anomalies []AmbiguousParentAnomaly `json:"anomalies,omitempty"`
}

// Sink consumes the delta set of touched objects (search index, statistics).
type Sink interface {
	Notify(ctx context.Context, refs []models.ObjRef) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, refs []models.ObjRef) error

func (f SinkFunc) Notify(ctx context.Context, refs []models.ObjRef) error { return f(ctx, refs) }

// Pipeline is the per-payload orchestrator. It is stateless between
// payloads; all shared state lives in the store.
type Pipeline struct {
	st    *store.Store
	up    *graph.Upserter
	corr  *graph.Correlator
	sinks []Sink
}

// New builds a pipeline over st. Sinks receive every non-empty delta.
func New(st *store.Store, sinks ...Sink) *Pipeline {
	return &Pipeline{
		st:    st,
		up:    graph.NewUpserter(st),
		corr:  graph.NewCorrelator(st),
		sinks: sinks,
	}
}

// resolved carries the identity context derived for one event.
type resolved struct {
	ts       int64
	date     string
	instance string

	chatRef   models.ObjRef
	subRef    models.ObjRef // zero when no subchannel declared
	threadRef models.ObjRef // zero when absent or parent mismatched
	msgRef    models.ObjRef // zero for chat-only pings
	senderRef models.ObjRef // zero when no sender declared
}

// Ingest processes one raw payload through the state machine and returns its
// terminal result. On rejection the returned error is the typed cause and
// res.Step records the failing state.
func (p *Pipeline) Ingest(ctx context.Context, ad payload.Adapter, raw []byte) (*Result, error) {
	start := time.Now()
	res := &Result{State: StateDecoding}

	reject := func(step State, err error) (*Result, error) {
		res.State = StateRejected
		res.Step = step
		ingestTotal.WithLabelValues(ad.Protocol(), "rejected").Inc()
		logger.Warn("payload_rejected", "protocol", ad.Protocol(), "step", string(step), "error", err)
		return res, err
	}

	// DECODING: envelope parse plus transport decode of the content body.
	ev, err := ad.Parse(raw)
	if err != nil {
		return reject(StateDecoding, &payload.DecodeError{Stage: "envelope", Err: err})
	}
	content, err := payload.Decode(ev.Data)
	if err != nil {
		return reject(StateDecoding, err)
	}

	// CLASSIFYING
	res.State = StateClassify
	kind := ev.Kind()
	if kind == payload.KindInvalid {
		return reject(StateClassify, &MalformedPayloadError{
			Protocol: ad.Protocol(),
			Reason:   "no message id and no chat id",
		})
	}
	res.Kind = kind

	// RESOLVING_CONTEXT
	res.State = StateResolving
	rc := p.resolve(ev, kind, res)

	// UPSERTING: each entity commit is independent; a failure aborts the
	// remaining steps but leaves committed entities in place.
	res.State = StateUpserting
	d := graph.NewDelta()
	chatIcon, senderIcon, err := p.upsertAll(ctx, ev, kind, rc, d, content)
	if err != nil {
		return reject(StateUpserting, &StorageError{
			Step: StateUpserting, Protocol: ad.Protocol(),
			ChatID: ev.Chat.ID, MsgID: ev.MessageID, Err: err,
		})
	}

	// CORRELATING
	res.State = StateCorrelate
	if err := p.correlateAll(ev, kind, rc, d, chatIcon, senderIcon); err != nil {
		return reject(StateCorrelate, &StorageError{
			Step: StateCorrelate, Protocol: ad.Protocol(),
			ChatID: ev.Chat.ID, MsgID: ev.MessageID, Err: err,
		})
	}

	// DONE
	res.State = StateDone
	res.Delta = d.Refs()
	switch kind {
	case payload.KindChat:
		res.Object = rc.chatRef
	default:
		res.Object = rc.msgRef
	}
	ingestTotal.WithLabelValues(ad.Protocol(), "done").Inc()
	for _, ref := range res.Delta {
		touchedTotal.WithLabelValues(string(ref.Kind)).Inc()
	}
	ingestDuration.Observe(time.Since(start).Seconds())

	if len(res.Delta) > 0 {
		for _, s := range p.sinks {
			if err := s.Notify(ctx, res.Delta); err != nil {
				logger.Warn("sink_notify_failed", "protocol", ad.Protocol(), "error", err)
			}
		}
	}
	return res, nil
}

// resolve derives every applicable canonical id. A thread whose declared
// parent does not match the context is recorded as an anomaly and dropped
// from the context; the event itself continues.
func (p *Pipeline) resolve(ev *payload.Event, kind payload.EventKind, res *Result) resolved {
	rc := resolved{ts: ev.EventTime()}
	rc.date = objid.DateString(rc.ts)
	rc.instance = objid.ChatInstanceID(ev.Protocol, ev.Network, ev.Address)

	rc.chatRef = models.ObjRef{Kind: models.KindChat, Subtype: rc.instance, ID: ev.Chat.ID}
	if sub := ev.SubchannelID(); sub != "" {
		rc.subRef = models.ObjRef{
			Kind:    models.KindSubChannel,
			Subtype: rc.instance,
			ID:      objid.SubChannelID(ev.Chat.ID, sub),
		}
	}
	// threads ride on messages; a chat-only ping never materializes one
	if tid := ev.ThreadID(); tid != "" && kind != payload.KindChat {
		if ev.Thread.ParentChat == ev.Chat.ID && ev.Thread.ParentChannel == ev.SubchannelID() {
			rc.threadRef = models.ObjRef{Kind: models.KindThread, Subtype: rc.instance, ID: tid}
		} else {
			a := AmbiguousParentAnomaly{
				ThreadID:        tid,
				DeclaredChat:    ev.Thread.ParentChat,
				DeclaredChannel: ev.Thread.ParentChannel,
				ChatID:          ev.Chat.ID,
				ChannelID:       ev.SubchannelID(),
			}
			res.Anomalies = append(res.Anomalies, a)
			anomaliesTotal.WithLabelValues("ambiguous_parent").Inc()
			logger.Warn("ambiguous_thread_parent", "protocol", ev.Protocol, "detail", a.String())
		}
	}
	if kind != payload.KindChat {
		rc.msgRef = models.ObjRef{
			Kind: models.KindMessage,
			ID: objid.MessageID(rc.instance, ev.Chat.ID, ev.MessageID, rc.ts,
				ev.SubchannelID(), rc.threadRef.ID),
		}
	}
	if ev.Sender != nil && ev.Sender.ID != "" {
		rc.senderRef = models.ObjRef{Kind: models.KindUserAccount, Subtype: rc.instance, ID: ev.Sender.ID}
	}
	return rc
}

// upsertAll applies the merge policy to every referenced entity. It returns
// the icon image refs (zero when absent) for the correlation step.
func (p *Pipeline) upsertAll(ctx context.Context, ev *payload.Event, kind payload.EventKind, rc resolved, d *graph.Delta, content []byte) (chatIcon, senderIcon models.ObjRef, err error) {
	if err := ctx.Err(); err != nil {
		return chatIcon, senderIcon, err
	}
	if _, err := p.up.EnsureChatInstance(d, ev.Protocol, ev.Network, ev.Address); err != nil {
		return chatIcon, senderIcon, err
	}
	if err := p.up.UpsertChat(d, rc.chatRef, ev.Chat); err != nil {
		return chatIcon, senderIcon, err
	}
	if ev.Chat.Icon != "" {
		if chatIcon, err = p.upsertIcon(d, ev.Chat.Icon); err != nil {
			return chatIcon, senderIcon, err
		}
		if err := p.up.SetIcon(d, rc.chatRef, chatIcon.Global()); err != nil {
			return chatIcon, senderIcon, err
		}
	}
	if !rc.subRef.IsZero() {
		if err := p.up.UpsertSubChannel(d, rc.subRef, ev.Chat.Subchannel); err != nil {
			return chatIcon, senderIcon, err
		}
	}
	if !rc.threadRef.IsZero() {
		if err := p.up.UpsertThread(d, rc.threadRef, ev.Thread); err != nil {
			return chatIcon, senderIcon, err
		}
	}

	switch kind {
	case payload.KindMessage:
		fields := graph.MessageFields{
			SenderID: rc.senderRef.ID,
			TS:       rc.ts,
			Content:  content,
			ReplyTo:  ev.ReplyToID,
			Forward:  []byte(ev.Forward),
		}
		if err := p.up.UpsertMessage(d, rc.msgRef, fields); err != nil {
			return chatIcon, senderIcon, err
		}
	case payload.KindImage:
		// images ride on their carrier message; create it empty when the
		// message itself has not arrived yet.
		if err := p.up.UpsertMessage(d, rc.msgRef, graph.MessageFields{SenderID: rc.senderRef.ID, TS: rc.ts}); err != nil {
			return chatIcon, senderIcon, err
		}
		if _, err := p.up.UpsertImage(d, ev.DataSHA256, content); err != nil {
			return chatIcon, senderIcon, err
		}
	}
	if kind != payload.KindChat {
		for _, r := range ev.Reactions {
			if err := p.up.AddReaction(d, rc.msgRef, r.Label, r.Count); err != nil {
				return chatIcon, senderIcon, err
			}
		}
		if ev.MediaName != "" {
			if _, err := p.up.UpsertFileName(d, ev.MediaName); err != nil {
				return chatIcon, senderIcon, err
			}
		}
	}

	if !rc.senderRef.IsZero() {
		if err := p.up.UpsertUserAccount(d, rc.senderRef, ev.Sender); err != nil {
			return chatIcon, senderIcon, err
		}
		if ev.Sender.Icon != "" {
			if senderIcon, err = p.upsertIcon(d, ev.Sender.Icon); err != nil {
				return chatIcon, senderIcon, err
			}
			if err := p.up.SetIcon(d, rc.senderRef, senderIcon.Global()); err != nil {
				return chatIcon, senderIcon, err
			}
		}
		if ev.Sender.Username != "" {
			if _, err := p.up.UpsertUsername(d, ev.Protocol, ev.Sender.Username); err != nil {
				return chatIcon, senderIcon, err
			}
		}
	}
	if ev.Chat.Username != "" {
		if _, err := p.up.UpsertUsername(d, ev.Protocol, ev.Chat.Username); err != nil {
			return chatIcon, senderIcon, err
		}
	}
	return chatIcon, senderIcon, nil
}

// upsertIcon decodes inline base64 icon content into a content-addressed
// image entity.
func (p *Pipeline) upsertIcon(d *graph.Delta, b64 string) (models.ObjRef, error) {
	content, err := payload.DecodeBase64(b64)
	if err != nil {
		// a bad icon never rejects the payload; the reference is skipped
		logger.Warn("icon_decode_failed", "error", err)
		return models.ObjRef{}, nil
	}
	return p.up.UpsertImageContent(d, content)
}

// correlateAll records the full correlation edge set for the event.
func (p *Pipeline) correlateAll(ev *payload.Event, kind payload.EventKind, rc resolved, d *graph.Delta, chatIcon, senderIcon models.ObjRef) error {
	chatObjs := []models.ObjRef{rc.chatRef}
	if !rc.subRef.IsZero() {
		chatObjs = append(chatObjs, rc.subRef)
	}
	if !rc.threadRef.IsZero() {
		chatObjs = append(chatObjs, rc.threadRef)
	}

	for _, obj := range chatObjs {
		if err := p.corr.AddDay(d, obj, rc.date); err != nil {
			return err
		}
	}
	if !rc.subRef.IsZero() {
		if err := p.corr.Link(d, rc.chatRef, rc.subRef); err != nil {
			return err
		}
	}
	if !rc.threadRef.IsZero() {
		parent := rc.chatRef
		if !rc.subRef.IsZero() {
			parent = rc.subRef
		}
		if err := p.corr.Link(d, parent, rc.threadRef); err != nil {
			return err
		}
	}

	if kind != payload.KindChat {
		container := rc.chatRef
		if !rc.subRef.IsZero() {
			container = rc.subRef
		}
		if !rc.threadRef.IsZero() {
			container = rc.threadRef
		}
		if err := p.corr.AddMessage(d, container, rc.msgRef, ev.MessageID, rc.ts, ev.ReplyToID); err != nil {
			return err
		}
	}

	if kind == payload.KindImage {
		imgRef := models.ObjRef{Kind: models.KindImage, ID: ev.DataSHA256}
		if err := p.corr.AddDay(d, imgRef, rc.date); err != nil {
			return err
		}
		if err := p.corr.SetParent(d, imgRef, rc.msgRef); err != nil {
			return err
		}
	}
	if ev.MediaName != "" && kind != payload.KindChat {
		fnRef := models.ObjRef{Kind: models.KindFileName, ID: ev.MediaName}
		if err := p.corr.AddDay(d, fnRef, rc.date); err != nil {
			return err
		}
		if err := p.corr.Correlate(d, fnRef, rc.msgRef); err != nil {
			return err
		}
		if kind == payload.KindImage {
			if err := p.corr.Correlate(d, fnRef, models.ObjRef{Kind: models.KindImage, ID: ev.DataSHA256}); err != nil {
				return err
			}
		}
	}

	if !chatIcon.IsZero() {
		if err := p.corr.AddDay(d, chatIcon, rc.date); err != nil {
			return err
		}
		if err := p.corr.Correlate(d, chatIcon, rc.chatRef); err != nil {
			return err
		}
	}
	if ev.Chat.Username != "" {
		uref := models.ObjRef{Kind: models.KindUsername, Subtype: ev.Protocol, ID: ev.Chat.Username}
		if err := p.corr.ClaimUsername(d, rc.chatRef, uref, rc.ts); err != nil {
			return err
		}
	}

	if !rc.senderRef.IsZero() {
		if err := p.corr.AddDay(d, rc.senderRef, rc.date); err != nil {
			return err
		}
		if err := p.corr.CorrelateSender(d, rc.senderRef, chatObjs); err != nil {
			return err
		}
		if !rc.msgRef.IsZero() {
			if err := p.corr.Correlate(d, rc.senderRef, rc.msgRef); err != nil {
				return err
			}
		}
		if kind == payload.KindImage {
			if err := p.corr.Correlate(d, rc.senderRef, models.ObjRef{Kind: models.KindImage, ID: ev.DataSHA256}); err != nil {
				return err
			}
		}
		if !senderIcon.IsZero() {
			if err := p.corr.AddDay(d, senderIcon, rc.date); err != nil {
				return err
			}
			if err := p.corr.Correlate(d, senderIcon, rc.senderRef); err != nil {
				return err
			}
		}
		if ev.Sender.Username != "" {
			uref := models.ObjRef{Kind: models.KindUsername, Subtype: ev.Protocol, ID: ev.Sender.Username}
			if err := p.corr.AddDay(d, uref, rc.date); err != nil {
				return err
			}
			if err := p.corr.ClaimUsername(d, rc.senderRef, uref, rc.ts); err != nil {
				return err
			}
		}
	}
	return nil
}
