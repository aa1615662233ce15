// Package graph implements the canonical object graph on top of the store:
// idempotent entity upserts with a per-field merge policy, and the
// correlation edges that tie entities together for timeline and statistics
// queries.
package graph

import "chatgraph/pkg/models"

// Delta collects the references whose stored state actually changed during
// one ingestion event. Re-ingesting unchanged data leaves the delta empty.
type Delta struct {
	refs []models.ObjRef
	seen map[string]struct{}
}

// NewDelta returns an empty delta.
func NewDelta() *Delta {
	return &Delta{seen: map[string]struct{}{}}
}

// Mark records ref as touched. Duplicates collapse; insertion order is kept.
func (d *Delta) Mark(ref models.ObjRef) {
	g := ref.Global()
	if _, ok := d.seen[g]; ok {
		return
	}
	d.seen[g] = struct{}{}
	d.refs = append(d.refs, ref)
}

// Refs returns the touched references in first-touch order.
func (d *Delta) Refs() []models.ObjRef { return d.refs }

// Empty reports whether nothing changed.
func (d *Delta) Empty() bool { return len(d.refs) == 0 }
