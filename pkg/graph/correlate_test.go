package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chatgraph/pkg/models"
	"chatgraph/pkg/store"
)

func TestAddDayIdempotent(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	ref := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}

	d := NewDelta()
	require.NoError(t, c.AddDay(d, ref, "20231114"))
	require.False(t, d.Empty())

	d2 := NewDelta()
	require.NoError(t, c.AddDay(d2, ref, "20231114"))
	require.True(t, d2.Empty())

	// Both the entity-side set and the global day index must exist.
	ok, err := st.Exists(store.SetKey(ref.Global(), "days", "20231114"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Exists(store.DayKey("20231114", ref.Global()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLinkBothSides(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	parent := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}
	child := models.ObjRef{Kind: models.KindThread, Subtype: "telegram", ID: "t1"}

	require.NoError(t, c.Link(NewDelta(), parent, child))

	ok, err := st.Exists(store.SetKey(parent.Global(), "children", child.Global()))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Exists(store.SetKey(child.Global(), "parents", parent.Global()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCorrelateBidirectional(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	a := models.ObjRef{Kind: models.KindUserAccount, Subtype: "telegram", ID: "u1"}
	b := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}

	d := NewDelta()
	require.NoError(t, c.Correlate(d, a, b))
	require.Len(t, d.Refs(), 2)

	d2 := NewDelta()
	require.NoError(t, c.Correlate(d2, a, b))
	require.True(t, d2.Empty(), "replayed correlation must add nothing")

	ok, err := st.Exists(store.SetKey(a.Global(), "corr", b.Global()))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Exists(store.SetKey(b.Global(), "corr", a.Global()))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddMessageReplyResolution(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	container := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}
	first := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "inst/c:c1/m:m1/100"}
	second := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "inst/c:c1/m:m2/200"}

	require.NoError(t, c.AddMessage(NewDelta(), container, first, "m1", 100, ""))
	// m2 replies to m1, which is already indexed: correlate the two messages.
	require.NoError(t, c.AddMessage(NewDelta(), container, second, "m2", 200, "m1"))

	ok, err := st.Exists(store.SetKey(second.Global(), "corr", first.Global()))
	require.NoError(t, err)
	require.True(t, ok, "resolved reply must correlate both messages")
	ok, err = st.Exists(store.SetKey(second.Global(), "reply-to", "m1"))
	require.NoError(t, err)
	require.False(t, ok, "resolved reply must not leave a raw marker")
}

func TestAddMessageReplyUnresolved(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	container := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}
	msg := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "inst/c:c1/m:m2/200"}

	// The reply target never arrived; record the raw feeder id.
	require.NoError(t, c.AddMessage(NewDelta(), container, msg, "m2", 200, "m9"))

	ok, err := st.Exists(store.SetKey(msg.Global(), "reply-to", "m9"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddMessageTimeline(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	container := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}
	m1 := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "x/m:m1/900"}
	m2 := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "x/m:m2/50"}

	require.NoError(t, c.AddMessage(NewDelta(), container, m1, "m1", 900, ""))
	require.NoError(t, c.AddMessage(NewDelta(), container, m2, "m2", 50, ""))

	keys, err := st.ScanKeys(store.TimelinePrefix(container.Global(), "messages"))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, store.TimelineKey(container.Global(), "messages", 50, "m2"), keys[0],
		"timeline scan must come back in chronological order")
}

func TestClaimUsername(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	account := models.ObjRef{Kind: models.KindUserAccount, Subtype: "telegram", ID: "u1"}
	username := models.ObjRef{Kind: models.KindUsername, Subtype: "telegram", ID: "alice"}

	d := NewDelta()
	require.NoError(t, c.ClaimUsername(d, account, username, 1700000000))
	require.False(t, d.Empty())

	ok, err := st.Exists(store.TimelineKey(account.Global(), "username", 1700000000, "alice"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Exists(store.TimelineKey(username.Global(), "accounts", 1700000000, "u1"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Exists(store.SetKey(account.Global(), "corr", username.Global()))
	require.NoError(t, err)
	require.True(t, ok)

	d2 := NewDelta()
	require.NoError(t, c.ClaimUsername(d2, account, username, 1700000000))
	require.True(t, d2.Empty())
}

func TestSetParent(t *testing.T) {
	st := openTest(t)
	c := NewCorrelator(st)
	img := models.ObjRef{Kind: models.KindImage, ID: "abc123"}
	msg := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "x/m:m1/1"}

	require.NoError(t, c.SetParent(NewDelta(), img, msg))

	v, ok, err := st.Get(store.FieldKey(img.Global(), "parent"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, msg.Global(), string(v))
}

func TestDeltaOrderAndDedup(t *testing.T) {
	d := NewDelta()
	a := models.ObjRef{Kind: models.KindChat, Subtype: "telegram", ID: "c1"}
	b := models.ObjRef{Kind: models.KindMessage, Subtype: "telegram", ID: "m1"}
	d.Mark(a)
	d.Mark(b)
	d.Mark(a)
	require.Equal(t, []models.ObjRef{a, b}, d.Refs())
}
