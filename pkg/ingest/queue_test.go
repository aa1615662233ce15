package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatgraph/pkg/objid"
	"chatgraph/pkg/store"
)

func TestQueueShedsAtCapacity(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.TryEnqueue("telegram", []byte(`{}`)))
	err := q.TryEnqueue("telegram", []byte(`{}`))
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, uint64(1), q.Dropped())
}

func TestQueueClosedRejectsIntake(t *testing.T) {
	q := NewQueue(4)
	q.Close()
	require.ErrorIs(t, q.TryEnqueue("telegram", []byte(`{}`)), ErrQueueClosed)
	// double close must not panic
	q.Close()
}

func TestQueueCloseDuringEnqueue(t *testing.T) {
	// enqueues racing Close must shed with ErrQueueClosed, never panic on a
	// closed channel
	for round := 0; round < 200; round++ {
		q := NewQueue(4)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					err := q.TryEnqueue("telegram", []byte(`{}`))
					if err != nil && !errors.Is(err, ErrQueueFull) && !errors.Is(err, ErrQueueClosed) {
						t.Errorf("unexpected enqueue error: %v", err)
						return
					}
				}
			}()
		}
		q.Close()
		wg.Wait()
		require.ErrorIs(t, q.TryEnqueue("telegram", []byte(`{}`)), ErrQueueClosed)
	}
}

func TestQueueWorkersDrain(t *testing.T) {
	st := openTest(t)
	p := New(st)
	q := NewQueue(8)

	require.NoError(t, q.TryEnqueue("telegram", messagePayload(t, "queued")))

	wait := q.RunWorkers(context.Background(), 2, p)
	q.Close()
	done := make(chan struct{})
	go func() { wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("workers did not drain")
	}

	inst := objid.ChatInstanceID("telegram", "", "")
	msgGlobal := "message::" + inst + "/c:c1/m:m1/1700000000"
	v, ok, err := st.Get(store.FieldKey(msgGlobal, "content"))
	require.NoError(t, err)
	require.True(t, ok, "queued payload was not processed")
	require.Equal(t, "queued", string(v))
}
