package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"chatgraph/pkg/logger"
	"chatgraph/pkg/payload"
)

// ErrQueueFull is returned by TryEnqueue when the intake queue is at
// capacity; callers shed load instead of blocking.
var ErrQueueFull = errors.New("ingest queue full")

// ErrQueueClosed is returned once the queue has been closed.
var ErrQueueClosed = errors.New("ingest queue closed")

const defaultQueueCapacity = 16 * 1024

// maxPooledBuffer bounds what goes back to the buffer pool so one oversized
// payload cannot pin memory.
const maxPooledBuffer = 256 * 1024

// job is one queued payload. The raw bytes live in a pooled buffer released
// after processing.
type job struct {
	protocol string
	raw      []byte
	buf      *bytebufferpool.ByteBuffer
}

func (j *job) done() {
	if j.buf != nil {
		if cap(j.buf.B) <= maxPooledBuffer {
			bytebufferpool.Put(j.buf)
		}
		j.buf = nil
	}
	j.raw = nil
}

// Queue is a bounded in-memory intake for asynchronous ingestion. Payloads
// are independent units of work; workers process them in parallel while the
// store's per-entity locks keep merges serialized.
type Queue struct {
	ch      chan *job
	dropped uint64

	// mu excludes Close from concurrent enqueues so the channel can never
	// be closed between the closed-flag check and the send.
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewQueue creates a bounded queue; capacity <= 0 selects the default.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Queue{ch: make(chan *job, capacity)}
}

// TryEnqueue accepts one payload without blocking. The bytes are copied into
// a pooled buffer; the caller may reuse raw immediately.
func (q *Queue) TryEnqueue(protocol string, raw []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], raw...)
	j := &job{protocol: protocol, raw: bb.B[:len(raw)], buf: bb}
	select {
	case q.ch <- j:
		queueDepth.Inc()
		return nil
	default:
		j.done()
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Dropped reports how many payloads were shed at capacity.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// Close stops intake. Workers drain what was already accepted.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// RunWorkers starts n workers draining the queue into p. Cancellation of
// ctx stops intake of further payloads only; a payload already picked up is
// processed to completion. Wait on the returned func during shutdown.
func (q *Queue) RunWorkers(ctx context.Context, n int, p *Pipeline) (wait func()) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case j, ok := <-q.ch:
					if !ok {
						return
					}
					queueDepth.Dec()
					q.process(j, p)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	return q.wg.Wait
}

func (q *Queue) process(j *job, p *Pipeline) {
	defer j.done()
	// single-payload processing is never cancelled mid-flight
	if _, err := p.Ingest(context.Background(), payload.NewJSONAdapter(j.protocol), j.raw); err != nil {
		logger.Warn("async_ingest_failed", "protocol", j.protocol, "error", err)
	}
}
