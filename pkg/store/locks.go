package store

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of mutexes per table. Collisions across distinct
// ids only cost contention, never correctness.
const lockStripes = 512

// lockTable is a striped mutex table keyed by string hash. Entity-level and
// key-level locks live in separate tables so holding an entity lock while a
// primitive takes a key lock can never self-deadlock.
type lockTable struct {
	mu [lockStripes]sync.Mutex
}

func (t *lockTable) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &t.mu[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
