// Package store provides the Pebble-backed key-value layer beneath the
// ingestion pipeline. It exposes exactly the primitives the upsert merge
// policy needs: set-if-unset scalars, additive counters, union sets and
// existence checks, each atomic per key.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"chatgraph/pkg/logger"
)

// Store wraps an open Pebble database. All pipeline writes go through its
// primitives so the merge policy cannot race.
type Store struct {
	db   *pebble.DB
	path string

	entityLocks lockTable
	keyLocks    lockTable
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return err
}

// LockEntity serializes all upsert work for one entity global id. The
// returned func releases the lock; callers hold it for the duration of one
// upsert so first-writer-wins merges cannot interleave.
func (s *Store) LockEntity(global string) func() {
	return s.entityLocks.lock(global)
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) ([]byte, bool, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

// Set writes key unconditionally. Reserved for explicit update calls; the
// merge policy uses SetIfUnset.
func (s *Store) Set(key string, val []byte) error {
	opsTotal.WithLabelValues("set").Inc()
	if err := s.db.Set([]byte(key), val, pebble.Sync); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetIfUnset stores val under key only when the key is absent. It reports
// whether the write happened. First writer wins; later values never clobber.
func (s *Store) SetIfUnset(key string, val []byte) (bool, error) {
	unlock := s.keyLocks.lock(key)
	defer unlock()
	opsTotal.WithLabelValues("set_if_unset").Inc()
	_, ok, err := s.Get(key)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := s.db.Set([]byte(key), val, pebble.Sync); err != nil {
		return false, fmt.Errorf("set %s: %w", key, err)
	}
	return true, nil
}

// AddToSet records set membership under a presence key. Duplicate inserts
// are no-ops; the return value reports whether membership was new.
func (s *Store) AddToSet(key string) (bool, error) {
	unlock := s.keyLocks.lock(key)
	defer unlock()
	opsTotal.WithLabelValues("add_to_set").Inc()
	ok, err := s.Exists(key)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := s.db.Set([]byte(key), []byte{'1'}, pebble.Sync); err != nil {
		return false, fmt.Errorf("set %s: %w", key, err)
	}
	return true, nil
}

// IncrCounter adds delta to the counter stored at key and returns the new
// total. Counters are stored as decimal strings for inspectability.
func (s *Store) IncrCounter(key string, delta int64) (int64, error) {
	unlock := s.keyLocks.lock(key)
	defer unlock()
	opsTotal.WithLabelValues("incr_counter").Inc()
	var cur int64
	if v, ok, err := s.Get(key); err != nil {
		return 0, err
	} else if ok {
		cur, err = strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("counter %s holds non-numeric value: %w", key, err)
		}
	}
	next := cur + delta
	if err := s.db.Set([]byte(key), []byte(strconv.FormatInt(next, 10)), pebble.Sync); err != nil {
		return 0, fmt.Errorf("set %s: %w", key, err)
	}
	return next, nil
}

// ScanKeys returns all keys with the given prefix, in key order.
func (s *Store) ScanKeys(prefix string) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// ScanValues returns key/value pairs with the given prefix, in key order.
func (s *Store) ScanValues(prefix string) (map[string][]byte, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	pfx := []byte(prefix)
	out := map[string][]byte{}
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := string(append([]byte(nil), iter.Key()...))
		out[k] = append([]byte(nil), iter.Value()...)
	}
	return out, iter.Error()
}
