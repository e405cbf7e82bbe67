// multikeystore.go: MultiKeyStore[V], a value keyed by n key identities
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MultiKeyStore associates a value with an ordered tuple of one or more
// key objects. The entry is released the instant any one of its keys
// becomes unreachable elsewhere in the program: liveness is the
// conjunction of every key's liveness, not the disjunction.
type MultiKeyStore[V any] struct {
	cfg      Config
	idx      *shardedIndex[V]
	inflight sync.Map // callKey string -> *mksInflightCall[V]

	reaperMu     sync.Mutex // guards reaper and reapInterval against concurrent SetReapInterval
	reaper       *reaper
	reapInterval atomic.Int64 // time.Duration, for HotConfig to read back
	logger       atomic.Pointer[Logger]

	hits              atomic.Uint64
	misses            atomic.Uint64
	inserts           atomic.Uint64
	explicitDisposes  atomic.Uint64
	reclaimedDisposes atomic.Uint64
	closed            atomic.Bool
}

// NewMultiKeyStore creates a store with the given configuration. A zero
// Config is valid; Validate fills in defaults.
func NewMultiKeyStore[V any](cfg Config) (*MultiKeyStore[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &MultiKeyStore[V]{
		cfg: cfg,
		idx: newShardedIndex[V](cfg.ShardCount),
	}
	s.logger.Store(&cfg.Logger)
	s.reapInterval.Store(int64(cfg.ReapInterval))
	if cfg.ReapInterval > 0 {
		s.reaper = newReaper(cfg.ReapInterval, s.idx.sweep, cfg.Logger)
		s.reaper.start()
	}
	return s, nil
}

// currentLogger returns the logger in effect for this instant, reflecting
// any prior call to SetLogger.
func (s *MultiKeyStore[V]) currentLogger() Logger {
	if p := s.logger.Load(); p != nil {
		return *p
	}
	return NoOpLogger{}
}

// SetLogger swaps the logger used for release-panic reporting and reaper
// sweep-debug lines. Safe for concurrent use; takes effect for the next
// disposal or sweep, not retroactively.
func (s *MultiKeyStore[V]) SetLogger(l Logger) {
	if l == nil {
		l = NoOpLogger{}
	}
	s.logger.Store(&l)
	s.reaperMu.Lock()
	if s.reaper != nil {
		s.reaper.setLogger(l)
	}
	s.reaperMu.Unlock()
}

// SetReapInterval changes how often the background reaper sweeps for
// slots with a dead key whose cleanup has not yet run. A value of 0 stops the
// reaper entirely (disposal still happens via runtime.AddCleanup, just
// without the backstop). Starts a reaper on demand if one wasn't running.
func (s *MultiKeyStore[V]) SetReapInterval(d time.Duration) {
	s.reaperMu.Lock()
	defer s.reaperMu.Unlock()
	s.reapInterval.Store(int64(d))
	switch {
	case d <= 0 && s.reaper != nil:
		s.reaper.stop()
		s.reaper = nil
	case d > 0 && s.reaper == nil:
		s.reaper = newReaper(d, s.idx.sweep, s.currentLogger())
		s.reaper.start()
	case d > 0 && s.reaper != nil:
		s.reaper.setInterval(d)
	}
}

// Get looks up the value stored under keys. The second return is false if
// no live entry exists (including one whose keys are still being
// collected concurrently).
func (s *MultiKeyStore[V]) Get(keys ...interface{}) (V, bool, error) {
	var zero V
	now := s.cfg.TimeProvider.Now()
	mk, _, err := newMultiKey(keys)
	if err != nil {
		return zero, false, err
	}

	slot := s.idx.find(mk.hash, matchesMultiKey[V](mk))
	if slot == nil {
		s.misses.Add(1)
		s.cfg.MetricsCollector.RecordGet(s.cfg.TimeProvider.Now()-now, false)
		return zero, false, nil
	}
	s.hits.Add(1)
	s.cfg.MetricsCollector.RecordGet(s.cfg.TimeProvider.Now()-now, true)
	return slot.value, true, nil
}

// Set installs value under keys, releasing and disposing whatever value
// previously occupied that exact key tuple. Set never retains keys beyond
// what is needed to bind their weak handles. Reinstalling a value that is
// identical (by address, for reference-shaped values) to the one already
// stored is a no-op as far as OnRelease/RecordDispose are concerned: the
// old slot is still torn down so its cleanups cannot also fire, but
// nothing is actually released since nothing changed.
func (s *MultiKeyStore[V]) Set(value V, keys ...interface{}) error {
	if s.closed.Load() {
		return NewErrClosed("Set")
	}
	now := s.cfg.TimeProvider.Now()
	mk, handles, err := newMultiKey(keys)
	if err != nil {
		return err
	}

	var fresh *entrySlot[V]
	old, _ := s.idx.replace(mk.hash, matchesMultiKey[V](mk), func() *entrySlot[V] {
		fresh = s.newSlot(mk, value, handles)
		return fresh
	})
	fresh.bind()
	s.inserts.Add(1)
	s.cfg.MetricsCollector.RecordInsert(s.cfg.TimeProvider.Now() - now)
	if old != nil {
		if valuesIdentical(old.value, value) {
			old.suppressRelease.Store(true)
		}
		old.dispose(false)
	}
	return nil
}

// GetOrCreate returns the value for keys, calling factory at most once if
// no live entry exists yet, even under concurrent calls for the same key
// tuple (singleflight, grounded on the same pattern this library's sibling
// cache uses for GetOrLoad).
func (s *MultiKeyStore[V]) GetOrCreate(factory func() (V, error), keys ...interface{}) (V, error) {
	var zero V
	if s.closed.Load() {
		return zero, NewErrClosed("GetOrCreate")
	}
	mk, handles, err := newMultiKey(keys)
	if err != nil {
		return zero, err
	}
	if factory == nil {
		return zero, NewErrEmptyKeys("GetOrCreate: factory is nil")
	}

	now := s.cfg.TimeProvider.Now()
	if slot := s.idx.find(mk.hash, matchesMultiKey[V](mk)); slot != nil {
		s.hits.Add(1)
		s.cfg.MetricsCollector.RecordGet(s.cfg.TimeProvider.Now()-now, true)
		return slot.value, nil
	}

	callKey := fmt.Sprintf("mk:%d:%v", mk.hash, mk.idents)
	newFlight := &mksInflightCall[V]{done: make(chan struct{})}
	newFlight.wg.Add(1)

	actual, loaded := s.inflight.LoadOrStore(callKey, newFlight)
	flight := actual.(*mksInflightCall[V])

	if loaded {
		flight.wg.Wait()
		// callKey is built from raw key addresses, which a new key can
		// reuse once an old one has died: prefer re-reading the index
		// over trusting the other goroutine's result blindly.
		if slot := s.idx.find(mk.hash, matchesMultiKey[V](mk)); slot != nil {
			s.cfg.MetricsCollector.RecordGet(s.cfg.TimeProvider.Now()-now, true)
			return slot.value, nil
		}
		return flight.value, flight.err
	}

	defer func() {
		close(flight.done)
		flight.wg.Done()
		s.inflight.Delete(callKey)
	}()

	// Someone may have installed the entry between our failed find above
	// and winning the singleflight race.
	if slot := s.idx.find(mk.hash, matchesMultiKey[V](mk)); slot != nil {
		flight.value = slot.value
		s.cfg.MetricsCollector.RecordGet(s.cfg.TimeProvider.Now()-now, true)
		return slot.value, nil
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				flight.err = NewErrFactoryPanic(r)
				s.cfg.MetricsCollector.RecordFactoryPanic()
			}
		}()
		flight.value, flight.err = factory()
		if flight.err != nil {
			flight.err = NewErrFactoryFailed(flight.err)
		}
	}()

	if flight.err != nil {
		return zero, flight.err
	}

	var fresh *entrySlot[V]
	inserted, ok := s.idx.getOrInsert(mk.hash, matchesMultiKey[V](mk), func() *entrySlot[V] {
		fresh = s.newSlot(mk, flight.value, handles)
		return fresh
	})
	if ok {
		inserted.bind()
		s.inserts.Add(1)
		s.cfg.MetricsCollector.RecordInsert(s.cfg.TimeProvider.Now() - now)
	}
	flight.value = inserted.value
	return inserted.value, nil
}

// Remove disposes the entry stored under keys, if any. Returns whether an
// entry was actually found and disposed.
func (s *MultiKeyStore[V]) Remove(keys ...interface{}) bool {
	mk, _, err := newMultiKey(keys)
	if err != nil {
		return false
	}
	slot := s.idx.find(mk.hash, matchesMultiKey[V](mk))
	if slot == nil {
		return false
	}
	return slot.dispose(false)
}

// Len returns the current number of live entries.
func (s *MultiKeyStore[V]) Len() int {
	return s.idx.count()
}

// Stats returns a snapshot of cumulative counters.
func (s *MultiKeyStore[V]) Stats() Stats {
	return Stats{
		Hits:              s.hits.Load(),
		Misses:            s.misses.Load(),
		Inserts:           s.inserts.Load(),
		ExplicitDisposes:  s.explicitDisposes.Load(),
		ReclaimedDisposes: s.reclaimedDisposes.Load(),
		Live:              s.idx.count(),
	}
}

// Close stops the background reaper, if any, and disposes every live
// entry. Later Set and GetOrCreate calls return ErrCodeClosed; Get and
// Remove are not rejected and find no entry.
func (s *MultiKeyStore[V]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.reaperMu.Lock()
	if s.reaper != nil {
		s.reaper.stop()
	}
	s.reaperMu.Unlock()
	s.idx.clear()
	return nil
}

// newSlot builds a slot for mk, wiring its onDispose hook to unlink it
// from the index and record counters/metrics exactly once.
func (s *MultiKeyStore[V]) newSlot(mk multiKey, value V, handles []weakHandle) *entrySlot[V] {
	slot := newEntrySlot(value, handles, nil)
	slot.key = mk
	slot.onDispose = func(reclaimed bool) {
		s.idx.remove(mk.hash, slot)
		if slot.suppressRelease.Load() {
			return
		}
		if reclaimed {
			s.reclaimedDisposes.Add(1)
		} else {
			s.explicitDisposes.Add(1)
		}
		s.cfg.MetricsCollector.RecordDispose(!reclaimed)
		safeRelease(s.cfg.OnRelease, s.currentLogger(), slot.value, reclaimed)
	}
	return slot
}

// matchesMultiKey builds a predicate for shardedIndex lookups that matches
// slots created by MultiKeyStore against mk. A raw identity match is not
// enough on its own: runtime.AddCleanup's contract allows a dead key's
// backing allocation to be freed and reused before its cleanup runs, so a
// brand-new, unrelated key can reuse a dead key's address while the old
// slot is still nominally Live. allKeysAlive re-resolves every handle and
// rejects that case; a dead handle's weak pointer never resolves again
// even after the address is recycled, so this is sufficient.
func matchesMultiKey[V any](mk multiKey) func(*entrySlot[V]) bool {
	return func(s *entrySlot[V]) bool {
		stored, ok := s.key.(multiKey)
		if !ok || !stored.equal(mk) {
			return false
		}
		return s.allKeysAlive()
	}
}

// mksInflightCall coordinates concurrent GetOrCreate calls for the same
// key tuple so the factory runs at most once.
type mksInflightCall[V any] struct {
	wg    sync.WaitGroup
	value V
	err   error
	done  chan struct{}
}
