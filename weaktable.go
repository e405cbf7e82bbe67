// weaktable.go: WeakTable[K, V], a value keyed by one weakly-held key
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

// WeakTable associates a value with a single key held weakly, looked up
// under a caller-supplied Comparator rather than Go's built-in ==. Unlike
// MultiKeyStore, a lookup key need only be Comparator-Equal to the stored
// one, not the identical object (for example, case-insensitive string
// keys). See hashedkey.go for the K shape restriction this implies.
type WeakTable[K any, V any] struct {
	cfg      Config
	cmp      Comparator[K]
	shape    keyShape
	idx      *shardedIndex[V]
	inflight sync.Map // callKey string -> *wtInflightCall[V]

	reaperMu     sync.Mutex
	reaper       *reaper
	reapInterval atomic.Int64
	logger       atomic.Pointer[Logger]

	hits              atomic.Uint64
	misses            atomic.Uint64
	inserts           atomic.Uint64
	explicitDisposes  atomic.Uint64
	reclaimedDisposes atomic.Uint64
	closed            atomic.Bool
}

// NewWeakTable creates a table with the given configuration and
// Comparator. cmp must not be nil; use IdentityComparator[K]() for plain
// == semantics when K is comparable, or StringFold() for case-insensitive
// string keys.
func NewWeakTable[K any, V any](cfg Config, cmp Comparator[K]) (*WeakTable[K, V], error) {
	if cmp == nil {
		return nil, NewErrInvalidConfig("Comparator", "must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shape, err := detectKeyShape[K]()
	if err != nil {
		return nil, err
	}
	t := &WeakTable[K, V]{
		cfg:   cfg,
		cmp:   cmp,
		shape: shape,
		idx:   newShardedIndex[V](cfg.ShardCount),
	}
	t.logger.Store(&cfg.Logger)
	t.reapInterval.Store(int64(cfg.ReapInterval))
	if cfg.ReapInterval > 0 {
		t.reaper = newReaper(cfg.ReapInterval, t.idx.sweep, cfg.Logger)
		t.reaper.start()
	}
	return t, nil
}

// currentLogger returns the logger in effect for this instant, reflecting
// any prior call to SetLogger.
func (t *WeakTable[K, V]) currentLogger() Logger {
	if p := t.logger.Load(); p != nil {
		return *p
	}
	return NoOpLogger{}
}

// SetLogger swaps the logger used for release-panic reporting and reaper
// sweep-debug lines. Safe for concurrent use.
func (t *WeakTable[K, V]) SetLogger(l Logger) {
	if l == nil {
		l = NoOpLogger{}
	}
	t.logger.Store(&l)
	t.reaperMu.Lock()
	if t.reaper != nil {
		t.reaper.setLogger(l)
	}
	t.reaperMu.Unlock()
}

// SetReapInterval changes how often the background reaper sweeps for
// slots with a dead key whose cleanup has not yet run. A value of 0 stops the
// reaper; a positive value starts one on demand if none was running.
func (t *WeakTable[K, V]) SetReapInterval(d time.Duration) {
	t.reaperMu.Lock()
	defer t.reaperMu.Unlock()
	t.reapInterval.Store(int64(d))
	switch {
	case d <= 0 && t.reaper != nil:
		t.reaper.stop()
		t.reaper = nil
	case d > 0 && t.reaper == nil:
		t.reaper = newReaper(d, t.idx.sweep, t.currentLogger())
		t.reaper.start()
	case d > 0 && t.reaper != nil:
		t.reaper.setInterval(d)
	}
}

// TryGetValue looks up the value for key, reporting whether a live entry
// was found. This is WeakTable's primary read operation, named to match
// the source API this container is modeled on.
func (t *WeakTable[K, V]) TryGetValue(key K) (V, bool) {
	var zero V
	now := t.cfg.TimeProvider.Now()
	hash := t.cmp.Hash(key)
	slot := t.idx.find(hash, t.matches(key))
	if slot == nil {
		t.misses.Add(1)
		t.cfg.MetricsCollector.RecordGet(t.cfg.TimeProvider.Now()-now, false)
		return zero, false
	}
	t.hits.Add(1)
	t.cfg.MetricsCollector.RecordGet(t.cfg.TimeProvider.Now()-now, true)
	return slot.value, true
}

// Get is TryGetValue with an added error return (always nil here),
// matching MultiKeyStore's Get signature for symmetry between the two
// containers.
func (t *WeakTable[K, V]) Get(key K) (V, bool, error) {
	v, ok := t.TryGetValue(key)
	return v, ok, nil
}

// TryAdd installs value for key only if no live entry exists yet. Returns
// false (and leaves the existing entry untouched) if one already does.
func (t *WeakTable[K, V]) TryAdd(key K, value V) (bool, error) {
	if t.closed.Load() {
		return false, NewErrClosed("TryAdd")
	}
	now := t.cfg.TimeProvider.Now()
	h, _, err := newWeakHandle(any(key))
	if err != nil {
		return false, err
	}
	hash := t.cmp.Hash(key)

	var fresh *entrySlot[V]
	slot, inserted := t.idx.getOrInsert(hash, t.matches(key), func() *entrySlot[V] {
		fresh = t.newSlot(key, h, hash, value)
		return fresh
	})
	if !inserted {
		_ = slot
		return false, nil
	}
	fresh.bind()
	t.inserts.Add(1)
	t.cfg.MetricsCollector.RecordInsert(t.cfg.TimeProvider.Now() - now)
	return true, nil
}

// Add installs value for key, failing with a duplicate-key error if a live
// entry already exists. TryAdd reports the same collision as a bool;
// Add is for callers that want it surfaced as an error instead.
func (t *WeakTable[K, V]) Add(key K, value V) error {
	ok, err := t.TryAdd(key, value)
	if err != nil {
		return err
	}
	if !ok {
		return NewErrKeyAlreadyExists()
	}
	return nil
}

// Set installs value for key, replacing and disposing whatever value
// previously occupied it. Reinstalling a value identical (by address, for
// reference-shaped values) to the one already stored does not fire
// OnRelease/RecordDispose: the old slot is still torn down so its
// cleanups cannot also fire, but nothing is actually released.
func (t *WeakTable[K, V]) Set(key K, value V) error {
	if t.closed.Load() {
		return NewErrClosed("Set")
	}
	now := t.cfg.TimeProvider.Now()
	h, _, err := newWeakHandle(any(key))
	if err != nil {
		return err
	}
	hash := t.cmp.Hash(key)

	var fresh *entrySlot[V]
	old, _ := t.idx.replace(hash, t.matches(key), func() *entrySlot[V] {
		fresh = t.newSlot(key, h, hash, value)
		return fresh
	})
	fresh.bind()
	t.inserts.Add(1)
	t.cfg.MetricsCollector.RecordInsert(t.cfg.TimeProvider.Now() - now)
	if old != nil {
		if valuesIdentical(old.value, value) {
			old.suppressRelease.Store(true)
		}
		old.dispose(false)
	}
	return nil
}

// GetOrCreate returns the value for key, calling factory at most once if
// no live entry exists yet, even under concurrent calls for the same key
// (singleflight; see MultiKeyStore.GetOrCreate).
func (t *WeakTable[K, V]) GetOrCreate(key K, factory func() (V, error)) (V, error) {
	var zero V
	if t.closed.Load() {
		return zero, NewErrClosed("GetOrCreate")
	}
	if factory == nil {
		return zero, NewErrEmptyKeys("GetOrCreate: factory is nil")
	}
	now := t.cfg.TimeProvider.Now()
	h, _, err := newWeakHandle(any(key))
	if err != nil {
		return zero, err
	}
	hash := t.cmp.Hash(key)

	if slot := t.idx.find(hash, t.matches(key)); slot != nil {
		t.hits.Add(1)
		t.cfg.MetricsCollector.RecordGet(t.cfg.TimeProvider.Now()-now, true)
		return slot.value, nil
	}

	callKey := fmt.Sprintf("wt:%d", hash)
	newFlight := &wtInflightCall[V]{done: make(chan struct{})}
	newFlight.wg.Add(1)

	actual, loaded := t.inflight.LoadOrStore(callKey, newFlight)
	flight := actual.(*wtInflightCall[V])

	if loaded {
		flight.wg.Wait()
		// callKey is hash-based, not identity-based: on the rare hash
		// collision between two distinct keys, prefer re-reading the
		// index (Comparator-verified) over trusting the other
		// goroutine's result blindly.
		if slot := t.idx.find(hash, t.matches(key)); slot != nil {
			t.cfg.MetricsCollector.RecordGet(t.cfg.TimeProvider.Now()-now, true)
			return slot.value, nil
		}
		return flight.value, flight.err
	}

	defer func() {
		close(flight.done)
		flight.wg.Done()
		t.inflight.Delete(callKey)
	}()

	if slot := t.idx.find(hash, t.matches(key)); slot != nil {
		flight.value = slot.value
		t.cfg.MetricsCollector.RecordGet(t.cfg.TimeProvider.Now()-now, true)
		return slot.value, nil
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				flight.err = NewErrFactoryPanic(r)
				t.cfg.MetricsCollector.RecordFactoryPanic()
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
	inserted, ok := t.idx.getOrInsert(hash, t.matches(key), func() *entrySlot[V] {
		fresh = t.newSlot(key, h, hash, flight.value)
		return fresh
	})
	if ok {
		inserted.bind()
		t.inserts.Add(1)
		t.cfg.MetricsCollector.RecordInsert(t.cfg.TimeProvider.Now() - now)
	}
	flight.value = inserted.value
	return inserted.value, nil
}

// Remove disposes the entry for key, if any. Returns whether an entry was
// actually found and disposed.
func (t *WeakTable[K, V]) Remove(key K) bool {
	hash := t.cmp.Hash(key)
	slot := t.idx.find(hash, t.matches(key))
	if slot == nil {
		return false
	}
	return slot.dispose(false)
}

// Keys returns a snapshot of every currently live key. Keys whose backing
// allocation dies during the scan are simply omitted, not reported stale.
func (t *WeakTable[K, V]) Keys() []K {
	var out []K
	t.idx.forEach(func(s *entrySlot[V]) bool {
		if hk, ok := s.key.(hashedKey[K]); ok {
			if k, alive := hk.resolve(); alive {
				out = append(out, k)
			}
		}
		return true
	})
	return out
}

// Values returns a snapshot of every currently live value. Unlike Keys,
// a value carries no liveness of its own, so every slot observed live
// during the scan contributes one entry regardless of whether its key
// dies mid-scan.
func (t *WeakTable[K, V]) Values() []V {
	var out []V
	t.idx.forEach(func(s *entrySlot[V]) bool {
		out = append(out, s.value)
		return true
	})
	return out
}

// Range calls fn for every live (key, value) pair, stopping early if fn
// returns false. fn must not call back into the table.
func (t *WeakTable[K, V]) Range(fn func(key K, value V) bool) {
	t.idx.forEach(func(s *entrySlot[V]) bool {
		hk, ok := s.key.(hashedKey[K])
		if !ok {
			return true
		}
		k, alive := hk.resolve()
		if !alive {
			return true
		}
		return fn(k, s.value)
	})
}

// Len returns the current number of live entries.
func (t *WeakTable[K, V]) Len() int {
	return t.idx.count()
}

// Stats returns a snapshot of cumulative counters.
func (t *WeakTable[K, V]) Stats() Stats {
	return Stats{
		Hits:              t.hits.Load(),
		Misses:            t.misses.Load(),
		Inserts:           t.inserts.Load(),
		ExplicitDisposes:  t.explicitDisposes.Load(),
		ReclaimedDisposes: t.reclaimedDisposes.Load(),
		Live:              t.idx.count(),
	}
}

// Clear disposes every live entry explicitly.
func (t *WeakTable[K, V]) Clear() {
	t.idx.clear()
}

// Close stops the background reaper, if any, and disposes every live
// entry. Later Set, TryAdd, Add and GetOrCreate calls return
// ErrCodeClosed; Get, TryGetValue and Remove are not rejected and find no
// entry.
func (t *WeakTable[K, V]) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.reaperMu.Lock()
	if t.reaper != nil {
		t.reaper.stop()
	}
	t.reaperMu.Unlock()
	t.idx.clear()
	return nil
}

// newSlot builds a slot for key, wiring its onDispose hook to unlink it
// from the index and record counters/metrics exactly once.
func (t *WeakTable[K, V]) newSlot(key K, h weakHandle, hash uint64, value V) *entrySlot[V] {
	hk := hashedKey[K]{handle: h, shape: t.shape, hash: hash}
	if t.shape == keyShapeString {
		hk.strLen = len(any(key).(string))
	}
	slot := newEntrySlot(value, []weakHandle{h}, nil)
	slot.key = hk
	slot.onDispose = func(reclaimed bool) {
		t.idx.remove(hash, slot)
		if slot.suppressRelease.Load() {
			return
		}
		if reclaimed {
			t.reclaimedDisposes.Add(1)
		} else {
			t.explicitDisposes.Add(1)
		}
		t.cfg.MetricsCollector.RecordDispose(!reclaimed)
		safeRelease(t.cfg.OnRelease, t.currentLogger(), slot.value, reclaimed)
	}
	return slot
}

// matches builds a predicate for shardedIndex lookups that resolves a
// resident hashedKey[K] and compares it against probe with the table's
// Comparator.
func (t *WeakTable[K, V]) matches(probe K) func(*entrySlot[V]) bool {
	return func(s *entrySlot[V]) bool {
		hk, ok := s.key.(hashedKey[K])
		if !ok {
			return false
		}
		k, alive := hk.resolve()
		if !alive {
			return false
		}
		return t.cmp.Equal(k, probe)
	}
}

// wtInflightCall coordinates concurrent GetOrCreate calls for the same key
// so the factory runs at most once.
type wtInflightCall[V any] struct {
	wg    sync.WaitGroup
	value V
	err   error
	done  chan struct{}
}
