// slot.go: Live/Dying/Gone lifecycle for a stored entry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	"reflect"
	"runtime"
	"sync/atomic"
)

type slotState int32

const (
	stateLive slotState = iota
	stateDying
	stateGone
)

// entrySlot holds one stored value and the weak handles of the keys that
// keep it alive. It transitions Live -> Dying -> Gone exactly once, driven
// by whichever of (a) an explicit Remove/replace, (b) a key's cleanup
// firing, or (c) the background reaper, wins the CAS first. Every other
// path is a no-op: at-most-once disposal, no double-release.
type entrySlot[V any] struct {
	value V
	key   any // multiKey (MultiKeyStore) or hashedKey[K] (WeakTable)

	handles  []weakHandle
	state    atomic.Int32
	cleanups []runtime.Cleanup

	// suppressRelease is set by Set when it displaces a slot holding a
	// value identical to the one being installed: the slot still has to
	// be torn down (its cleanups stopped, so it cannot also fire via a
	// racing key death), but OnRelease/RecordDispose must not run for a
	// value that was never actually released to the caller.
	suppressRelease atomic.Bool

	onDispose func(reclaimed bool)
}

// newEntrySlot builds a slot for value, keyed by handles. onDispose, if
// non-nil, runs exactly once when the slot transitions out of Live; it is
// the owner's hook for removing the slot from its index and invoking
// Config.OnRelease.
func newEntrySlot[V any](value V, handles []weakHandle, onDispose func(reclaimed bool)) *entrySlot[V] {
	return &entrySlot[V]{value: value, handles: handles, onDispose: onDispose}
}

// bind registers one cleanup per key handle. Must be called exactly once,
// after the slot is reachable from its index (so a cleanup firing mid-bind
// can never race a reader into seeing a half-installed slot — readers only
// ever observe slots that are already both indexed and bound).
func (s *entrySlot[V]) bind() {
	s.cleanups = make([]runtime.Cleanup, 0, len(s.handles))
	for _, h := range s.handles {
		p, ok := h.get()
		if !ok {
			// The key died in the window between extraction and bind.
			// Dispose now; no cleanup will ever fire for a dead pointer.
			s.dispose(true)
			return
		}
		s.cleanups = append(s.cleanups, runtime.AddCleanup((*byte)(p), disposeReclaimedSlot[V], s))
	}
}

// disposeReclaimedSlot is the package-level cleanup func passed to
// runtime.AddCleanup. It must not be a method value closing over its
// receiver's own key pointer; arg carries the slot instead, exactly as
// runtime.AddCleanup's contract expects.
func disposeReclaimedSlot[V any](s *entrySlot[V]) {
	s.dispose(true)
}

// dispose transitions the slot to Gone if it is still Live, running
// onDispose and stopping every registered cleanup. reclaimed distinguishes
// "a key died" from "the caller explicitly removed/replaced this entry"
// for Stats and Config.OnRelease. Returns whether this call performed the
// transition.
func (s *entrySlot[V]) dispose(reclaimed bool) bool {
	if !s.state.CompareAndSwap(int32(stateLive), int32(stateDying)) {
		return false
	}
	for _, c := range s.cleanups {
		c.Stop()
	}
	if s.onDispose != nil {
		s.onDispose(reclaimed)
	}
	s.state.Store(int32(stateGone))
	return true
}

// isLive reports whether the slot is still visible to readers. A slot
// observed live here may transition to Dying immediately after the check
// returns; callers that hand a value to the caller must re-check after
// any work that could block long enough for a concurrent dispose to land.
func (s *entrySlot[V]) isLive() bool {
	return slotState(s.state.Load()) == stateLive
}

// allKeysAlive reports whether every key handle currently resolves. Used
// by the reaper to find slots whose cleanup has not yet fired, and by a
// hash-bucket lookup to reject a slot whose key died and whose address
// has since been recycled by an unrelated allocation: a dead handle's
// weak pointer never resolves again, address reuse notwithstanding, so
// this is sufficient to rule out a false match on raw identity alone.
func (s *entrySlot[V]) allKeysAlive() bool {
	for _, h := range s.handles {
		if _, ok := h.get(); !ok {
			return false
		}
	}
	return true
}

// valuesIdentical reports whether a and b are the same value, for
// deciding whether reinstalling a key with Set actually changes anything.
// Pointer-shaped values (and maps, chans, funcs, unsafe.Pointer) compare
// by address; other comparable types fall back to ==, boxed as any.
// Values of differing dynamic type, or of an uncomparable type with no
// reference-shaped kind, are always reported different.
func valuesIdentical(a, b interface{}) bool {
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if !av.IsValid() || !bv.IsValid() {
		return av.IsValid() == bv.IsValid()
	}
	if av.Type() != bv.Type() {
		return false
	}
	switch av.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return av.Pointer() == bv.Pointer()
	}
	if !av.Comparable() {
		return false
	}
	return a == b
}

// safeRelease invokes onRelease, recovering and logging any panic so a
// misbehaving hook can never abort a sibling slot's disposal. logger is
// read fresh by the caller on every call so a logger swapped in by
// SetLogger takes effect for the very next disposal.
func safeRelease(onRelease func(value interface{}, reclaimed bool), logger Logger, value interface{}, reclaimed bool) {
	if onRelease == nil {
		return
	}
	if logger == nil {
		logger = NoOpLogger{}
	}
	defer func() {
		if r := recover(); r != nil {
			err := newErrReleasePanic(r)
			logger.Error("release hook panicked", "error", err)
		}
	}()
	onRelease(value, reclaimed)
}
