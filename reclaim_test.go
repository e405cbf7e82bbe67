// reclaim_test.go: end-to-end reclamation driven by a real garbage collector
//
// Every test here drops the only strong reference to a key and forces an
// actual collection cycle, the same runtime.GC()-and-poll idiom this
// library's sibling cache uses to wait out collection in its own
// key-lifetime tests, rather than only exercising the CAS-level slot
// machinery directly.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// waitForRelease polls cond, forcing a GC cycle between attempts, until it
// reports true or a bounded deadline passes. Returns cond's final value.
func waitForRelease(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		runtime.Gosched()
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

type scopedKey struct{ tag string }

// newScopedKey returns a heap-allocated key through a non-inlined call so
// its only strong reference is the one the caller chooses to keep; callers
// that discard the return value after a narrow scope give the collector a
// real object to reclaim instead of one kept alive by compiler inlining.
//
//go:noinline
func newScopedKey(tag string) any {
	return &scopedKey{tag: tag}
}

// TestMultiKeyStoreSingleKeyReclaimedAfterGC covers the single-key lifetime:
// a value set under one key disappears once that key is actually collected.
func TestMultiKeyStoreSingleKeyReclaimedAfterGC(t *testing.T) {
	var released atomic.Bool
	var reclaimed atomic.Bool
	store, _ := NewMultiKeyStore[string](Config{
		OnRelease: func(value interface{}, wasReclaimed bool) {
			released.Store(true)
			reclaimed.Store(wasReclaimed)
		},
	})
	defer store.Close()

	func() {
		key := newScopedKey("single")
		if err := store.Set("value", key); err != nil {
			t.Fatal(err)
		}
		if _, found, _ := store.Get(key); !found {
			t.Fatal("expected the entry to be found while the key is still reachable")
		}
	}()

	if !waitForRelease(t, released.Load) {
		t.Fatal("expected the entry to be released once the key became unreachable and a real GC cycle ran")
	}
	if !reclaimed.Load() {
		t.Error("a key dying should dispose as reclaimed, not explicit")
	}
	if store.Len() != 0 {
		t.Fatalf("expected 0 live entries after reclamation, got %d", store.Len())
	}
}

// TestMultiKeyStoreMultiKeyANDSemanticsAfterGC covers the AND rule: a value
// keyed by [a, b] is released as soon as either key dies, even while the
// other one stays reachable for the whole test.
func TestMultiKeyStoreMultiKeyANDSemanticsAfterGC(t *testing.T) {
	var released atomic.Bool
	store, _ := NewMultiKeyStore[string](Config{
		OnRelease: func(value interface{}, reclaimed bool) { released.Store(true) },
	})
	defer store.Close()

	b := &struct{}{} // kept reachable for the whole test

	func() {
		a := newScopedKey("paired-a")
		if err := store.Set("paired", a, b); err != nil {
			t.Fatal(err)
		}
	}()

	if !waitForRelease(t, released.Load) {
		t.Fatal("expected the entry to be released once a died, even though b is still reachable")
	}
	if store.Len() != 0 {
		t.Fatalf("expected 0 live entries once a died, got %d", store.Len())
	}
	runtime.KeepAlive(b)
}

// TestMultiKeyStoreDisposeIdempotentUnderRealCleanupRace covers dispose
// idempotence against a genuine runtime.AddCleanup race: several explicit
// disposers race the cleanup the runtime fires once the key is actually
// collected, and OnRelease must still run exactly once.
func TestMultiKeyStoreDisposeIdempotentUnderRealCleanupRace(t *testing.T) {
	var calls atomic.Int32
	store, _ := NewMultiKeyStore[int](Config{
		OnRelease: func(value interface{}, reclaimed bool) { calls.Add(1) },
	})
	defer store.Close()

	var slot *entrySlot[int]
	func() {
		key := newScopedKey("raced")
		if err := store.Set(1, key); err != nil {
			t.Fatal(err)
		}
		mk, _, err := newMultiKey([]interface{}{key})
		if err != nil {
			t.Fatal(err)
		}
		slot = store.idx.find(mk.hash, matchesMultiKey[int](mk))
		if slot == nil {
			t.Fatal("expected to find the freshly-set slot")
		}
	}() // key goes out of scope here; nothing below holds a reference to it

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			slot.dispose(false)
			done <- struct{}{}
		}()
	}

	waitForRelease(t, func() bool { return !slot.isLive() })
	for i := 0; i < 8; i++ {
		<-done
	}

	if calls.Load() != 1 {
		t.Fatalf("dispose must collapse to exactly one OnRelease call even against a real GC-driven cleanup race, got %d", calls.Load())
	}
}

// TestWeakTableStringFoldLookupThenReclaimAfterGC covers a non-identity
// lookup (case-folded) and then the key's actual collection: a different
// string object that compares equal under StringFold finds the entry, and
// the entry disappears once the original key is collected.
func TestWeakTableStringFoldLookupThenReclaimAfterGC(t *testing.T) {
	var released atomic.Bool
	table, _ := NewWeakTable[string, int](Config{
		OnRelease: func(value interface{}, reclaimed bool) { released.Store(true) },
	}, StringFold())
	defer table.Close()

	func() {
		key := strings.ToUpper("scoped-key")
		if err := table.Set(key, 42); err != nil {
			t.Fatal(err)
		}
	}()

	if v, found, _ := table.Get("Scoped-Key"); !found || v != 42 {
		t.Fatalf("case-folded lookup by a distinct string object should still find the entry, got (%d, %v)", v, found)
	}

	if !waitForRelease(t, released.Load) {
		t.Fatal("expected the entry to be released once its only strong key reference went out of scope")
	}
	if _, found, _ := table.Get("scoped-key"); found {
		t.Fatal("entry should no longer be found once its key has been collected")
	}
}

// TestWeakTableDisposeIdempotentUnderRealCleanupRace mirrors
// TestMultiKeyStoreDisposeIdempotentUnderRealCleanupRace for WeakTable.
func TestWeakTableDisposeIdempotentUnderRealCleanupRace(t *testing.T) {
	var calls atomic.Int32
	table, _ := NewWeakTable[*scopedKey, int](Config{
		OnRelease: func(value interface{}, reclaimed bool) { calls.Add(1) },
	}, IdentityComparator[*scopedKey]())
	defer table.Close()

	var slot *entrySlot[int]
	func() {
		key := newScopedKey("wt-raced").(*scopedKey)
		if err := table.Set(key, 1); err != nil {
			t.Fatal(err)
		}
		hash := table.cmp.Hash(key)
		slot = table.idx.find(hash, table.matches(key))
		if slot == nil {
			t.Fatal("expected to find the freshly-set slot")
		}
	}()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			slot.dispose(false)
			done <- struct{}{}
		}()
	}

	waitForRelease(t, func() bool { return !slot.isLive() })
	for i := 0; i < 8; i++ {
		<-done
	}

	if calls.Load() != 1 {
		t.Fatalf("dispose must collapse to exactly one OnRelease call even against a real GC-driven cleanup race, got %d", calls.Load())
	}
}
