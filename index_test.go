// index_test.go: sharded index get/insert/remove semantics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import "testing"

func alwaysMatch[V any](*entrySlot[V]) bool { return true }
func neverMatch[V any](*entrySlot[V]) bool  { return false }

func TestShardedIndexGetOrInsert(t *testing.T) {
	idx := newShardedIndex[int](4)

	s1, inserted := idx.getOrInsert(7, neverMatch[int], func() *entrySlot[int] {
		slot := newEntrySlot(1, nil, nil)
		slot.bind()
		return slot
	})
	if !inserted {
		t.Fatal("first getOrInsert for a fresh hash should insert")
	}

	s2, inserted2 := idx.getOrInsert(7, alwaysMatch[int], func() *entrySlot[int] {
		t.Fatal("create should not be called when a match exists")
		return nil
	})
	if inserted2 {
		t.Fatal("second call should find the existing slot, not insert")
	}
	if s1 != s2 {
		t.Fatal("expected the same slot to be returned")
	}
	if idx.count() != 1 {
		t.Fatalf("expected 1 live slot, got %d", idx.count())
	}
}

func TestShardedIndexRemove(t *testing.T) {
	idx := newShardedIndex[int](4)
	slot := newEntrySlot(1, nil, nil)
	slot.bind()
	idx.getOrInsert(3, alwaysMatch[int], func() *entrySlot[int] { return slot })

	idx.remove(3, slot)
	if idx.count() != 0 {
		t.Fatalf("expected 0 live slots after remove, got %d", idx.count())
	}

	// Removing again must be a harmless no-op.
	idx.remove(3, slot)
}

func TestShardedIndexReplace(t *testing.T) {
	idx := newShardedIndex[int](4)
	first := newEntrySlot(1, nil, nil)
	first.bind()
	idx.getOrInsert(9, alwaysMatch[int], func() *entrySlot[int] { return first })

	old, fresh := idx.replace(9, alwaysMatch[int], func() *entrySlot[int] {
		s := newEntrySlot(2, nil, nil)
		s.bind()
		return s
	})
	if old != first {
		t.Fatal("replace should report the displaced slot")
	}
	if fresh.value != 2 {
		t.Fatalf("expected fresh value 2, got %d", fresh.value)
	}
	if idx.count() != 1 {
		t.Fatalf("expected exactly 1 live slot after replace, got %d", idx.count())
	}
}

func TestShardedIndexForEachStopsEarly(t *testing.T) {
	idx := newShardedIndex[int](4)
	for i := 0; i < 10; i++ {
		s := newEntrySlot(i, nil, nil)
		s.bind()
		idx.getOrInsert(uint64(i), neverMatch[int], func() *entrySlot[int] { return s })
	}

	visited := 0
	idx.forEach(func(s *entrySlot[int]) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Fatalf("expected forEach to stop after 3 visits, visited %d", visited)
	}
}

func TestShardedIndexClearDisposesEverything(t *testing.T) {
	idx := newShardedIndex[int](4)
	disposed := 0
	for i := 0; i < 5; i++ {
		i := i
		s := newEntrySlot(i, nil, func(reclaimed bool) { disposed++ })
		s.bind()
		idx.getOrInsert(uint64(i), neverMatch[int], func() *entrySlot[int] { return s })
	}

	idx.clear()
	if idx.count() != 0 {
		t.Fatalf("expected 0 live slots after clear, got %d", idx.count())
	}
	if disposed != 5 {
		t.Fatalf("expected 5 onDispose calls, got %d", disposed)
	}
}
