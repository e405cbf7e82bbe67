// index.go: sharded concurrent index over entrySlot buckets
//
// Uses the same hash-and-mask shard selection as a fixed-size sharded
// cache, generalized from an open-addressed array to hash-bucket chains,
// since both containers here need custom equality (identity-tuple for
// MultiKeyStore, caller-supplied Comparator for WeakTable) rather than
// Go's built-in map equality.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import "sync"

type indexShard[V any] struct {
	mu      sync.Mutex
	buckets map[uint64][]*entrySlot[V]
}

// shardedIndex is a hash-bucketed, mutex-striped index of live slots.
// Lookup, insertion and removal all take a hash and operate within a
// single shard's lock; a caller-supplied predicate resolves collisions.
type shardedIndex[V any] struct {
	shards []*indexShard[V]
	mask   uint64
}

func newShardedIndex[V any](shardCount int) *shardedIndex[V] {
	n := nextPowerOfTwo(shardCount)
	shards := make([]*indexShard[V], n)
	for i := range shards {
		shards[i] = &indexShard[V]{buckets: make(map[uint64][]*entrySlot[V])}
	}
	return &shardedIndex[V]{shards: shards, mask: uint64(n - 1)}
}

func (idx *shardedIndex[V]) shardFor(hash uint64) *indexShard[V] {
	return idx.shards[hash&idx.mask]
}

// find returns the first live slot in hash's bucket for which matches
// reports true, or nil.
func (idx *shardedIndex[V]) find(hash uint64, matches func(*entrySlot[V]) bool) *entrySlot[V] {
	sh := idx.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for _, s := range sh.buckets[hash] {
		if s.isLive() && matches(s) {
			return s
		}
	}
	return nil
}

// getOrInsert returns the existing live slot matching (hash, matches) if
// one exists; otherwise it calls create, inserts the result, and returns
// it. The whole check-then-insert runs under the shard lock, so concurrent
// callers racing on the same key never both insert.
func (idx *shardedIndex[V]) getOrInsert(hash uint64, matches func(*entrySlot[V]) bool, create func() *entrySlot[V]) (slot *entrySlot[V], inserted bool) {
	sh := idx.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	bucket := sh.buckets[hash]
	for _, s := range bucket {
		if s.isLive() && matches(s) {
			return s, false
		}
	}
	ns := create()
	sh.buckets[hash] = append(bucket, ns)
	return ns, true
}

// replace unlinks any live slot matching (hash, matches), then inserts the
// slot created by create. The displaced slot is returned as old without
// being disposed; Set disposes it after the shard lock is released, so a
// previous value for the same key set is released rather than leaked.
func (idx *shardedIndex[V]) replace(hash uint64, matches func(*entrySlot[V]) bool, create func() *entrySlot[V]) (old *entrySlot[V], fresh *entrySlot[V]) {
	sh := idx.shardFor(hash)
	sh.mu.Lock()
	bucket := sh.buckets[hash]
	var kept []*entrySlot[V]
	for _, s := range bucket {
		if s.isLive() && matches(s) {
			old = s
			continue
		}
		kept = append(kept, s)
	}
	fresh = create()
	sh.buckets[hash] = append(kept, fresh)
	sh.mu.Unlock()
	return old, fresh
}

// remove drops target from hash's bucket. A no-op if target is not
// present (it may already have been removed by a racing dispose).
func (idx *shardedIndex[V]) remove(hash uint64, target *entrySlot[V]) {
	sh := idx.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	bucket := sh.buckets[hash]
	for i, s := range bucket {
		if s == target {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			if len(bucket) == 0 {
				delete(sh.buckets, hash)
			} else {
				sh.buckets[hash] = bucket
			}
			return
		}
	}
}

// count returns the number of live slots across all shards.
func (idx *shardedIndex[V]) count() int {
	n := 0
	for _, sh := range idx.shards {
		sh.mu.Lock()
		for _, b := range sh.buckets {
			for _, s := range b {
				if s.isLive() {
					n++
				}
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// forEach visits every live slot, shard by shard, stopping early if fn
// returns false. fn must not call back into the index: each shard's lock
// is held for the duration of its own visit.
func (idx *shardedIndex[V]) forEach(fn func(*entrySlot[V]) bool) {
	for _, sh := range idx.shards {
		sh.mu.Lock()
		cont := true
		for _, b := range sh.buckets {
			for _, s := range b {
				if s.isLive() && !fn(s) {
					cont = false
					break
				}
			}
			if !cont {
				break
			}
		}
		sh.mu.Unlock()
		if !cont {
			return
		}
	}
}

// clear disposes every live slot explicitly and empties all shards.
func (idx *shardedIndex[V]) clear() {
	for _, sh := range idx.shards {
		sh.mu.Lock()
		all := make([]*entrySlot[V], 0)
		for _, b := range sh.buckets {
			all = append(all, b...)
		}
		sh.buckets = make(map[uint64][]*entrySlot[V])
		sh.mu.Unlock()
		for _, s := range all {
			s.dispose(false)
		}
	}
}

// sweep scans every live slot and disposes any with at least one dead key
// whose cleanup has not yet fired. Returns the number reclaimed. This
// is the reaper's backstop sweep, bounding worst-case lag between a key's
// death and its slot's removal.
func (idx *shardedIndex[V]) sweep() int {
	var dead []*entrySlot[V]
	idx.forEach(func(s *entrySlot[V]) bool {
		if !s.allKeysAlive() {
			dead = append(dead, s)
		}
		return true
	})
	n := 0
	for _, s := range dead {
		if s.dispose(true) {
			n++
		}
	}
	return n
}
