// Package weakstore provides thread-safe associative stores whose entries
// survive only as long as their keys remain reachable outside the store.
//
// Two containers share the same reclamation machinery:
//
//   - MultiKeyStore[V]: a value keyed by an ordered tuple of n >= 1 object
//     references. The entry is released the instant any one of the n keys
//     becomes unreachable.
//   - WeakTable[K, V]: a value keyed by a single K under a caller-supplied
//     Comparator, additionally supporting lookup by a key that is merely
//     equal to (not identical to) the stored one.
//
// Both containers are built on Go's weak.Pointer and runtime.AddCleanup
// (Go 1.24+): no global sweep, no polling of liveness, and no value is ever
// handed to a concurrent reader once its disposal has begun. A best-effort
// background reaper exists only to bound the lag between a key's death and
// its slot's removal, since cleanup scheduling is not guaranteed to be
// prompt.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

const (
	// Version of the weakstore library.
	Version = "v0.1.0-dev"

	// DefaultShardCount is the default number of index shards. Must be a
	// power of two; higher counts reduce contention on GetOrCreate's
	// per-shard insertion lock at the cost of memory.
	DefaultShardCount = 64

	// DefaultReapInterval is how often the background reaper sweeps for
	// slots with a dead key whose cleanup has not yet run. 0 disables it.
	DefaultReapInterval = 0
)
