// doc.go: extended usage documentation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// # Quick start: MultiKeyStore
//
// MultiKeyStore ties a value to a tuple of object references. The value
// disappears the instant any one of those references becomes unreachable
// anywhere else in the program:
//
//	store, err := weakstore.NewMultiKeyStore[*Session](weakstore.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session := &Session{ID: "abc"}
//	conn := openConnection()
//	err = store.Set(session, conn, session.ID)
//
//	if s, found, _ := store.Get(conn, session.ID); found {
//	    fmt.Println(s.ID)
//	}
//
// Once conn is garbage collected, the entry is released automatically —
// no explicit Remove call is required, and no stale reference to session
// is kept reachable by the store itself.
//
// # Quick start: WeakTable
//
// WeakTable associates a value with a single key under a caller-chosen
// Comparator, without keeping the key reachable:
//
//	table, err := weakstore.NewWeakTable[*Widget, *Metadata](
//	    weakstore.DefaultConfig(),
//	    weakstore.IdentityComparator[*Widget](),
//	)
//
//	w := &Widget{}
//	table.Set(w, &Metadata{Created: time.Now()})
//
//	if meta, found, _ := table.Get(w); found {
//	    fmt.Println(meta.Created)
//	}
//
// A case-insensitive string-keyed table looks the same, swapping the
// Comparator:
//
//	names, _ := weakstore.NewWeakTable[string, int](
//	    weakstore.DefaultConfig(), weakstore.StringFold())
//
// # GetOrCreate and cache stampedes
//
// Both containers expose a GetOrCreate that deduplicates concurrent
// factory calls for the same key, so N goroutines racing to populate the
// same entry run the factory exactly once:
//
//	value, err := table.GetOrCreate(key, func() (*Widget, error) {
//	    return expensiveBuild(key)
//	})
//
// # Reclamation lag
//
// Disposal is driven by runtime.AddCleanup, which Go schedules on some
// future garbage collection cycle rather than the instant a key dies.
// Setting Config.ReapInterval starts a background sweep that bounds this
// lag by actively checking for dead keys between cleanup-driven
// collections; leaving it at zero relies entirely on cleanup scheduling.
//
// # Dynamic reap interval
//
// SetReapInterval and SetLogger change the reaper's period and logging
// target on a running store or table without reconstructing it. HotConfig
// wraps this in an Argus-backed file watcher so ReapInterval can be tuned
// from a config file while the process runs:
//
//	hc, err := weakstore.NewHotConfig(store, weakstore.HotConfigOptions{
//	    ConfigPath: "weakstore.yaml",
//	})
//
// # Errors
//
// Every error returned by MultiKeyStore and WeakTable carries a stable code
// (see errors.go) and can be
// tested with the Is* helpers (IsNullKey, IsEmptyKeys, IsDuplicateKey,
// IsUnweakableKey, IsEntryGone, IsAlreadyExists, IsFactoryError,
// IsRetryable) or inspected with GetErrorCode / GetErrorContext.
package weakstore
