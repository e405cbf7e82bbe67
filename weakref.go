// weakref.go: Go 1.24 weak.Pointer / runtime.AddCleanup bindings
//
// A weak handle observes whether a key is still reachable without itself
// keeping it alive, and a cleanup runs once that reachability is lost. Go's
// standard library now ships both directly (see entrySlot.bind in slot.go
// for how multiple per-key cleanups stand in for a single all-keys-alive
// binding, documented further in SPEC_FULL.md §4.2).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	"reflect"
	"unsafe"
	"weak"
)

// weakHandle is a non-retaining reference to a key's backing allocation.
// get reports whether the referent is still reachable.
type weakHandle struct {
	ptr weak.Pointer[byte]
}

// get resolves the handle. A false second return means the key has been
// collected; the caller must treat this as "unequal to everything", never
// as a usable address.
func (h weakHandle) get() (unsafe.Pointer, bool) {
	p := h.ptr.Value()
	if p == nil {
		return nil, false
	}
	return unsafe.Pointer(p), true
}

// newWeakHandle extracts the backing pointer of key and wraps it. identity
// is the same pointer, returned so callers can fold it into a hash or an
// identity comparison without re-resolving the handle.
func newWeakHandle(key any) (h weakHandle, identity unsafe.Pointer, err error) {
	p, err := backingPointer(key)
	if err != nil {
		return weakHandle{}, nil, err
	}
	return weakHandle{ptr: weak.Make((*byte)(p))}, p, nil
}

// backingPointer returns the address of the heap allocation that backs
// key's identity, for the Go reference-shaped types an opaque object
// reference can mean here: pointers, maps, channels, functions,
// unsafe.Pointer, strings and byte slices (via their shared, copy-free
// backing array). Any other kind of value has no independent
// identity-bearing allocation a weak pointer could track, and is rejected
// with an ErrCodeUnweakableKey error, since Go — unlike a reference-typed-everything
// host — does not give every value identity.
func backingPointer(key any) (unsafe.Pointer, error) {
	if key == nil {
		return nil, newErrNullKey()
	}

	switch v := key.(type) {
	case string:
		if len(v) == 0 {
			return nil, newErrUnweakableKey("empty string has no backing allocation")
		}
		return unsafe.Pointer(unsafe.StringData(v)), nil
	case []byte:
		if len(v) == 0 {
			return nil, newErrUnweakableKey("empty byte slice has no backing allocation")
		}
		return unsafe.Pointer(unsafe.SliceData(v)), nil
	}

	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		p := rv.UnsafePointer()
		if p == nil {
			return nil, newErrNullKey()
		}
		return p, nil
	case reflect.Slice:
		if rv.Len() == 0 {
			return nil, newErrUnweakableKey("empty slice has no backing allocation")
		}
		return rv.UnsafePointer(), nil
	default:
		return nil, newErrUnweakableKey("value of kind " + rv.Kind().String() + " has no independent identity")
	}
}
