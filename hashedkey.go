// hashedkey.go: single weakly-held keys for WeakTable, under a Comparator
//
// Unlike MultiKeyStore, WeakTable must support lookup by a key that is
// merely Comparator-Equal to the stored one, not identical to it — for
// example a case-folding Comparator under which "Hello", "HELLO" and
// "hello" all address the same entry. That means a resident key must be
// able to reproduce a live K value to hand to Comparator.Equal, not just
// an address to compare — so, unlike multiKey, it cannot get away with
// never looking past identity.
//
// Reconstructing a live K from nothing but its weakly-held backing address
// only works for the handful of Go shapes whose representation is fully
// recoverable from an address: strings (immutable, so address + cached
// length is the whole value) and pointer-shaped types (pointer, map, chan,
// func, unsafe.Pointer), whose value IS the address. WeakTable therefore
// requires K to be one of those shapes — a "reference types only"
// constraint, the same one a class-constrained TKey would carry in a
// garbage-collected language with a built-in weak-table primitive.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

import (
	"reflect"
	"unsafe"
)

type keyShape int

const (
	keyShapePointer keyShape = iota
	keyShapeString
)

// detectKeyShape inspects K's static kind once, at WeakTable construction.
func detectKeyShape[K any]() (keyShape, error) {
	var zero K
	t := reflect.TypeOf(&zero).Elem()
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return keyShapePointer, nil
	case reflect.String:
		return keyShapeString, nil
	default:
		return 0, newErrUnweakableKey("WeakTable key type must be a pointer, map, chan, func, unsafe.Pointer or string, got " + t.Kind().String())
	}
}

// hashedKey is the resident representation of one WeakTable key: a weak
// handle plus enough shape-specific bookkeeping (a string's length) to
// reconstruct a live K when the handle still resolves.
type hashedKey[K any] struct {
	handle weakHandle
	shape  keyShape
	strLen int
	hash   uint64
}

// resolve reconstructs the live key value, or reports ok=false if its
// backing allocation has already been reclaimed.
func (hk hashedKey[K]) resolve() (k K, ok bool) {
	p, alive := hk.handle.get()
	if !alive {
		var zero K
		return zero, false
	}
	if hk.shape == keyShapeString {
		return any(unsafe.String((*byte)(p), hk.strLen)).(K), true
	}
	return reconstructPointer[K](p), true
}

// emptyInterface mirrors the runtime's layout of an `any` value: a type
// word and a data word. For pointer-shaped K, the data word of an
// interface wrapping a K value IS the pointer itself (Go's "direct
// interface" representation), so composing one from a resolved address
// and a cached type word reproduces the original K exactly.
type emptyInterface struct {
	typ  unsafe.Pointer
	data unsafe.Pointer
}

func typeWordOf[K any]() unsafe.Pointer {
	var zero K
	i := any(zero)
	return (*emptyInterface)(unsafe.Pointer(&i)).typ
}

func reconstructPointer[K any](data unsafe.Pointer) K {
	e := emptyInterface{typ: typeWordOf[K](), data: data}
	out := *(*any)(unsafe.Pointer(&e))
	return out.(K)
}
