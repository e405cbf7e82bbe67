// key.go: ordered multi-key tuples for MultiKeyStore
//
// MultiKeyStore compares keys by identity, not by value: two calls pass
// "the same key" only when they pass the identical object reference. That
// makes the transient (caller-supplied, used only for the duration of one
// call) and resident (retained in the index) representations of a key
// tuple the same shape — an ordered list of addresses — with no need for
// the reconstruct-a-value trick WeakTable's Comparator requires (see
// hashedkey.go).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package weakstore

// multiKey is an ordered tuple of key identities. idents are stored as
// uintptr, not unsafe.Pointer: the garbage collector does not trace
// uintptr fields, so holding one never keeps its referent alive. They are
// only ever compared for equality, never dereferenced.
type multiKey struct {
	idents []uintptr
	hash   uint64
}

// newMultiKey validates and extracts a multiKey from a caller-supplied key
// tuple, returning the weak handles needed to bind disposal cleanups.
func newMultiKey(keys []interface{}) (multiKey, []weakHandle, error) {
	if len(keys) == 0 {
		return multiKey{}, nil, NewErrEmptyKeys("MultiKeyStore")
	}

	idents := make([]uintptr, len(keys))
	handles := make([]weakHandle, len(keys))
	for i, k := range keys {
		h, identity, err := newWeakHandle(k)
		if err != nil {
			return multiKey{}, nil, err
		}
		ident := uintptr(identity)
		for j := 0; j < i; j++ {
			if idents[j] == ident {
				return multiKey{}, nil, NewErrDuplicateKey(i)
			}
		}
		idents[i] = ident
		handles[i] = h
	}

	return multiKey{idents: idents, hash: hashIdentTuple(idents)}, handles, nil
}

// equal reports whether two multiKeys name the same ordered tuple of key
// identities. Order is significant: [a, b] and [b, a] are distinct keys.
func (k multiKey) equal(other multiKey) bool {
	if len(k.idents) != len(other.idents) {
		return false
	}
	for i, v := range k.idents {
		if other.idents[i] != v {
			return false
		}
	}
	return true
}

// hashIdentTuple combines a sequence of identities into a single hash,
// mixing in position so that [a, b] and [b, a] do not collide.
func hashIdentTuple(idents []uintptr) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	for i, p := range idents {
		h ^= uint64(p)
		h *= prime
		h ^= uint64(i) + 1
		h *= prime
	}
	return h
}
