// Package util contains internal helpers (key hashing, shard selection, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"fmt"
	"strings"

	"github.com/spaolacci/murmur3"
)

// Hasher maps key bytes to a stable 64-bit hash. It must be safe for
// concurrent use and must not retain the slice.
type Hasher func(key []byte) uint64

// Hash names accepted by HasherByName.
const (
	HashFNV1a   = "fnv1a"
	HashMurmur3 = "murmur3"
)

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes key with 64-bit FNV-1a without allocating.
func Fnv64a(key []byte) uint64 {
	h := uint64(fnvOffset64)
	for _, c := range key {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

// Murmur3 hashes key with the 64-bit variant of murmur3 (seed 0).
func Murmur3(key []byte) uint64 {
	return murmur3.Sum64(key)
}

// HasherByName resolves a configured hash name. The empty name selects FNV-1a.
func HasherByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", HashFNV1a:
		return Fnv64a, nil
	case HashMurmur3:
		return Murmur3, nil
	default:
		return nil, fmt.Errorf("util: unknown hash %q", name)
	}
}
