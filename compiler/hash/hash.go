// Package hash provides content-addressed interning for the compiler's
// intermediate tables. Values are keyed by the SHA-256 of a deterministic
// serialization, so keys are stable across runs and across machines.
package hash

import "crypto/sha256"

// Sum is a content hash of a canonical value.
type Sum [32]byte

// Value computes the content hash of a canonical value.
//
// Two values hash equally iff their canonical serializations are
// byte-identical. The hash is stable across runs; it doubles as the
// intermediate reference key during compilation.
func Value(v any) Sum {
	return sha256.Sum256(Serialize(v))
}
