package hash

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of canonical intern values.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian int64 (8B); int, int64 and uint32 normalize here
//   - Floats: IEEE 754 big-endian 8B
//   - Strings/bytes: uint32 big-endian length + raw bytes
//   - Booleans: single byte (0/1)
//   - Tuples: uint32 length + elements inline
//   - Records: uint32 length + key-sorted (key, value) pairs inline
// ---------------------------------------------------------------------------

// Serialize produces the deterministic byte serialization of a canonical
// value. The returned bytes are suitable for hashing and for structural
// equality comparison: two values serialize identically iff they are
// structurally equal.
//
// Accepted shapes: nil, bool, int, int64, uint32, float64, string, []byte,
// []any (tuple), map[string]any (record). Anything else panics; the caller
// owns canonicalization.
func Serialize(v any) []byte {
	s := &serializer{buf: make([]byte, 0, 128)}
	s.writeByte(HashVersion)
	s.serializeValue(v)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) serializeValue(v any) {
	switch n := v.(type) {
	case nil:
		s.writeByte(TagNil)

	case bool:
		s.writeByte(TagBool)
		if n {
			s.writeByte(1)
		} else {
			s.writeByte(0)
		}

	case int:
		s.writeByte(TagInt)
		s.writeInt64(int64(n))

	case int64:
		s.writeByte(TagInt)
		s.writeInt64(n)

	case uint32:
		s.writeByte(TagInt)
		s.writeInt64(int64(n))

	case float64:
		s.writeByte(TagFloat)
		s.writeFloat64(n)

	case string:
		s.writeByte(TagString)
		s.writeString(n)

	case []byte:
		s.writeByte(TagBytes)
		s.writeUint32(uint32(len(n)))
		s.buf = append(s.buf, n...)

	case []any:
		s.writeByte(TagTuple)
		s.writeUint32(uint32(len(n)))
		for _, el := range n {
			s.serializeValue(el)
		}

	case map[string]any:
		s.writeByte(TagRecord)
		s.writeUint32(uint32(len(n)))
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s.writeString(k)
			s.serializeValue(n[k])
		}

	default:
		panic(fmt.Sprintf("hash: cannot serialize %T", v))
	}
}
