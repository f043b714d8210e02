package bytecode

import (
	"fmt"

	"github.com/chazu/ripple/compiler"
	"github.com/chazu/ripple/compiler/hash"
)

// Ref is a packed reference: two tag bits over a 32-bit word selecting the
// inline fast path, the primitives table, or the projections table, with
// the index (or inline value) in the payload bits.
type Ref uint32

const (
	refTagShift = 30

	// TagInline carries a small non-negative integer in the payload.
	TagInline Ref = 0 << refTagShift

	// TagPrimitive indexes the primitives table.
	TagPrimitive Ref = 1 << refTagShift

	// TagProjection indexes the projections table.
	TagProjection Ref = 2 << refTagShift

	refTagMask     Ref = 3 << refTagShift
	refPayloadMask Ref = ^refTagMask
)

// MaxTableEntries is the payload ceiling shared by both tables and by the
// inline-integer fast path. Packing an index at or above the ceiling fails
// with an integrity error.
const MaxTableEntries = compiler.InlineCeiling

// Tag returns the reference's table tag.
func (r Ref) Tag() Ref { return r & refTagMask }

// Payload returns the index or inline value.
func (r Ref) Payload() int { return int(r & refPayloadMask) }

// IsInline reports whether the reference is an inline integer.
func (r Ref) IsInline() bool { return r.Tag() == TagInline }

// IsPrimitive reports whether the reference indexes the primitives table.
func (r Ref) IsPrimitive() bool { return r.Tag() == TagPrimitive }

// IsProjection reports whether the reference indexes the projections table.
func (r Ref) IsProjection() bool { return r.Tag() == TagProjection }

func (r Ref) String() string {
	switch r.Tag() {
	case TagInline:
		return fmt.Sprintf("#%d", r.Payload())
	case TagPrimitive:
		return fmt.Sprintf("prim[%d]", r.Payload())
	case TagProjection:
		return fmt.Sprintf("proj[%d]", r.Payload())
	default:
		return fmt.Sprintf("Ref(%#x)", uint32(r))
	}
}

func packPayload(tag Ref, table string, n int) (Ref, error) {
	if n < 0 || n >= MaxTableEntries {
		return 0, &hash.IntegrityError{
			Table:  table,
			Detail: fmt.Sprintf("index %d exceeds packing ceiling %d", n, MaxTableEntries),
		}
	}
	return tag | Ref(n), nil
}

// PackInline packs a small non-negative integer into an inline reference.
func PackInline(n int) (Ref, error) {
	return packPayload(TagInline, "ints", n)
}
