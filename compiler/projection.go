package compiler

import (
	"github.com/chazu/ripple/compiler/hash"
)

// ---------------------------------------------------------------------------
// Intermediate compilation artifacts: references, projections, metadata
// ---------------------------------------------------------------------------

// RefTable identifies which table an intermediate reference points into.
type RefTable uint8

const (
	// RefInline is a small non-negative integer carried in the reference
	// itself, below InlineCeiling.
	RefInline RefTable = iota

	// RefPrimitive points into the primitives table.
	RefPrimitive

	// RefProjection points into the projections table.
	RefProjection

	// RefNone marks an absent reference (hidden top-level names).
	RefNone
)

// Ref is an intermediate reference: a tagged pair of table and key. The
// packer later collapses it into a single integer.
type Ref struct {
	Table RefTable
	Int   int      // inline value, valid when Table == RefInline
	Sum   hash.Sum // table key, valid for RefPrimitive and RefProjection
}

// InlineRef wraps a small non-negative integer.
func InlineRef(n int) Ref { return Ref{Table: RefInline, Int: n} }

// PrimitiveRef points at an interned primitive.
func PrimitiveRef(h hash.Sum) Ref { return Ref{Table: RefPrimitive, Sum: h} }

// ProjectionRef points at an interned projection.
func ProjectionRef(h hash.Sum) Ref { return Ref{Table: RefProjection, Sum: h} }

// NoRef marks an absent reference.
func NoRef() Ref { return Ref{Table: RefNone} }

func (r Ref) canon() any {
	if r.Table == RefInline {
		return []any{int(r.Table), int64(r.Int)}
	}
	return []any{int(r.Table), r.Sum[:]}
}

func canonRefs(refs []Ref) []any {
	out := make([]any, len(refs))
	for i, r := range refs {
		out[i] = r.canon()
	}
	return out
}

// Projection is a compiled, deduplicated sub-expression.
type Projection struct {
	Type     Ref      // primitives ref of the operator-kind tag
	MetaData hash.Sum // metadata-table key
	Source   string   // source location, empty unless compiled with Debug
	Args     []Ref
}

func (p *Projection) canon() any {
	return []any{"projection", p.Type.canon(), p.MetaData[:], p.Source, canonRefs(p.Args)}
}

// Metadata flags.
const (
	// FlagInvalidates marks a projection that contributes invalidation paths.
	FlagInvalidates uint32 = 1 << 0
)

// InvPath is a single invalidation contribution: when Condition evaluates
// truthy, writes under the model path described by Steps dirty the owning
// projection.
type InvPath struct {
	Condition Ref
	Steps     []Ref
}

func (p InvPath) canon() any {
	return []any{p.Condition.canon(), canonRefs(p.Steps)}
}

// Metadata is a per-projection invalidation record.
type Metadata struct {
	Flags uint32
	Paths []InvPath
}

func (m *Metadata) canon() any {
	paths := make([]any, len(m.Paths))
	for i, p := range m.Paths {
		paths[i] = p.canon()
	}
	return []any{"metadata", m.Flags, paths}
}

// CompiledSetter is the compiled form of a named setter.
type CompiledSetter struct {
	Kind       Ref // primitives ref of the setter kind tag
	Name       Ref // primitives ref of the exported name
	TokenCount int // number of positional arguments bound by the path
	Steps      []Ref
}

// Artifact is the output of the projection builder: the three hash-consed
// tables plus the ordered top-level and setter surfaces. The packer turns an
// Artifact into dense integer-indexed ProjectionData.
type Artifact struct {
	Primitives  *hash.Table // canonical scalars and operator-kind tags
	Projections *hash.Table // *Projection entries
	Metadata    *hash.Table // *Metadata entries; index 0 is the empty sentinel

	// TopLevels[i] and TopLevelNames[i] correspond 1-to-1; a RefNone name
	// marks an internal derivation hidden from the exported surface.
	TopLevels     []Ref
	TopLevelNames []Ref

	Setters []CompiledSetter

	Opts Options

	// AST is the input graph retained for debug embedding, nil otherwise.
	AST any
}

// Stats summarizes table occupancy after a compile.
type Stats struct {
	Primitives     int
	Projections    int
	Metadata       int
	DedupHits      int
	TopLevels      int
	Setters        int
}

// Stats reports table sizes and deduplication hits.
func (a *Artifact) Stats() Stats {
	return Stats{
		Primitives:  a.Primitives.Len(),
		Projections: a.Projections.Len(),
		Metadata:    a.Metadata.Len(),
		DedupHits:   a.Primitives.Hits() + a.Projections.Hits() + a.Metadata.Hits(),
		TopLevels:   len(a.TopLevels),
		Setters:     len(a.Setters),
	}
}
