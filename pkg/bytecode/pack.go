// Package bytecode packs the compiler's hash-consed tables into dense
// integer-indexed arrays and serializes them as a compact binary envelope.
// ProjectionData is the sole contract between the compiler and the runtime.
package bytecode

import (
	"fmt"

	"github.com/chazu/ripple/compiler"
	"github.com/chazu/ripple/compiler/hash"
)

// Getter row layout: [type-ref, metadata-index, arg-refs...].
const (
	GetterType = 0
	GetterMeta = 1
	GetterArgs = 2
)

// Setter row layout: [kind-ref, name-ref, token-count, step-refs...].
const (
	SetterKind   = 0
	SetterName   = 1
	SetterTokens = 2
	SetterSteps  = 3
)

// ProjectionData is the compiler's packed output artifact. Every Ref inside
// points at a valid slot of its tagged table or is an inline integer;
// MetaData[0] is always the empty sentinel.
type ProjectionData struct {
	Getters             [][]Ref    `json:"getters" cbor:"1,keyasint"`
	Primitives          []any      `json:"primitives" cbor:"2,keyasint"`
	TopLevelNames       []int32    `json:"topLevelNames" cbor:"3,keyasint"`
	TopLevelProjections []Ref      `json:"topLevelProjections" cbor:"4,keyasint"`
	MetaData            [][]uint32 `json:"metaData" cbor:"5,keyasint"`
	Paths               [][]Ref    `json:"paths" cbor:"6,keyasint"`
	Setters             [][]Ref    `json:"setters" cbor:"7,keyasint"`
	Sources             []string   `json:"sources" cbor:"8,keyasint"`
}

type packer struct {
	artifact *compiler.Artifact
	paths    *hash.Table // packed step rows, deduplicated
}

// Pack assigns dense indices to every interned value, collapses each
// intermediate reference into a packed integer, and builds the derived
// paths table.
func Pack(a *compiler.Artifact) (*ProjectionData, error) {
	if a.Metadata.Len() == 0 {
		return nil, &hash.IntegrityError{Table: "metadata", Detail: "missing empty sentinel at index 0"}
	}
	if m, ok := a.Metadata.At(0).(*compiler.Metadata); !ok || m.Flags != 0 || len(m.Paths) != 0 {
		return nil, &hash.IntegrityError{Table: "metadata", Detail: "slot 0 is not the empty sentinel"}
	}

	p := &packer{artifact: a, paths: hash.NewTable("paths")}
	pd := &ProjectionData{}

	for i := 0; i < a.Primitives.Len(); i++ {
		pd.Primitives = append(pd.Primitives, a.Primitives.At(i))
	}

	for i := 0; i < a.Projections.Len(); i++ {
		proj := a.Projections.At(i).(*compiler.Projection)
		row, err := p.packGetter(proj)
		if err != nil {
			return nil, err
		}
		pd.Getters = append(pd.Getters, row)
		pd.Sources = append(pd.Sources, proj.Source)
	}

	for i := 0; i < a.Metadata.Len(); i++ {
		meta := a.Metadata.At(i).(*compiler.Metadata)
		row, err := p.packMetadata(meta)
		if err != nil {
			return nil, err
		}
		pd.MetaData = append(pd.MetaData, row)
	}
	for i := 0; i < p.paths.Len(); i++ {
		pd.Paths = append(pd.Paths, p.paths.At(i).([]Ref))
	}

	for i, tl := range a.TopLevels {
		ref, err := p.packRef(tl)
		if err != nil {
			return nil, err
		}
		pd.TopLevelProjections = append(pd.TopLevelProjections, ref)

		nameRef := a.TopLevelNames[i]
		if nameRef.Table == compiler.RefNone {
			pd.TopLevelNames = append(pd.TopLevelNames, -1)
			continue
		}
		idx, ok := a.Primitives.IndexOf(nameRef.Sum)
		if !ok {
			return nil, &hash.IntegrityError{Table: "primitives", Hash: nameRef.Sum, Detail: "unindexed top-level name"}
		}
		pd.TopLevelNames = append(pd.TopLevelNames, int32(idx))
	}

	for _, s := range a.Setters {
		row, err := p.packSetter(s)
		if err != nil {
			return nil, err
		}
		pd.Setters = append(pd.Setters, row)
	}

	return pd, nil
}

func (p *packer) packRef(r compiler.Ref) (Ref, error) {
	switch r.Table {
	case compiler.RefInline:
		return PackInline(r.Int)
	case compiler.RefPrimitive:
		idx, ok := p.artifact.Primitives.IndexOf(r.Sum)
		if !ok {
			return 0, &hash.IntegrityError{Table: "primitives", Hash: r.Sum, Detail: "dangling reference"}
		}
		return packPayload(TagPrimitive, "primitives", idx)
	case compiler.RefProjection:
		idx, ok := p.artifact.Projections.IndexOf(r.Sum)
		if !ok {
			return 0, &hash.IntegrityError{Table: "projections", Hash: r.Sum, Detail: "dangling reference"}
		}
		return packPayload(TagProjection, "projections", idx)
	default:
		return 0, fmt.Errorf("bytecode: cannot pack reference table %d", r.Table)
	}
}

func (p *packer) packRefs(refs []compiler.Ref) ([]Ref, error) {
	out := make([]Ref, len(refs))
	for i, r := range refs {
		packed, err := p.packRef(r)
		if err != nil {
			return nil, err
		}
		out[i] = packed
	}
	return out, nil
}

func (p *packer) packGetter(proj *compiler.Projection) ([]Ref, error) {
	typeRef, err := p.packRef(proj.Type)
	if err != nil {
		return nil, err
	}
	metaIdx, ok := p.artifact.Metadata.IndexOf(proj.MetaData)
	if !ok {
		return nil, &hash.IntegrityError{Table: "metadata", Hash: proj.MetaData, Detail: "dangling reference"}
	}
	metaRef, err := packPayload(TagInline, "metadata", metaIdx)
	if err != nil {
		return nil, err
	}
	args, err := p.packRefs(proj.Args)
	if err != nil {
		return nil, err
	}
	row := make([]Ref, 0, len(args)+GetterArgs)
	row = append(row, typeRef, metaRef)
	return append(row, args...), nil
}

func (p *packer) packMetadata(meta *compiler.Metadata) ([]uint32, error) {
	row := []uint32{meta.Flags}
	for _, path := range meta.Paths {
		cond, err := p.packRef(path.Condition)
		if err != nil {
			return nil, err
		}
		steps, err := p.packRefs(path.Steps)
		if err != nil {
			return nil, err
		}
		packed := make([]Ref, 0, len(steps)+1)
		packed = append(packed, cond)
		packed = append(packed, steps...)

		canon := make([]any, len(packed))
		for i, r := range packed {
			canon[i] = int64(r)
		}
		h, err := p.paths.Intern(packed, canon)
		if err != nil {
			return nil, err
		}
		idx, _ := p.paths.IndexOf(h)
		if idx >= MaxTableEntries {
			return nil, &hash.IntegrityError{Table: "paths", Detail: "paths table exceeds packing ceiling"}
		}
		row = append(row, uint32(idx))
	}
	return row, nil
}

func (p *packer) packSetter(s compiler.CompiledSetter) ([]Ref, error) {
	kind, err := p.packRef(s.Kind)
	if err != nil {
		return nil, err
	}
	name, err := p.packRef(s.Name)
	if err != nil {
		return nil, err
	}
	tokens, err := PackInline(s.TokenCount)
	if err != nil {
		return nil, err
	}
	steps, err := p.packRefs(s.Steps)
	if err != nil {
		return nil, err
	}
	row := make([]Ref, 0, len(steps)+SetterSteps)
	row = append(row, kind, name, tokens)
	return append(row, steps...), nil
}
