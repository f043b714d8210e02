package compiler

import (
	"fmt"

	"github.com/chazu/ripple/compiler/hash"
)

// builder owns the hash-consing tables for a single compile invocation.
// Tables are never shared between compiles.
type builder struct {
	opts Options

	primitives  *hash.Table
	projections *hash.Table
	metadata    *hash.Table

	emptyMetadata hash.Sum

	topLevelIndex map[string]int

	// rawSetterPaths holds each setter's path steps with the head stripped,
	// used to discard invalidation paths no setter can ever touch.
	rawSetterPaths [][]Node
}

func newBuilder(opts Options) (*builder, error) {
	b := &builder{
		opts:          opts,
		primitives:    hash.NewTable("primitives"),
		projections:   hash.NewTable("projections"),
		metadata:      hash.NewTable("metadata"),
		topLevelIndex: make(map[string]int),
	}
	// Reserve index 0 for the "no metadata" sentinel.
	sentinel := &Metadata{}
	h, err := b.metadata.Intern(sentinel, sentinel.canon())
	if err != nil {
		return nil, err
	}
	b.emptyMetadata = h
	return b, nil
}

func (b *builder) internPrimitive(v any) (Ref, error) {
	h, err := b.primitives.Intern(v, v)
	if err != nil {
		return Ref{}, err
	}
	return PrimitiveRef(h), nil
}

// serializeNode turns an expression node into an intermediate reference,
// interning every structurally distinct sub-expression exactly once.
func (b *builder) serializeNode(n Node) (Ref, error) {
	switch v := n.(type) {
	case int:
		if v >= 0 && v < InlineCeiling {
			return InlineRef(v), nil
		}
		return b.internPrimitive(int64(v))
	case int64:
		if v >= 0 && v < InlineCeiling {
			return InlineRef(int(v)), nil
		}
		return b.internPrimitive(v)
	case nil, bool, float64, string:
		return b.internPrimitive(v)
	case map[string]any, []any:
		// Opaque data literal.
		return b.internPrimitive(v)
	case Token:
		return b.internPrimitive(string(v.Kind))
	case *Expression:
		return b.serializeExpression(v)
	default:
		return Ref{}, fmt.Errorf("compiler: cannot serialize node of type %T", n)
	}
}

func (b *builder) serializeExpression(e *Expression) (Ref, error) {
	args, err := b.normalizeArgs(e)
	if err != nil {
		return Ref{}, err
	}

	refs := make([]Ref, len(args))
	for i, arg := range args {
		r, err := b.serializeNode(arg)
		if err != nil {
			return Ref{}, err
		}
		refs[i] = r
	}

	typeRef, err := b.internPrimitive(string(e.Head.Kind))
	if err != nil {
		return Ref{}, err
	}

	meta, err := b.buildMetadata(e.Head)
	if err != nil {
		return Ref{}, err
	}

	p := &Projection{Type: typeRef, MetaData: meta, Args: refs}
	if b.opts.Debug {
		p.Source = e.Head.Source
	}
	h, err := b.projections.Intern(p, p.canon())
	if err != nil {
		return Ref{}, err
	}
	return ProjectionRef(h), nil
}

// normalizeArgs applies the kind-specific argument manipulators.
func (b *builder) normalizeArgs(e *Expression) ([]Node, error) {
	args := e.Args
	switch e.Head.Kind {
	case KindGet:
		// Surface order is (key, object); storage order is (object, key).
		if len(args) != 2 {
			return nil, fmt.Errorf("compiler: get expects 2 arguments, got %d", len(args))
		}
		key, object := args[0], args[1]
		if tok, ok := object.(Token); ok && tok.Kind == KindTopLevel {
			name, ok := key.(string)
			if !ok {
				return nil, fmt.Errorf("compiler: topLevel get key must be a name, got %T", key)
			}
			idx, ok := b.topLevelIndex[name]
			if !ok {
				return nil, fmt.Errorf("compiler: unknown top-level %q", name)
			}
			return []Node{object, idx}, nil
		}
		return []Node{object, key}, nil

	case KindTrace:
		if len(args) == 0 {
			return nil, fmt.Errorf("compiler: trace expects an argument")
		}
		inner := args[0]
		return []Node{inner, string(nodeKind(inner)), nodeSource(inner)}, nil

	case KindAnd, KindOr, KindTernary:
		id := Node(-1)
		if e.Head.Tracked {
			id = int(e.Head.ID)
		}
		return append([]Node{id}, args...), nil

	case KindRange:
		out := append([]Node(nil), args...)
		if len(out) < 1 {
			return nil, fmt.Errorf("compiler: range expects at least an end argument")
		}
		if len(out) < 2 {
			out = append(out, 0)
		}
		if len(out) < 3 {
			out = append(out, 1)
		}
		return out, nil

	default:
		return args, nil
	}
}

// nodeKind reports the operator kind of a node; literals are quotes.
func nodeKind(n Node) Kind {
	switch v := n.(type) {
	case Token:
		return v.Kind
	case *Expression:
		return v.Head.Kind
	default:
		return KindQuote
	}
}

func nodeSource(n Node) string {
	if e, ok := n.(*Expression); ok {
		return e.Head.Source
	}
	if t, ok := n.(Token); ok {
		return t.Source
	}
	return ""
}

// buildMetadata walks a token's path-invalidation map into an interned
// metadata record. Paths no setter can reach are dropped here; they carry
// no invalidation value at runtime.
func (b *builder) buildMetadata(tok Token) (hash.Sum, error) {
	var flags uint32
	if tok.Invalidates {
		flags |= FlagInvalidates
	}

	var paths []InvPath
	for _, pp := range tok.Paths {
		steps, keep, err := b.rewritePath(pp.Path)
		if err != nil {
			return hash.Sum{}, err
		}
		if !keep {
			continue
		}

		cond := InlineRef(1)
		if pp.Condition != nil {
			cond, err = b.serializeNode(pp.Condition)
			if err != nil {
				return hash.Sum{}, err
			}
		}

		stepRefs := make([]Ref, len(steps))
		for i, s := range steps {
			r, err := b.serializeNode(s)
			if err != nil {
				return hash.Sum{}, err
			}
			stepRefs[i] = r
		}
		paths = append(paths, InvPath{Condition: cond, Steps: stepRefs})
	}

	if flags == 0 && len(paths) == 0 {
		return b.emptyMetadata, nil
	}
	m := &Metadata{Flags: flags, Paths: paths}
	return b.metadata.Intern(m, m.canon())
}

// rewritePath canonicalizes an invalidation path rooted at the model.
func (b *builder) rewritePath(path []Node) ([]Node, bool, error) {
	if len(path) == 0 {
		return nil, false, fmt.Errorf("compiler: empty invalidation path")
	}
	root, ok := path[0].(Token)
	if !ok {
		return nil, false, fmt.Errorf("compiler: invalidation path must start at a root token, got %T", path[0])
	}

	switch root.Kind {
	case KindContext:
		// Context values arrive boxed in a single-slot sequence.
		out := make([]Node, 0, len(path)+1)
		out = append(out, path[0], 0)
		out = append(out, path[1:]...)
		return out, true, nil

	case KindTopLevel:
		if len(path) < 2 {
			return nil, false, fmt.Errorf("compiler: topLevel invalidation path needs a name")
		}
		name, ok := path[1].(string)
		if !ok {
			return nil, false, fmt.Errorf("compiler: topLevel invalidation path name must be a string, got %T", path[1])
		}
		idx, ok := b.topLevelIndex[name]
		if !ok {
			return nil, false, fmt.Errorf("compiler: unknown top-level %q in invalidation path", name)
		}
		out := append([]Node{path[0], idx}, path[2:]...)
		return out, true, nil

	case KindRoot:
		if !b.pathTouchedBySetter(path[1:]) {
			return nil, false, nil
		}
		return path, true, nil

	default:
		return nil, false, nil
	}
}

// pathTouchedBySetter reports whether any registered setter's target shares
// a prefix with the given root-relative path. Token steps (positional setter
// arguments) match any key.
func (b *builder) pathTouchedBySetter(steps []Node) bool {
	for _, setter := range b.rawSetterPaths {
		n := len(setter)
		if len(steps) < n {
			n = len(steps)
		}
		matched := true
		for i := 0; i < n; i++ {
			if _, ok := setter[i].(Token); ok {
				continue
			}
			if _, ok := steps[i].(Token); ok {
				continue
			}
			if !scalarEqual(setter[i], steps[i]) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func scalarEqual(a, b Node) bool {
	return normalizeScalar(a) == normalizeScalar(b)
}

func normalizeScalar(n Node) any {
	switch v := n.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		if v == float64(int64(v)) {
			return int64(v)
		}
		return v
	default:
		return n
	}
}
