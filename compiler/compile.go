// Package compiler builds hash-consed projection tables from a frozen
// expression graph. The output Artifact is handed to pkg/bytecode's packer,
// which produces the dense ProjectionData consumed by the runtime and by
// both envelope back ends.
package compiler

import "fmt"

// Compile turns an expression graph and its named setters into hash-consed
// projection tables. Compilation is pure: for a fixed graph and options the
// resulting tables are identical across runs.
func Compile(g *Graph, opts Options) (*Artifact, error) {
	if g == nil {
		return nil, fmt.Errorf("compiler: nil graph")
	}

	b, err := newBuilder(opts)
	if err != nil {
		return nil, err
	}

	// Setter paths participate in invalidation filtering, so collect them
	// before any projection is built.
	for _, s := range g.Setters {
		if s.Expr == nil {
			return nil, fmt.Errorf("compiler: setter %q has no expression", s.Name)
		}
		b.rawSetterPaths = append(b.rawSetterPaths, s.Expr.Args)
	}

	// Top-level indices are pre-assigned so that forward references between
	// derivations resolve during building.
	for i, tl := range g.TopLevels {
		if tl.Name == "" {
			continue
		}
		if _, dup := b.topLevelIndex[tl.Name]; dup {
			return nil, fmt.Errorf("compiler: duplicate top-level %q", tl.Name)
		}
		b.topLevelIndex[tl.Name] = i
	}

	a := &Artifact{
		Primitives:  b.primitives,
		Projections: b.projections,
		Metadata:    b.metadata,
		Opts:        opts,
	}

	for _, tl := range g.TopLevels {
		ref, err := b.serializeNode(tl.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiler: top-level %q: %w", tl.Name, err)
		}
		a.TopLevels = append(a.TopLevels, ref)

		nameRef := NoRef()
		if tl.Name != "" {
			nameRef, err = b.internPrimitive(tl.Name)
			if err != nil {
				return nil, err
			}
		}
		a.TopLevelNames = append(a.TopLevelNames, nameRef)
	}

	seen := make(map[string]bool)
	for _, s := range g.Setters {
		if seen[s.Name] {
			return nil, fmt.Errorf("compiler: duplicate setter %q", s.Name)
		}
		seen[s.Name] = true
		cs, err := b.compileSetter(s)
		if err != nil {
			return nil, err
		}
		a.Setters = append(a.Setters, cs)
	}

	if opts.Debug {
		a.AST = GraphAST(g)
	}
	return a, nil
}
