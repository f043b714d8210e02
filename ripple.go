// Package ripple compiles declarative data-transformation graphs into
// reactive instances. The compiler deduplicates every sub-expression into
// hash-consed tables, packs them into dense ProjectionData, and emits either
// a generated Go source envelope or a compact binary envelope; the vm
// package keeps an instance's derived values consistent as setters mutate
// the model.
package ripple

import (
	"github.com/chazu/ripple/compiler"
	"github.com/chazu/ripple/pkg/bytecode"
	"github.com/chazu/ripple/vm"
)

// Compile builds and packs an expression graph. The returned tables are
// immutable and may be shared by any number of instances.
func Compile(g *compiler.Graph, opts compiler.Options) (*bytecode.ProjectionData, error) {
	artifact, err := compiler.Compile(g, opts)
	if err != nil {
		return nil, err
	}
	return bytecode.Pack(artifact)
}

// CompileEnvelope builds, packs, and serializes an expression graph into a
// self-contained binary envelope.
func CompileEnvelope(g *compiler.Graph, opts compiler.Options) ([]byte, error) {
	artifact, err := compiler.Compile(g, opts)
	if err != nil {
		return nil, err
	}
	pd, err := bytecode.Pack(artifact)
	if err != nil {
		return nil, err
	}
	return bytecode.Marshal(pd, artifact.AST)
}

// LoadInstance re-expands a binary envelope and builds an instance over
// model. Envelope debug flags carry through to the instance.
func LoadInstance(envelope []byte, model any, opts ...vm.Option) (*vm.Instance, error) {
	pd, ast, err := bytecode.Unmarshal(envelope)
	if err != nil {
		return nil, err
	}
	if ast != nil {
		opts = append([]vm.Option{vm.WithDebug(true), vm.WithAST(ast)}, opts...)
	}
	return vm.NewInstance(pd, model, opts...)
}
