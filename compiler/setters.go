package compiler

import "fmt"

// setterKinds are the expression heads accepted as setter recipes.
var setterKinds = map[Kind]bool{
	KindSetter: true,
	KindSplice: true,
	KindPush:   true,
}

// compileSetter translates a named setter expression into its compiled
// form: kind, name, token count and steps. Key tokens in the path become synthetic positional argument
// tokens, bound left-to-right at invocation time.
func (b *builder) compileSetter(s Setter) (CompiledSetter, error) {
	if s.Expr == nil {
		return CompiledSetter{}, fmt.Errorf("compiler: setter %q has no expression", s.Name)
	}
	kind := s.Expr.Head.Kind
	if !setterKinds[kind] {
		return CompiledSetter{}, fmt.Errorf("compiler: setter %q has non-setter head %q", s.Name, kind)
	}

	tokenCount := 0
	for _, step := range s.Expr.Args {
		if _, ok := step.(Token); ok {
			tokenCount++
		}
	}

	steps := make([]Ref, len(s.Expr.Args))
	argIdx := 0
	for i, step := range s.Expr.Args {
		node := step
		if tok, ok := step.(Token); ok && tok.Kind == KindKey {
			node = NewToken(ArgKind(argIdx))
			argIdx++
		}
		r, err := b.serializeNode(node)
		if err != nil {
			return CompiledSetter{}, err
		}
		steps[i] = r
	}

	kindRef, err := b.internPrimitive(string(kind))
	if err != nil {
		return CompiledSetter{}, err
	}
	nameRef, err := b.internPrimitive(s.Name)
	if err != nil {
		return CompiledSetter{}, err
	}

	return CompiledSetter{
		Kind:       kindRef,
		Name:       nameRef,
		TokenCount: tokenCount,
		Steps:      steps,
	}, nil
}
