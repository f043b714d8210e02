package compiler

// GraphAST lowers a graph into plain JSON-like data for debug embedding.
// The envelope back ends carry this value verbatim; the runtime returns it
// from the instance's AST accessor in debug mode.
func GraphAST(g *Graph) any {
	tops := make([]any, len(g.TopLevels))
	for i, tl := range g.TopLevels {
		tops[i] = map[string]any{"name": tl.Name, "expr": nodeAST(tl.Expr)}
	}
	setters := make([]any, len(g.Setters))
	for i, s := range g.Setters {
		setters[i] = map[string]any{"name": s.Name, "expr": nodeAST(s.Expr)}
	}
	return map[string]any{"topLevels": tops, "setters": setters}
}

func nodeAST(n Node) any {
	switch v := n.(type) {
	case Token:
		return tokenAST(v)
	case *Expression:
		out := make([]any, 0, len(v.Args)+1)
		out = append(out, tokenAST(v.Head))
		for _, arg := range v.Args {
			out = append(out, nodeAST(arg))
		}
		return out
	case int:
		return int64(v)
	default:
		return v
	}
}

func tokenAST(t Token) any {
	m := map[string]any{"$kind": string(t.Kind)}
	if t.Source != "" {
		m["$source"] = t.Source
	}
	if t.Tracked {
		m["$tracked"] = true
		m["$id"] = t.ID
	}
	if t.Invalidates {
		m["$invalidates"] = true
	}
	if len(t.Paths) > 0 {
		paths := make([]any, len(t.Paths))
		for i, pp := range t.Paths {
			steps := make([]any, len(pp.Path))
			for j, s := range pp.Path {
				steps[j] = nodeAST(s)
			}
			paths[i] = map[string]any{
				"condition": nodeAST(pp.Condition),
				"path":      steps,
			}
		}
		m["$paths"] = paths
	}
	return m
}
