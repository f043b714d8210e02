package compiler

import (
	"encoding/json"
	"fmt"
)

// DecodeGraph parses the front end's JSON serialization of an expression
// graph. Tokens are objects carrying a "$kind" discriminator, expressions
// are arrays whose first element is a token, scalars are themselves.
//
// This is the inverse of GraphAST and the contract used by cmd/ripple.
func DecodeGraph(data []byte) (*Graph, error) {
	var raw struct {
		TopLevels []struct {
			Name string          `json:"name"`
			Expr json.RawMessage `json:"expr"`
		} `json:"topLevels"`
		Setters []struct {
			Name string          `json:"name"`
			Expr json.RawMessage `json:"expr"`
		} `json:"setters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("compiler: parse graph: %w", err)
	}

	g := &Graph{}
	for _, tl := range raw.TopLevels {
		node, err := decodeNode(tl.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiler: top-level %q: %w", tl.Name, err)
		}
		g.TopLevels = append(g.TopLevels, TopLevel{Name: tl.Name, Expr: node})
	}
	for _, s := range raw.Setters {
		node, err := decodeNode(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("compiler: setter %q: %w", s.Name, err)
		}
		expr, ok := node.(*Expression)
		if !ok {
			return nil, fmt.Errorf("compiler: setter %q must be an expression", s.Name)
		}
		g.Setters = append(g.Setters, Setter{Name: s.Name, Expr: expr})
	}
	return g, nil
}

func decodeNode(data json.RawMessage) (Node, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return decodeValue(v)
}

func decodeValue(v any) (Node, error) {
	switch n := v.(type) {
	case map[string]any:
		if _, ok := n["$kind"]; ok {
			return decodeToken(n)
		}
		// Opaque data literal.
		return n, nil
	case []any:
		if len(n) > 0 {
			if head, ok := n[0].(map[string]any); ok {
				if _, isToken := head["$kind"]; isToken {
					return decodeExpression(n)
				}
			}
		}
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int(n), nil
		}
		return n, nil
	default:
		return n, nil
	}
}

func decodeExpression(arr []any) (*Expression, error) {
	head, err := decodeToken(arr[0].(map[string]any))
	if err != nil {
		return nil, err
	}
	e := &Expression{Head: head}
	for _, raw := range arr[1:] {
		arg, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		e.Args = append(e.Args, arg)
	}
	return e, nil
}

func decodeToken(m map[string]any) (Token, error) {
	kind, ok := m["$kind"].(string)
	if !ok {
		return Token{}, fmt.Errorf("token $kind must be a string")
	}
	t := Token{Kind: Kind(kind)}
	if s, ok := m["$source"].(string); ok {
		t.Source = s
	}
	if tracked, ok := m["$tracked"].(bool); ok && tracked {
		t.Tracked = true
		if id, ok := m["$id"].(float64); ok {
			t.ID = int64(id)
		}
	}
	if inv, ok := m["$invalidates"].(bool); ok {
		t.Invalidates = inv
	}
	if rawPaths, ok := m["$paths"].([]any); ok {
		for _, rp := range rawPaths {
			pm, ok := rp.(map[string]any)
			if !ok {
				return Token{}, fmt.Errorf("token $paths entries must be objects")
			}
			var pp PathPair
			if cond, ok := pm["condition"]; ok && cond != nil {
				node, err := decodeValue(cond)
				if err != nil {
					return Token{}, err
				}
				pp.Condition = node
			}
			steps, ok := pm["path"].([]any)
			if !ok {
				return Token{}, fmt.Errorf("token $paths entries need a path array")
			}
			for _, s := range steps {
				node, err := decodeValue(s)
				if err != nil {
					return Token{}, err
				}
				pp.Path = append(pp.Path, node)
			}
			t.Paths = append(t.Paths, pp)
		}
	}
	return t, nil
}
