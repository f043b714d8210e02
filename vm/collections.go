package vm

import (
	"fmt"

	"github.com/chazu/ripple/pkg/bytecode"
)

// applier is a resolved combinator function: either a user function from
// the function library or a compiled func-projection evaluated per item.
type applier func(value, key, context any, loop func(key any) any) any

// resolveFunc turns a combinator's function argument into an applier. A
// primitive string resolves through the function library; a projection
// headed by func evaluates its body with per-item bindings.
func (in *Instance) resolveFunc(r bytecode.Ref) applier {
	if r.IsPrimitive() {
		name, ok := in.pd.Primitives[r.Payload()].(string)
		if !ok {
			panic(fmt.Errorf("vm: combinator function ref is not a name"))
		}
		fn, ok := in.funcLib[name]
		if !ok {
			panic(&UndefinedFunctionError{Name: name})
		}
		switch f := fn.(type) {
		case Func:
			return func(v, k, c any, _ func(any) any) any { return f(v, k, c) }
		case func(value, key, context any) any:
			return func(v, k, c any, _ func(any) any) any { return f(v, k, c) }
		case RecFunc:
			return func(v, k, c any, loop func(any) any) any { return f(v, k, c, loop) }
		case func(value, key, context any, loop func(key any) any) any:
			return f
		default:
			panic(fmt.Errorf("vm: function %q has unsupported type %T", name, fn))
		}
	}
	if r.IsProjection() {
		row := in.pd.Getters[r.Payload()]
		kind, _ := in.pd.Primitives[row[bytecode.GetterType].Payload()].(string)
		if kind == "func" {
			body := row[bytecode.GetterArgs]
			return func(v, k, c any, _ func(any) any) any {
				return in.evalRef(body, &evalCtx{val: v, key: k, context: c})
			}
		}
	}
	panic(fmt.Errorf("vm: combinator function ref %s is neither a name nor a func", r))
}

func (in *Instance) evalCombinator(i int, kind string, args []bytecode.Ref, ctx *evalCtx) any {
	fn := in.resolveFunc(args[0])
	src := in.evalRef(args[1], ctx)
	var context any
	if len(args) > 2 {
		context = in.evalRef(args[2], ctx)
	}

	switch kind {
	case "mapValues":
		m := in.checkObject(i, kind, src)
		out := make(map[string]any, len(m))
		for _, k := range sortedKeys(m) {
			out[k] = fn(m[k], k, context, nil)
		}
		return out

	case "filterBy":
		m := in.checkObject(i, kind, src)
		out := map[string]any{}
		for _, k := range sortedKeys(m) {
			if truthy(fn(m[k], k, context, nil)) {
				out[k] = m[k]
			}
		}
		return out

	case "groupBy":
		m := in.checkObject(i, kind, src)
		out := map[string]any{}
		for _, k := range sortedKeys(m) {
			group := keyString(fn(m[k], k, context, nil))
			bucket, _ := out[group].(map[string]any)
			if bucket == nil {
				bucket = map[string]any{}
				out[group] = bucket
			}
			bucket[k] = m[k]
		}
		return out

	case "mapKeys":
		m := in.checkObject(i, kind, src)
		out := make(map[string]any, len(m))
		for _, k := range sortedKeys(m) {
			out[keyString(fn(m[k], k, context, nil))] = m[k]
		}
		return out

	case "anyValues":
		m := in.checkObject(i, kind, src)
		for _, k := range sortedKeys(m) {
			if truthy(fn(m[k], k, context, nil)) {
				return true
			}
		}
		return false

	case "map":
		arr := in.checkArray(i, kind, src)
		out := make([]any, len(arr))
		for idx, v := range arr {
			out[idx] = fn(v, idx, context, nil)
		}
		return out

	case "filter":
		arr := in.checkArray(i, kind, src)
		out := []any{}
		for idx, v := range arr {
			if truthy(fn(v, idx, context, nil)) {
				out = append(out, v)
			}
		}
		return out

	case "any":
		arr := in.checkArray(i, kind, src)
		for idx, v := range arr {
			if truthy(fn(v, idx, context, nil)) {
				return true
			}
		}
		return false

	case "keyBy":
		arr := in.checkArray(i, kind, src)
		out := map[string]any{}
		for idx, v := range arr {
			out[keyString(fn(v, idx, context, nil))] = v
		}
		return out

	case "recursiveMap":
		arr := in.checkArray(i, kind, src)
		out := make([]any, len(arr))
		resolved := make(map[int]bool, len(arr))
		var loop func(key any) any
		loop = func(key any) any {
			idx := toInt(key)
			if idx < 0 || idx >= len(arr) {
				return nil
			}
			// A key already being computed yields its partial value.
			if resolved[idx] {
				return out[idx]
			}
			resolved[idx] = true
			out[idx] = fn(arr[idx], idx, context, loop)
			return out[idx]
		}
		for idx := range arr {
			loop(idx)
		}
		return out

	case "recursiveMapValues":
		m := in.checkObject(i, kind, src)
		out := make(map[string]any, len(m))
		resolved := make(map[string]bool, len(m))
		var loop func(key any) any
		loop = func(key any) any {
			k := keyString(key)
			if _, exists := m[k]; !exists {
				return nil
			}
			if resolved[k] {
				return out[k]
			}
			resolved[k] = true
			out[k] = fn(m[k], k, context, loop)
			return out[k]
		}
		for _, k := range sortedKeys(m) {
			loop(k)
		}
		return out

	default:
		panic(fmt.Errorf("vm: unknown combinator %q", kind))
	}
}
