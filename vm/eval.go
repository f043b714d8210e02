package vm

import (
	"fmt"
	"math"

	"github.com/chazu/ripple/pkg/bytecode"
)

// evalCtx carries the per-item bindings while evaluating a projection under
// a collection combinator. Projections evaluated with a non-nil context
// bypass the value cache.
type evalCtx struct {
	val     any
	key     any
	context any
}

func (in *Instance) evalRef(r bytecode.Ref, ctx *evalCtx) any {
	switch r.Tag() {
	case bytecode.TagInline:
		return r.Payload()
	case bytecode.TagPrimitive:
		return in.pd.Primitives[r.Payload()]
	case bytecode.TagProjection:
		return in.evalProjection(r.Payload(), ctx)
	default:
		panic(fmt.Errorf("vm: unknown reference tag in %s", r))
	}
}

func (in *Instance) evalProjection(i int, ctx *evalCtx) any {
	if ctx == nil && in.computed[i] {
		return in.values[i]
	}

	row := in.pd.Getters[i]
	kind, ok := in.pd.Primitives[row[bytecode.GetterType].Payload()].(string)
	if !ok {
		panic(fmt.Errorf("vm: projection %d has a non-string kind", i))
	}
	v := in.dispatch(i, kind, row[bytecode.GetterArgs:], ctx)

	if ctx == nil {
		in.values[i] = v
		in.computed[i] = true
	}
	return v
}

func (in *Instance) source(i int) string {
	if i < len(in.pd.Sources) {
		return in.pd.Sources[i]
	}
	return ""
}

func (in *Instance) dispatch(i int, kind string, args []bytecode.Ref, ctx *evalCtx) any {
	switch kind {
	case "root":
		return in.model

	case "get":
		return in.evalGet(args, ctx)

	case "val":
		return ctx.val
	case "key":
		return ctx.key
	case "context":
		return ctx.context

	case "quote":
		return in.evalRef(args[0], ctx)

	case "trace":
		return in.evalTrace(args, ctx)

	case "and", "or", "ternary":
		return in.evalLogic(kind, args, ctx)

	case "not":
		return !truthy(in.evalRef(args[0], ctx))

	case "eq", "notEq", "gt", "gte", "lt", "lte":
		return in.evalCompare(i, kind, args, ctx)

	case "plus", "minus", "mult", "div", "mod":
		return in.evalMath(i, kind, args, ctx)

	case "range":
		return in.evalRange(i, args, ctx)

	case "keys", "values", "size", "sum", "flatten", "assign", "defaults":
		return in.evalScalarOp(i, kind, in.evalRef(args[0], ctx))

	case "mapValues", "filterBy", "groupBy", "mapKeys", "anyValues",
		"map", "filter", "any", "keyBy",
		"recursiveMap", "recursiveMapValues":
		return in.evalCombinator(i, kind, args, ctx)

	default:
		panic(fmt.Errorf("vm: projection %d has unknown kind %q", i, kind))
	}
}

// evalGet reads object[key]. A topLevel object marker indexes the top-level
// projection values instead of the model.
func (in *Instance) evalGet(args []bytecode.Ref, ctx *evalCtx) any {
	if args[0].IsPrimitive() {
		if marker, ok := in.pd.Primitives[args[0].Payload()].(string); ok && marker == "topLevel" {
			return in.topLevelValue(toInt(in.evalRef(args[1], ctx)))
		}
	}
	obj := in.evalRef(args[0], ctx)
	key := in.evalRef(args[1], ctx)
	return getFrom(obj, key)
}

// topLevelValue evaluates a top-level projection on demand, so that
// cross-derivation references see current values mid-recalculation.
func (in *Instance) topLevelValue(idx int) any {
	if idx < 0 || idx >= len(in.pd.TopLevelProjections) {
		return nil
	}
	return in.evalRef(in.pd.TopLevelProjections[idx], nil)
}

func (in *Instance) evalTrace(args []bytecode.Ref, ctx *evalCtx) any {
	v := in.evalRef(args[0], ctx)
	kind := in.evalRef(args[1], ctx)
	source := in.evalRef(args[2], ctx)
	in.log.Infof("trace %v at %v: %v", kind, source, v)
	return v
}

// evalLogic short-circuits and/or/ternary. The first argument is the
// tracked identity, -1 when untracked; tracked forms share their result
// within a settle.
func (in *Instance) evalLogic(kind string, args []bytecode.Ref, ctx *evalCtx) any {
	id := int64(-1)
	if args[0].IsInline() {
		id = int64(args[0].Payload())
	} else if n, ok := toInt64(in.pd.Primitives[args[0].Payload()]); ok {
		id = n
	}
	memoizable := id >= 0 && ctx == nil
	if memoizable {
		if v, ok := in.trackedMemo[id]; ok {
			return v
		}
	}

	var v any
	switch kind {
	case "and":
		for _, r := range args[1:] {
			v = in.evalRef(r, ctx)
			if !truthy(v) {
				break
			}
		}
	case "or":
		for _, r := range args[1:] {
			v = in.evalRef(r, ctx)
			if truthy(v) {
				break
			}
		}
	case "ternary":
		if truthy(in.evalRef(args[1], ctx)) {
			v = in.evalRef(args[2], ctx)
		} else {
			v = in.evalRef(args[3], ctx)
		}
	}

	if memoizable {
		in.trackedMemo[id] = v
	}
	return v
}

func (in *Instance) evalCompare(i int, kind string, args []bytecode.Ref, ctx *evalCtx) any {
	a := in.evalRef(args[0], ctx)
	b := in.evalRef(args[1], ctx)
	switch kind {
	case "eq":
		return looseEqual(a, b)
	case "notEq":
		return !looseEqual(a, b)
	}

	x := in.checkNumber(i, kind, a)
	y := in.checkNumber(i, kind, b)
	switch kind {
	case "gt":
		return x > y
	case "gte":
		return x >= y
	case "lt":
		return x < y
	default:
		return x <= y
	}
}

func (in *Instance) evalMath(i int, kind string, args []bytecode.Ref, ctx *evalCtx) any {
	a := in.checkNumber(i, kind, in.evalRef(args[0], ctx))
	b := in.checkNumber(i, kind, in.evalRef(args[1], ctx))
	switch kind {
	case "plus":
		return a + b
	case "minus":
		return a - b
	case "mult":
		return a * b
	case "div":
		return a / b
	default:
		return math.Mod(a, b)
	}
}

// checkNumber validates a numeric operand when type checks are armed;
// otherwise non-numbers poison the arithmetic as NaN.
func (in *Instance) checkNumber(i int, op string, v any) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	if in.debug || in.typeCheck {
		panic(&TypeError{Op: op, Expected: "number", Actual: typeName(v), Source: in.source(i)})
	}
	return math.NaN()
}

func (in *Instance) checkObject(i int, op string, v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	panic(&TypeError{Op: op, Expected: "object", Actual: typeName(v), Source: in.source(i)})
}

func (in *Instance) checkArray(i int, op string, v any) []any {
	if a, ok := v.([]any); ok {
		return a
	}
	if v == nil {
		return nil
	}
	panic(&TypeError{Op: op, Expected: "array", Actual: typeName(v), Source: in.source(i)})
}

func (in *Instance) evalRange(i int, args []bytecode.Ref, ctx *evalCtx) any {
	end := in.checkNumber(i, "range", in.evalRef(args[0], ctx))
	start := in.checkNumber(i, "range", in.evalRef(args[1], ctx))
	step := in.checkNumber(i, "range", in.evalRef(args[2], ctx))
	if step == 0 || math.IsNaN(end) || math.IsNaN(start) || math.IsNaN(step) {
		return []any{}
	}
	out := []any{}
	if step > 0 {
		for v := start; v < end; v += step {
			out = append(out, v)
		}
	} else {
		for v := start; v > end; v += step {
			out = append(out, v)
		}
	}
	return out
}

func (in *Instance) evalScalarOp(i int, kind string, v any) any {
	switch kind {
	case "keys":
		m := in.checkObject(i, kind, v)
		keys := sortedKeys(m)
		out := make([]any, len(keys))
		for j, k := range keys {
			out[j] = k
		}
		return out

	case "values":
		m := in.checkObject(i, kind, v)
		keys := sortedKeys(m)
		out := make([]any, len(keys))
		for j, k := range keys {
			out[j] = m[k]
		}
		return out

	case "size":
		switch c := v.(type) {
		case map[string]any:
			return float64(len(c))
		case []any:
			return float64(len(c))
		case nil:
			return float64(0)
		default:
			panic(&TypeError{Op: kind, Expected: "array or object", Actual: typeName(v), Source: in.source(i)})
		}

	case "sum":
		arr := in.checkArray(i, kind, v)
		total := float64(0)
		for _, el := range arr {
			total += in.checkNumber(i, kind, el)
		}
		return total

	case "flatten":
		arr := in.checkArray(i, kind, v)
		out := []any{}
		for _, el := range arr {
			if inner, ok := el.([]any); ok {
				out = append(out, inner...)
			} else {
				out = append(out, el)
			}
		}
		return out

	case "assign", "defaults":
		arr := in.checkArray(i, kind, v)
		if kind == "defaults" {
			reversed := make([]any, len(arr))
			for j, el := range arr {
				reversed[len(arr)-1-j] = el
			}
			arr = reversed
		}
		out := map[string]any{}
		for _, el := range arr {
			m := in.checkObject(i, kind, el)
			for _, k := range sortedKeys(m) {
				out[k] = m[k]
			}
		}
		return out

	default:
		panic(fmt.Errorf("vm: unknown scalar op %q", kind))
	}
}
