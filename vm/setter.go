package vm

import (
	"strconv"
	"strings"

	"github.com/chazu/ripple/pkg/bytecode"
)

// Call invokes a named setter with its positional arguments. Inside a batch,
// inside a recalculation, or while a batching strategy is installed the call
// is queued (the strategy runs on the first queued call after a settle);
// otherwise the mutation applies to the model and derived values recompute
// before Call returns.
func (in *Instance) Call(name string, args ...any) (err error) {
	defer recoverError(&err)

	row, ok := in.setterRows[name]
	if !ok {
		return &InvalidSetterError{Name: name, Detail: "unknown setter"}
	}
	in.checkArity(name, row, args)

	if in.inBatch || in.inRecalculate || in.batching != nil {
		in.batchPending = append(in.batchPending, pendingSetter{row: row, args: args})
		if in.batching != nil && !in.inBatch && !in.inRecalculate && !in.strategyArmed {
			in.strategyArmed = true
			in.batching(in)
		}
		return nil
	}

	in.applySetter(row, args)
	in.recalculate()
	return nil
}

func (in *Instance) setterName(row int) string {
	name, _ := in.pd.Primitives[in.pd.Setters[row][bytecode.SetterName].Payload()].(string)
	return name
}

func (in *Instance) setterKind(row int) string {
	kind, _ := in.pd.Primitives[in.pd.Setters[row][bytecode.SetterKind].Payload()].(string)
	return kind
}

func (in *Instance) checkArity(name string, row int, args []any) {
	tokens := in.pd.Setters[row][bytecode.SetterTokens].Payload()
	switch kind := in.setterKind(row); kind {
	case "setter", "push":
		if len(args) != tokens+1 {
			panic(&InvalidSetterError{Name: name,
				Detail: "expected " + strconv.Itoa(tokens+1) + " arguments, got " + strconv.Itoa(len(args))})
		}
	case "splice":
		if len(args) < tokens+2 {
			panic(&InvalidSetterError{Name: name,
				Detail: "expected at least " + strconv.Itoa(tokens+2) + " arguments, got " + strconv.Itoa(len(args))})
		}
	default:
		panic(&InvalidSetterError{Name: name, Detail: "unknown setter kind " + kind})
	}
}

// applySetter performs the queued or direct mutation. The written model
// path feeds invalidation before the caller recomputes.
func (in *Instance) applySetter(row int, args []any) {
	name := in.setterName(row)
	tokens := in.pd.Setters[row][bytecode.SetterTokens].Payload()
	path := in.resolveSetterPath(row, args)

	switch in.setterKind(row) {
	case "setter":
		in.model = setIn(in.model, path, args[tokens], name)
	case "push":
		value := args[tokens]
		in.model = seqIn(in.model, path, name, func(arr []any) []any {
			return append(arr, value)
		})
	case "splice":
		start := toInt(args[tokens])
		deleteCount := toInt(args[tokens+1])
		items := args[tokens+2:]
		in.model = seqIn(in.model, path, name, func(arr []any) []any {
			if start < 0 {
				start = 0
			}
			if start > len(arr) {
				start = len(arr)
			}
			if deleteCount < 0 {
				deleteCount = 0
			}
			if start+deleteCount > len(arr) {
				deleteCount = len(arr) - start
			}
			out := make([]any, 0, len(arr)-deleteCount+len(items))
			out = append(out, arr[:start]...)
			out = append(out, items...)
			return append(out, arr[start+deleteCount:]...)
		})
	}

	in.invalidateForWrite(path)
}

// resolveSetterPath evaluates the compiled step sequence, binding each
// positional argument token to the corresponding call argument.
func (in *Instance) resolveSetterPath(row int, args []any) []any {
	steps := in.pd.Setters[row][bytecode.SetterSteps:]
	path := make([]any, len(steps))
	for i, s := range steps {
		if s.IsPrimitive() {
			if name, ok := in.pd.Primitives[s.Payload()].(string); ok && strings.HasPrefix(name, "arg") {
				if n, err := strconv.Atoi(name[3:]); err == nil && n < len(args) {
					path[i] = args[n]
					continue
				}
			}
		}
		path[i] = in.evalRef(s, nil)
	}
	return path
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func isIndexKey(key any) bool {
	n, ok := toInt64(key)
	return ok && n >= 0
}

// setIn writes value at path under cur, materializing missing intermediate
// containers: an ordered sequence when the next key is a non-negative
// integer, a keyed container otherwise. It returns the (possibly replaced)
// container so sequence growth is visible to the caller.
func setIn(cur any, path []any, value any, name string) any {
	if len(path) == 0 {
		panic(&InvalidSetterError{Name: name, Detail: "empty target path"})
	}
	key := path[0]
	if len(path) == 1 {
		return applySetter(cur, key, value, name)
	}
	child := getFrom(cur, key)
	if !isContainer(child) {
		if isIndexKey(path[1]) {
			child = []any{}
		} else {
			child = map[string]any{}
		}
	}
	child = setIn(child, path[1:], value, name)
	return applySetter(cur, key, child, name)
}

// seqIn applies an ordered-sequence mutation at path under cur,
// materializing the sequence if absent.
func seqIn(cur any, path []any, name string, mutate func([]any) []any) any {
	if len(path) == 0 {
		switch c := cur.(type) {
		case []any:
			return mutate(c)
		case nil:
			return mutate(nil)
		default:
			panic(&InvalidSetterError{Name: name, Detail: "sequence mutation applied to " + typeName(cur)})
		}
	}
	key := path[0]
	child := getFrom(cur, key)
	if !isContainer(child) && child != nil {
		panic(&InvalidSetterError{Name: name, Detail: "sequence mutation applied to " + typeName(child)})
	}
	child = seqIn(child, path[1:], name, mutate)
	return applySetter(cur, key, child, name)
}

// applySetter writes value under key in a container, or removes the key
// entirely when value is the Remove sentinel.
func applySetter(cur any, key, value any, name string) any {
	switch c := cur.(type) {
	case map[string]any:
		if value == Remove {
			delete(c, keyString(key))
		} else {
			c[keyString(key)] = value
		}
		return c

	case []any:
		idx := toInt(key)
		if idx < 0 {
			panic(&InvalidSetterError{Name: name, Detail: "negative sequence index"})
		}
		if value == Remove {
			if idx < len(c) {
				return append(c[:idx], c[idx+1:]...)
			}
			return c
		}
		for idx >= len(c) {
			c = append(c, nil)
		}
		c[idx] = value
		return c

	case nil:
		var next any
		if isIndexKey(key) {
			next = []any{}
		} else {
			next = map[string]any{}
		}
		return applySetter(next, key, value, name)

	default:
		panic(&InvalidSetterError{Name: name, Detail: "write into " + typeName(cur)})
	}
}
