package vm

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/chazu/ripple/compiler"
	"github.com/chazu/ripple/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Graph helpers mirroring the surface front end's output shape
// ---------------------------------------------------------------------------

func rootExpr() *compiler.Expression { return compiler.Expr(compiler.KindRoot) }

func getRoot(key string) *compiler.Expression {
	head := compiler.NewToken(compiler.KindGet)
	head.Invalidates = true
	head.Paths = []compiler.PathPair{{Path: []compiler.Node{compiler.NewToken(compiler.KindRoot), key}}}
	return compiler.ExprT(head, key, rootExpr())
}

func getRootAt(source string, key string) *compiler.Expression {
	e := getRoot(key)
	e.Head.Source = source
	return e
}

func setterFor(name string, kind compiler.Kind, steps ...compiler.Node) compiler.Setter {
	return compiler.Setter{Name: name, Expr: compiler.Expr(kind, steps...)}
}

func build(t *testing.T, g *compiler.Graph, opts compiler.Options) *bytecode.ProjectionData {
	t.Helper()
	a, err := compiler.Compile(g, opts)
	if err != nil {
		t.Fatal(err)
	}
	pd, err := bytecode.Pack(a)
	if err != nil {
		t.Fatal(err)
	}
	return pd
}

func sumGraph() *compiler.Graph {
	return &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "sum", Expr: compiler.Expr(compiler.KindPlus, getRoot("a"), getRoot("b"))},
		},
		Setters: []compiler.Setter{
			setterFor("setA", compiler.KindSetter, "a"),
			setterFor("setB", compiler.KindSetter, "b"),
		},
	}
}

func sumModel() map[string]any {
	return map[string]any{"a": 1.0, "b": 2.0}
}

// ---------------------------------------------------------------------------
// Scenario A: simple derivation
// ---------------------------------------------------------------------------

func TestSimpleDerivation(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})

	settles := 0
	in, err := NewInstance(pd, sumModel(), WithListener(func() { settles++ }))
	if err != nil {
		t.Fatal(err)
	}

	if got := in.Get("sum"); got != 3.0 {
		t.Fatalf("sum = %v, want 3", got)
	}
	if settles != 1 {
		t.Fatalf("settles after construction = %d, want 1", settles)
	}

	if err := in.Call("setA", 5.0); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("sum"); got != 7.0 {
		t.Fatalf("sum after setA = %v, want 7", got)
	}
	if settles != 2 {
		t.Fatalf("settles after setA = %d, want 2", settles)
	}
}

// ---------------------------------------------------------------------------
// Scenario B: batching
// ---------------------------------------------------------------------------

func TestBatching(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})

	settles := 0
	in, err := NewInstance(pd, sumModel(), WithListener(func() { settles++ }))
	if err != nil {
		t.Fatal(err)
	}
	settles = 0

	err = in.RunInBatch(func() {
		in.Call("setA", 10.0)
		in.Call("setB", 20.0)
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("sum"); got != 30.0 {
		t.Fatalf("sum after batch = %v, want 30", got)
	}
	if settles != 1 {
		t.Fatalf("settles for batch = %d, want 1", settles)
	}
}

// ---------------------------------------------------------------------------
// Scenario C: splice and push
// ---------------------------------------------------------------------------

func listGraph() *compiler.Graph {
	return &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "total", Expr: compiler.Expr(compiler.KindSum, getRoot("list"))},
		},
		Setters: []compiler.Setter{
			setterFor("push", compiler.KindPush, "list"),
			setterFor("splice", compiler.KindSplice, "list"),
		},
	}
}

func TestSpliceAndPush(t *testing.T) {
	pd := build(t, listGraph(), compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"list": []any{1.0, 2.0, 3.0}})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("total"); got != 6.0 {
		t.Fatalf("total = %v, want 6", got)
	}

	if err := in.Call("push", 4.0); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("total"); got != 10.0 {
		t.Fatalf("total after push = %v, want 10", got)
	}

	if err := in.Call("splice", 1, 2); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("total"); got != 5.0 {
		t.Fatalf("total after splice = %v, want 5", got)
	}
}

func TestSpliceInserts(t *testing.T) {
	pd := build(t, listGraph(), compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"list": []any{1.0, 4.0}})
	if err != nil {
		t.Fatal(err)
	}
	if err := in.Call("splice", 1, 0, 2.0, 3.0); err != nil {
		t.Fatal(err)
	}
	want := []any{1.0, 2.0, 3.0, 4.0}
	if got := in.Model().(map[string]any)["list"]; !reflect.DeepEqual(got, want) {
		t.Fatalf("list = %v, want %v", got, want)
	}
	if got := in.Get("total"); got != 10.0 {
		t.Fatalf("total = %v, want 10", got)
	}
}

// ---------------------------------------------------------------------------
// Scenario D: recursive traversal
// ---------------------------------------------------------------------------

func TestRecursiveMapValues(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "reach", Expr: compiler.Expr(compiler.KindRecursiveMapValues, "reachable", getRoot("tree"))},
		},
		Setters: []compiler.Setter{
			setterFor("setNode", compiler.KindSetter, "tree", compiler.NewToken(compiler.KindKey)),
		},
	}
	pd := build(t, g, compiler.Options{})

	calls := map[string]int{}
	lib := map[string]any{
		"reachable": RecFunc(func(v, k, _ any, loop func(any) any) any {
			calls[k.(string)]++
			children := v.([]any)
			out := append([]any{}, children...)
			for _, c := range children {
				if sub, ok := loop(c).([]any); ok {
					out = append(out, sub...)
				}
			}
			return out
		}),
	}

	model := map[string]any{"tree": map[string]any{
		"a": []any{"b"},
		"b": []any{"c"},
		"c": []any{},
	}}
	in, err := NewInstance(pd, model, WithFuncLib(lib))
	if err != nil {
		t.Fatal(err)
	}

	reach := in.Get("reach").(map[string]any)
	if got := reach["a"]; !reflect.DeepEqual(got, []any{"b", "c"}) {
		t.Fatalf("reach.a = %v, want [b c]", got)
	}
	for k, n := range calls {
		if n != 1 {
			t.Errorf("key %q computed %d times, want 1", k, n)
		}
	}
}

func TestRecursiveSelfReferenceYieldsPartial(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "out", Expr: compiler.Expr(compiler.KindRecursiveMapValues, "cycle", getRoot("tree"))},
		},
		Setters: []compiler.Setter{setterFor("set", compiler.KindSetter, "tree")},
	}
	pd := build(t, g, compiler.Options{})

	lib := map[string]any{
		"cycle": RecFunc(func(v, k, _ any, loop func(any) any) any {
			// a -> b -> a: the inner loop("a") observes the partial value.
			other := "a"
			if k == "a" {
				other = "b"
			}
			return []any{k, loop(other)}
		}),
	}
	model := map[string]any{"tree": map[string]any{"a": nil, "b": nil}}
	in, err := NewInstance(pd, model, WithFuncLib(lib))
	if err != nil {
		t.Fatal(err)
	}
	out := in.Get("out").(map[string]any)
	a := out["a"].([]any)
	b := a[1].([]any)
	if b[1] != nil {
		t.Fatalf("cyclic loop returned %v, want the nil partial value", b[1])
	}
}

// ---------------------------------------------------------------------------
// Scenario E: invalidation filtering
// ---------------------------------------------------------------------------

func TestUnrelatedWriteDoesNotRecompute(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "ys", Expr: compiler.Expr(compiler.KindMapValues, "double", getRoot("y"))},
		},
		Setters: []compiler.Setter{
			setterFor("setX", compiler.KindSetter, "x"),
			setterFor("setY", compiler.KindSetter, "y"),
		},
	}
	pd := build(t, g, compiler.Options{})

	evals := 0
	lib := map[string]any{
		"double": Func(func(v, _, _ any) any {
			evals++
			return v.(float64) * 2
		}),
	}
	model := map[string]any{
		"x": 1.0,
		"y": map[string]any{"n": 3.0},
	}
	in, err := NewInstance(pd, model, WithFuncLib(lib))
	if err != nil {
		t.Fatal(err)
	}
	if evals != 1 {
		t.Fatalf("initial evals = %d, want 1", evals)
	}

	if err := in.Call("setX", 9.0); err != nil {
		t.Fatal(err)
	}
	if evals != 1 {
		t.Fatalf("evals after unrelated write = %d, want 1", evals)
	}

	if err := in.Call("setY", map[string]any{"n": 5.0}); err != nil {
		t.Fatal(err)
	}
	if evals != 2 {
		t.Fatalf("evals after related write = %d, want 2", evals)
	}
	if got := in.Get("ys").(map[string]any)["n"]; got != 10.0 {
		t.Fatalf("ys.n = %v, want 10", got)
	}
}

// ---------------------------------------------------------------------------
// Scenario F: debug type error
// ---------------------------------------------------------------------------

func doubleGraph() *compiler.Graph {
	return &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "double", Expr: compiler.ExprT(func() compiler.Token {
				tok := compiler.NewToken(compiler.KindMult)
				tok.Source = "model.js:4:12"
				return tok
			}(), getRootAt("model.js:4:3", "x"), 2)},
		},
		Setters: []compiler.Setter{setterFor("setX", compiler.KindSetter, "x")},
	}
}

func TestDebugTypeError(t *testing.T) {
	pd := build(t, doubleGraph(), compiler.Options{Debug: true})
	in, err := NewInstance(pd, map[string]any{"x": 3.0}, WithDebug(true))
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("double"); got != 6.0 {
		t.Fatalf("double = %v, want 6", got)
	}

	err = in.Call("setX", "hi")
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("setX error = %v, want TypeError", err)
	}
	if te.Op != "mult" {
		t.Fatalf("TypeError op = %q, want mult", te.Op)
	}
	if te.Source != "model.js:4:12" {
		t.Fatalf("TypeError source = %q, want model.js:4:12", te.Source)
	}
}

func TestNonDebugSkipsTypeCheck(t *testing.T) {
	pd := build(t, doubleGraph(), compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"x": 3.0})
	if err != nil {
		t.Fatal(err)
	}
	if err := in.Call("setX", "hi"); err != nil {
		t.Fatalf("non-debug setX failed: %v", err)
	}
	got, ok := in.Get("double").(float64)
	if !ok || !math.IsNaN(got) {
		t.Fatalf("double = %v, want NaN", in.Get("double"))
	}
}

// ---------------------------------------------------------------------------
// Listeners, batching strategy, state machine
// ---------------------------------------------------------------------------

func TestRemoveListener(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})
	in, err := NewInstance(pd, sumModel())
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	id := in.AddListener(func() { count++ })
	in.Call("setA", 2.0)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	in.RemoveListener(id)
	in.Call("setA", 3.0)
	if count != 1 {
		t.Fatalf("count after removal = %d, want 1", count)
	}
}

func TestListenerSettersAreDrained(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})
	in, err := NewInstance(pd, sumModel())
	if err != nil {
		t.Fatal(err)
	}

	bumped := false
	in.AddListener(func() {
		if !bumped {
			bumped = true
			in.Call("setB", 40.0)
		}
	})

	if err := in.Call("setA", 2.0); err != nil {
		t.Fatal(err)
	}
	// The nested setter was queued and drained before Call returned.
	if got := in.Get("sum"); got != 42.0 {
		t.Fatalf("sum = %v, want 42", got)
	}
}

func TestBatchingStrategy(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})

	invocations := 0
	in, err := NewInstance(pd, sumModel(), WithBatchingStrategy(func(i *Instance) {
		invocations++
	}))
	if err != nil {
		t.Fatal(err)
	}

	in.Call("setA", 10.0)
	in.Call("setB", 20.0)
	if invocations != 1 {
		t.Fatalf("strategy invocations = %d, want 1", invocations)
	}
	if got := in.Get("sum"); got != 3.0 {
		t.Fatalf("sum before EndBatch = %v, want stale 3", got)
	}

	if err := in.EndBatch(); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("sum"); got != 30.0 {
		t.Fatalf("sum after EndBatch = %v, want 30", got)
	}
}

// ---------------------------------------------------------------------------
// Universal properties
// ---------------------------------------------------------------------------

// Final values depend only on the applied setters, not on batching
// boundaries.
func TestReferentialTransparency(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})

	direct, err := NewInstance(pd, sumModel())
	if err != nil {
		t.Fatal(err)
	}
	direct.Call("setA", 10.0)
	direct.Call("setB", 20.0)

	batched, err := NewInstance(pd, sumModel())
	if err != nil {
		t.Fatal(err)
	}
	batched.RunInBatch(func() {
		batched.Call("setA", 10.0)
		batched.Call("setB", 20.0)
	})

	if direct.Get("sum") != batched.Get("sum") {
		t.Fatalf("batching changed the result: %v vs %v", direct.Get("sum"), batched.Get("sum"))
	}
}

// Between two consecutive settles each dirty projection evaluates at most
// once.
func TestAtMostOneRecomputePerSettle(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "doubled", Expr: compiler.Expr(compiler.KindMap, "double", getRoot("list"))},
		},
		Setters: []compiler.Setter{
			setterFor("setList", compiler.KindSetter, "list"),
		},
	}
	pd := build(t, g, compiler.Options{})

	evals := 0
	lib := map[string]any{
		"double": Func(func(v, _, _ any) any {
			evals++
			return v.(float64) * 2
		}),
	}
	in, err := NewInstance(pd, map[string]any{"list": []any{1.0}}, WithFuncLib(lib))
	if err != nil {
		t.Fatal(err)
	}
	evals = 0

	err = in.RunInBatch(func() {
		in.Call("setList", []any{2.0})
		in.Call("setList", []any{3.0})
	})
	if err != nil {
		t.Fatal(err)
	}
	if evals != 1 {
		t.Fatalf("map body evaluated %d times in one settle, want 1", evals)
	}
}

func TestRecalculationDivergence(t *testing.T) {
	// A projection that watches its own top-level and never stabilizes.
	head := compiler.NewToken(compiler.KindMapValues)
	head.Invalidates = true
	head.Paths = []compiler.PathPair{{Path: []compiler.Node{compiler.NewToken(compiler.KindTopLevel), "tick"}}}
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "tick", Expr: compiler.ExprT(head, "bump", getRoot("obj"))},
		},
		Setters: []compiler.Setter{setterFor("set", compiler.KindSetter, "obj")},
	}
	pd := build(t, g, compiler.Options{})

	n := 0.0
	lib := map[string]any{
		"bump": Func(func(_, _, _ any) any {
			n++
			return n
		}),
	}
	_, err := NewInstance(pd, map[string]any{"obj": map[string]any{"k": 0.0}}, WithFuncLib(lib))
	var rd *RecalculationDivergenceError
	if !errors.As(err, &rd) {
		t.Fatalf("error = %v, want RecalculationDivergenceError", err)
	}
}

func TestUndefinedFunction(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "out", Expr: compiler.Expr(compiler.KindMapValues, "nope", getRoot("obj"))},
		},
		Setters: []compiler.Setter{setterFor("set", compiler.KindSetter, "obj")},
	}
	pd := build(t, g, compiler.Options{Debug: true})

	_, err := NewInstance(pd, map[string]any{"obj": map[string]any{"k": 1.0}}, WithDebug(true))
	var uf *UndefinedFunctionError
	if !errors.As(err, &uf) {
		t.Fatalf("error = %v, want UndefinedFunctionError", err)
	}
	if uf.Name != "nope" {
		t.Fatalf("missing function name = %q, want nope", uf.Name)
	}
}

// ---------------------------------------------------------------------------
// Operators and combinators
// ---------------------------------------------------------------------------

func TestOperatorEvaluation(t *testing.T) {
	lib := map[string]any{
		"isEven": Func(func(v, _, _ any) any {
			return math.Mod(v.(float64), 2) == 0
		}),
		"key": Func(func(_, k, _ any) any { return k }),
	}
	model := map[string]any{
		"nums":  []any{1.0, 2.0, 3.0, 4.0},
		"obj":   map[string]any{"a": 1.0, "b": 2.0},
		"other": map[string]any{"b": 9.0, "c": 3.0},
		"deep":  []any{[]any{1.0}, []any{2.0, 3.0}},
	}

	cases := []struct {
		name string
		expr compiler.Node
		want any
	}{
		{"ternary", compiler.Expr(compiler.KindTernary, true, 1, 2), 1},
		{"and short-circuit", compiler.Expr(compiler.KindAnd, false, "unreached"), false},
		{"or", compiler.Expr(compiler.KindOr, nil, "fallback"), "fallback"},
		{"not", compiler.Expr(compiler.KindNot, nil), true},
		{"eq", compiler.Expr(compiler.KindEq, 2, 2.0), true},
		{"lt", compiler.Expr(compiler.KindLt, 1, 2), true},
		{"minus", compiler.Expr(compiler.KindMinus, 5, 2), 3.0},
		{"div", compiler.Expr(compiler.KindDiv, 9, 2), 4.5},
		{"mod", compiler.Expr(compiler.KindMod, 9, 2), 1.0},
		{"range", compiler.Expr(compiler.KindRange, 4), []any{0.0, 1.0, 2.0, 3.0}},
		{"range stepped", compiler.Expr(compiler.KindRange, 10, 4, 3), []any{4.0, 7.0}},
		{"size", compiler.Expr(compiler.KindSize, getRoot("nums")), 4.0},
		{"sum", compiler.Expr(compiler.KindSum, getRoot("nums")), 10.0},
		{"keys", compiler.Expr(compiler.KindKeys, getRoot("obj")), []any{"a", "b"}},
		{"values", compiler.Expr(compiler.KindValues, getRoot("obj")), []any{1.0, 2.0}},
		{"flatten", compiler.Expr(compiler.KindFlatten, getRoot("deep")), []any{1.0, 2.0, 3.0}},
		{"assign", compiler.Expr(compiler.KindAssign,
			compiler.Expr(compiler.KindQuote, []any{
				map[string]any{"a": 1.0}, map[string]any{"a": 2.0, "b": 3.0},
			})), map[string]any{"a": 2.0, "b": 3.0}},
		{"defaults", compiler.Expr(compiler.KindDefaults,
			compiler.Expr(compiler.KindQuote, []any{
				map[string]any{"a": 1.0}, map[string]any{"a": 2.0, "b": 3.0},
			})), map[string]any{"a": 1.0, "b": 3.0}},
		{"filter", compiler.Expr(compiler.KindFilter, "isEven", getRoot("nums")), []any{2.0, 4.0}},
		{"any", compiler.Expr(compiler.KindAny, "isEven", getRoot("nums")), true},
		{"keyBy", compiler.Expr(compiler.KindKeyBy, "key", getRoot("nums")),
			map[string]any{"0": 1.0, "1": 2.0, "2": 3.0, "3": 4.0}},
		{"filterBy", compiler.Expr(compiler.KindFilterBy, "isEven", getRoot("obj")),
			map[string]any{"b": 2.0}},
		{"mapKeys", compiler.Expr(compiler.KindMapKeys, "key", getRoot("obj")),
			map[string]any{"a": 1.0, "b": 2.0}},
		{"anyValues", compiler.Expr(compiler.KindAnyValues, "isEven", getRoot("obj")), true},
		{"groupBy", compiler.Expr(compiler.KindGroupBy, "isEven", getRoot("obj")),
			map[string]any{"false": map[string]any{"a": 1.0}, "true": map[string]any{"b": 2.0}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &compiler.Graph{
				TopLevels: []compiler.TopLevel{{Name: "out", Expr: tc.expr}},
				Setters: []compiler.Setter{
					setterFor("setNums", compiler.KindSetter, "nums"),
					setterFor("setObj", compiler.KindSetter, "obj"),
					setterFor("setOther", compiler.KindSetter, "other"),
					setterFor("setDeep", compiler.KindSetter, "deep"),
				},
			}
			pd := build(t, g, compiler.Options{})
			in, err := NewInstance(pd, model, WithFuncLib(lib))
			if err != nil {
				t.Fatal(err)
			}
			if got := in.Get("out"); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("out = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestFuncProjectionCombinator(t *testing.T) {
	// map with a compiled lambda: val + 1.
	lambda := compiler.Expr(compiler.KindFunc,
		compiler.Expr(compiler.KindPlus, compiler.Expr(compiler.KindVal), 1))
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "inc", Expr: compiler.Expr(compiler.KindMap, lambda, getRoot("nums"))},
		},
		Setters: []compiler.Setter{setterFor("setNums", compiler.KindSetter, "nums")},
	}
	pd := build(t, g, compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"nums": []any{1.0, 2.0}})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("inc"); !reflect.DeepEqual(got, []any{2.0, 3.0}) {
		t.Fatalf("inc = %v, want [2 3]", got)
	}
}

func TestTopLevelDependency(t *testing.T) {
	getTop := func(name string) *compiler.Expression {
		head := compiler.NewToken(compiler.KindGet)
		head.Invalidates = true
		head.Paths = []compiler.PathPair{{Path: []compiler.Node{compiler.NewToken(compiler.KindTopLevel), name}}}
		return compiler.ExprT(head, name, compiler.NewToken(compiler.KindTopLevel))
	}
	g := sumGraph()
	g.TopLevels = append(g.TopLevels, compiler.TopLevel{
		Name: "doubled",
		Expr: compiler.Expr(compiler.KindMult, getTop("sum"), 2),
	})
	pd := build(t, g, compiler.Options{})

	in, err := NewInstance(pd, sumModel())
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("doubled"); got != 6.0 {
		t.Fatalf("doubled = %v, want 6", got)
	}

	if err := in.Call("setA", 5.0); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("doubled"); got != 14.0 {
		t.Fatalf("doubled after setA = %v, want 14", got)
	}
}

func TestTrackedLogicShared(t *testing.T) {
	tracked := compiler.NewToken(compiler.KindTernary)
	tracked.Tracked = true
	tracked.ID = 3
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "pick", Expr: compiler.ExprT(tracked, getRoot("flag"), "yes", "no")},
		},
		Setters: []compiler.Setter{setterFor("setFlag", compiler.KindSetter, "flag")},
	}
	pd := build(t, g, compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"flag": true})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("pick"); got != "yes" {
		t.Fatalf("pick = %v, want yes", got)
	}
	if err := in.Call("setFlag", false); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("pick"); got != "no" {
		t.Fatalf("pick after setFlag = %v, want no", got)
	}
}

func TestInvalidSetterArity(t *testing.T) {
	pd := build(t, sumGraph(), compiler.Options{})
	in, err := NewInstance(pd, sumModel())
	if err != nil {
		t.Fatal(err)
	}

	var ise *InvalidSetterError
	if err := in.Call("setA"); !errors.As(err, &ise) {
		t.Fatalf("arity error = %v, want InvalidSetterError", err)
	}
	if err := in.Call("nope", 1.0); !errors.As(err, &ise) {
		t.Fatalf("unknown setter error = %v, want InvalidSetterError", err)
	}
}

func TestRemoveSentinelDeletesKey(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "n", Expr: compiler.Expr(compiler.KindSize, getRoot("obj"))},
		},
		Setters: []compiler.Setter{
			setterFor("setItem", compiler.KindSetter, "obj", compiler.NewToken(compiler.KindKey)),
		},
	}
	pd := build(t, g, compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"obj": map[string]any{"a": 1.0, "b": 2.0}})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("n"); got != 2.0 {
		t.Fatalf("n = %v, want 2", got)
	}

	if err := in.Call("setItem", "a", Remove); err != nil {
		t.Fatal(err)
	}
	if got := in.Get("n"); got != 1.0 {
		t.Fatalf("n after remove = %v, want 1", got)
	}
}

func TestTrace(t *testing.T) {
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "traced", Expr: compiler.Expr(compiler.KindTrace, getRoot("a"))},
		},
		Setters: []compiler.Setter{setterFor("setA", compiler.KindSetter, "a")},
	}
	pd := build(t, g, compiler.Options{})
	in, err := NewInstance(pd, map[string]any{"a": 5.0})
	if err != nil {
		t.Fatal(err)
	}
	if got := in.Get("traced"); got != 5.0 {
		t.Fatalf("trace changed the value: %v", got)
	}
}
