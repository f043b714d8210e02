package codegen

import (
	"strings"
	"testing"

	"github.com/chazu/ripple/compiler"
	"github.com/chazu/ripple/pkg/bytecode"
)

func samplePD(t *testing.T, opts compiler.Options) (*bytecode.ProjectionData, any) {
	t.Helper()
	head := compiler.NewToken(compiler.KindGet)
	head.Invalidates = true
	head.Paths = []compiler.PathPair{{Path: []compiler.Node{compiler.NewToken(compiler.KindRoot), "a"}}}
	g := &compiler.Graph{
		TopLevels: []compiler.TopLevel{
			{Name: "sum", Expr: compiler.ExprT(head, "a", compiler.Expr(compiler.KindRoot))},
		},
		Setters: []compiler.Setter{
			{Name: "setA", Expr: compiler.Expr(compiler.KindSetter, "a")},
		},
	}
	a, err := compiler.Compile(g, opts)
	if err != nil {
		t.Fatal(err)
	}
	pd, err := bytecode.Pack(a)
	if err != nil {
		t.Fatal(err)
	}
	return pd, a.AST
}

func TestGenerateModule(t *testing.T) {
	pd, _ := samplePD(t, compiler.Options{})
	src, err := Generate(pd, Options{Name: "Todos", Package: "todos", Format: FormatModule})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"// Code generated by ripple. DO NOT EDIT.",
		"package todos",
		"var TodosData = &bytecode.ProjectionData{",
		"func Todos(model any, opts ...vm.Option)",
		`vm.WithDebug(false)`,
		"type TodosInstance struct",
		"func NewTodos(model any",
		`i.Get("sum")`,
		`i.Call("setA", args...)`,
		"func (i TodosInstance) Sum() any",
		"func (i TodosInstance) SetA(args ...any) error",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated module missing %q\n%s", want, src)
		}
	}
	if strings.Contains(src, "$") {
		t.Fatal("unfilled placeholder left in generated module")
	}
}

func TestGenerateFactory(t *testing.T) {
	pd, _ := samplePD(t, compiler.Options{})
	src, err := Generate(pd, Options{Name: "Inline", Format: FormatFactory})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(src, "func(model any, opts ...vm.Option)") {
		t.Fatalf("factory does not start with a function literal:\n%s", src)
	}
	if strings.Contains(src, "package ") {
		t.Fatal("factory format emitted a package clause")
	}
}

func TestGenerateDebugEmbedsAST(t *testing.T) {
	pd, ast := samplePD(t, compiler.Options{Debug: true})
	src, err := Generate(pd, Options{Name: "D", Format: FormatModule, Debug: true, AST: ast})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, "vm.WithAST(") {
		t.Fatal("debug module does not embed the AST")
	}
	if !strings.Contains(src, "vm.WithDebug(true)") {
		t.Fatal("debug module does not arm debug mode")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	pd, _ := samplePD(t, compiler.Options{})
	a, err := Generate(pd, Options{Name: "X", Format: FormatModule})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(pd, Options{Name: "X", Format: FormatModule})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("generation is not deterministic")
	}
}

func TestExportName(t *testing.T) {
	cases := map[string]string{
		"sum":        "Sum",
		"setA":       "SetA",
		"set-item":   "SetItem",
		"total_sum":  "TotalSum",
		"9lives":     "X9lives",
		"":           "X",
	}
	for in, want := range cases {
		if got := exportName(in); got != want {
			t.Errorf("exportName(%q) = %q, want %q", in, got, want)
		}
	}
}
