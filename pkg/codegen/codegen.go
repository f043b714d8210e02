// Package codegen generates Go source envelopes from packed projection
// tables. A fixed runtime template is filled with the tables rendered as a
// literal constant plus bindings for the factory name, debug mode, setter
// wrappers, and the optional embedded AST.
package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/ripple/pkg/bytecode"
)

const (
	bytecodePkg = "github.com/chazu/ripple/pkg/bytecode"
	vmPkg       = "github.com/chazu/ripple/vm"
)

// Format selects the textual envelope shape.
type Format string

const (
	// FormatModule emits a complete package exporting the factory under
	// the chosen name.
	FormatModule Format = "module"

	// FormatFactory emits a self-contained factory expression.
	FormatFactory Format = "factory"
)

// Options controls envelope generation.
type Options struct {
	Name    string // factory name, defaults to "Instance"
	Package string // package clause for FormatModule, defaults to "main"
	Format  Format
	Debug   bool
	AST     any // embedded when Debug is set
}

// moduleTemplate is the fixed runtime envelope. Placeholders are filled
// with rendered snippets; the runtime itself lives in the vm package and
// is linked, not inlined.
const moduleTemplate = `// Code generated by ripple. DO NOT EDIT.

package $PACKAGE

import (
	"github.com/chazu/ripple/pkg/bytecode"
	"github.com/chazu/ripple/vm"
)

// $NAMEData is the packed projection table set consumed by $NAME.
var $NAMEData = $PROJECTION_DATA

// $NAME builds a reactive instance over model. Derived values settle
// before it returns; setters keep them consistent afterwards.
func $NAME(model any, opts ...vm.Option) (*vm.Instance, error) {
	base := []vm.Option{vm.WithName("$NAME"), vm.WithDebug($DEBUG_MODE)$AST}
	return vm.NewInstance($NAMEData, model, append(base, opts...)...)
}
$SETTERS`

const factoryTemplate = `func(model any, opts ...vm.Option) (*vm.Instance, error) {
	base := []vm.Option{vm.WithName("$NAME"), vm.WithDebug($DEBUG_MODE)$AST}
	return vm.NewInstance($PROJECTION_DATA, model, append(base, opts...)...)
}`

// Generate fills the envelope template for the requested format.
func Generate(pd *bytecode.ProjectionData, opts Options) (string, error) {
	name := opts.Name
	if name == "" {
		name = "Instance"
	}
	pkg := opts.Package
	if pkg == "" {
		pkg = "main"
	}

	data, err := render(dataLiteral(pd))
	if err != nil {
		return "", err
	}

	astBinding := ""
	if opts.Debug && opts.AST != nil {
		astLit, err := render(valueLiteral(opts.AST))
		if err != nil {
			return "", err
		}
		astBinding = ", vm.WithAST(" + astLit + ")"
	}

	template := moduleTemplate
	setters := ""
	if opts.Format == FormatFactory {
		template = factoryTemplate
	} else {
		setters, err = renderBindings(pd, name)
		if err != nil {
			return "", err
		}
	}

	return strings.NewReplacer(
		"$PACKAGE", pkg,
		"$PROJECTION_DATA", data,
		"$DEBUG_MODE", fmt.Sprintf("%t", opts.Debug),
		"$AST", astBinding,
		"$SETTERS", setters,
		"$NAME", name,
	).Replace(template), nil
}

func render(code jen.Code) (string, error) {
	var b strings.Builder
	if err := jen.Add(code).Render(&b); err != nil {
		return "", fmt.Errorf("codegen: render: %w", err)
	}
	return b.String(), nil
}

// renderBindings generates the typed wrapper: a struct embedding the
// instance with one method per exported top-level and per setter.
func renderBindings(pd *bytecode.ProjectionData, name string) (string, error) {
	wrapper := name + "Instance"

	stmts := []jen.Code{
		jen.Commentf("%s wraps the instance with typed accessors.", wrapper).Line().
			Type().Id(wrapper).Struct(jen.Op("*").Qual(vmPkg, "Instance")),
	}

	stmts = append(stmts,
		jen.Commentf("New%s builds a wrapped instance over model.", name).Line().
			Func().Id("New"+name).
			Params(jen.Id("model").Id("any"), jen.Id("opts").Op("...").Qual(vmPkg, "Option")).
			Params(jen.Id(wrapper), jen.Id("error")).
			Block(
				jen.List(jen.Id("inst"), jen.Id("err")).Op(":=").Id(name).Call(jen.Id("model"), jen.Id("opts").Op("...")),
				jen.Return(jen.Id(wrapper).Values(jen.Id("inst")), jen.Id("err")),
			))

	for _, nameIdx := range pd.TopLevelNames {
		if nameIdx < 0 {
			continue
		}
		top, ok := pd.Primitives[nameIdx].(string)
		if !ok {
			continue
		}
		stmts = append(stmts,
			jen.Func().Params(jen.Id("i").Id(wrapper)).Id(exportName(top)).
				Params().Id("any").
				Block(jen.Return(jen.Id("i").Dot("Get").Call(jen.Lit(top)))))
	}

	for _, row := range pd.Setters {
		setter, ok := pd.Primitives[row[bytecode.SetterName].Payload()].(string)
		if !ok {
			continue
		}
		stmts = append(stmts,
			jen.Func().Params(jen.Id("i").Id(wrapper)).Id(exportName(setter)).
				Params(jen.Id("args").Op("...").Id("any")).Id("error").
				Block(jen.Return(jen.Id("i").Dot("Call").Call(jen.Lit(setter), jen.Id("args").Op("...")))))
	}

	var b strings.Builder
	for _, s := range stmts {
		code, err := render(s)
		if err != nil {
			return "", err
		}
		b.WriteString("\n")
		b.WriteString(code)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// exportName turns a surface name into an exported Go identifier.
func exportName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	if b.Len() == 0 {
		return "X"
	}
	out := b.String()
	if out[0] >= '0' && out[0] <= '9' {
		return "X" + out
	}
	return out
}

// dataLiteral renders ProjectionData as a Go composite literal.
func dataLiteral(pd *bytecode.ProjectionData) jen.Code {
	return jen.Op("&").Qual(bytecodePkg, "ProjectionData").Values(jen.Dict{
		jen.Id("Getters"):             refRows(pd.Getters),
		jen.Id("Primitives"):          anySlice(pd.Primitives),
		jen.Id("TopLevelNames"):       int32Slice(pd.TopLevelNames),
		jen.Id("TopLevelProjections"): refSlice(pd.TopLevelProjections),
		jen.Id("MetaData"):            uint32Rows(pd.MetaData),
		jen.Id("Paths"):               refRows(pd.Paths),
		jen.Id("Setters"):             refRows(pd.Setters),
		jen.Id("Sources"):             stringSlice(pd.Sources),
	})
}

func refRows(rows [][]bytecode.Ref) jen.Code {
	return jen.Index().Index().Qual(bytecodePkg, "Ref").ValuesFunc(func(g *jen.Group) {
		for _, row := range rows {
			g.ValuesFunc(func(rg *jen.Group) {
				for _, r := range row {
					rg.Lit(int(r))
				}
			})
		}
	})
}

func refSlice(refs []bytecode.Ref) jen.Code {
	return jen.Index().Qual(bytecodePkg, "Ref").ValuesFunc(func(g *jen.Group) {
		for _, r := range refs {
			g.Lit(int(r))
		}
	})
}

func uint32Rows(rows [][]uint32) jen.Code {
	return jen.Index().Index().Uint32().ValuesFunc(func(g *jen.Group) {
		for _, row := range rows {
			g.ValuesFunc(func(rg *jen.Group) {
				for _, v := range row {
					rg.Lit(int(v))
				}
			})
		}
	})
}

func int32Slice(vals []int32) jen.Code {
	return jen.Index().Int32().ValuesFunc(func(g *jen.Group) {
		for _, v := range vals {
			g.Lit(int(v))
		}
	})
}

func stringSlice(vals []string) jen.Code {
	return jen.Index().String().ValuesFunc(func(g *jen.Group) {
		for _, v := range vals {
			g.Lit(v)
		}
	})
}

func anySlice(vals []any) jen.Code {
	return jen.Index().Id("any").ValuesFunc(func(g *jen.Group) {
		for _, v := range vals {
			g.Add(valueLiteral(v))
		}
	})
}

// valueLiteral renders a JSON-like value, preserving its runtime type:
// floats and wide integers carry explicit conversions so that the loaded
// literal is indistinguishable from an unmarshalled envelope.
func valueLiteral(v any) jen.Code {
	switch n := v.(type) {
	case nil:
		return jen.Nil()
	case bool, string, int:
		return jen.Lit(n)
	case int64:
		return jen.Int64().Call(jen.Lit(int(n)))
	case float64:
		return jen.Float64().Call(jen.Lit(n))
	case []any:
		return jen.Index().Id("any").ValuesFunc(func(g *jen.Group) {
			for _, el := range n {
				g.Add(valueLiteral(el))
			}
		})
	case map[string]any:
		return jen.Map(jen.String()).Id("any").ValuesFunc(func(g *jen.Group) {
			for _, k := range sortedKeys(n) {
				g.Add(jen.Lit(k).Op(":").Add(valueLiteral(n[k])))
			}
		})
	default:
		return jen.Lit(fmt.Sprintf("%v", v))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
