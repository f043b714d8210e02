package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Expression model: tokens, expressions, graphs
// ---------------------------------------------------------------------------

// Kind identifies a token's operator or atom role.
type Kind string

const (
	// Model access
	KindGet      Kind = "get"
	KindTopLevel Kind = "topLevel"
	KindContext  Kind = "context"
	KindRoot     Kind = "root"
	KindKey      Kind = "key"
	KindVal      Kind = "val"

	// Diagnostics
	KindTrace Kind = "trace"

	// Control
	KindAnd     Kind = "and"
	KindOr      Kind = "or"
	KindTernary Kind = "ternary"
	KindNot     Kind = "not"
	KindRange   Kind = "range"
	KindQuote   Kind = "quote"
	KindFunc    Kind = "func"

	// Comparison
	KindEq    Kind = "eq"
	KindNotEq Kind = "notEq"
	KindGt    Kind = "gt"
	KindGte   Kind = "gte"
	KindLt    Kind = "lt"
	KindLte   Kind = "lte"

	// Arithmetic
	KindPlus  Kind = "plus"
	KindMinus Kind = "minus"
	KindMult  Kind = "mult"
	KindDiv   Kind = "div"
	KindMod   Kind = "mod"

	// Collection combinators
	KindMapValues          Kind = "mapValues"
	KindFilterBy           Kind = "filterBy"
	KindGroupBy            Kind = "groupBy"
	KindMapKeys            Kind = "mapKeys"
	KindMap                Kind = "map"
	KindAny                Kind = "any"
	KindFilter             Kind = "filter"
	KindAnyValues          Kind = "anyValues"
	KindKeyBy              Kind = "keyBy"
	KindRecursiveMap       Kind = "recursiveMap"
	KindRecursiveMapValues Kind = "recursiveMapValues"

	// Scalar collection operations
	KindKeys     Kind = "keys"
	KindValues   Kind = "values"
	KindAssign   Kind = "assign"
	KindSize     Kind = "size"
	KindDefaults Kind = "defaults"
	KindSum      Kind = "sum"
	KindFlatten  Kind = "flatten"

	// Setter shapes
	KindSetter Kind = "setter"
	KindSplice Kind = "splice"
	KindPush   Kind = "push"
)

// ArgKind returns the synthetic kind bound to positional setter argument n.
func ArgKind(n int) Kind {
	return Kind(fmt.Sprintf("arg%d", n))
}

// InlineCeiling bounds the integers representable inline inside a packed
// reference. Non-negative integers below the ceiling bypass the primitives
// table entirely.
const InlineCeiling = 1 << 24

// Token is an atom of the expression language. A Token either heads an
// Expression (as its operator) or appears bare as an argument marker
// (root, key, val, context, topLevel, argN).
type Token struct {
	Kind        Kind
	Source      string // "file:line:col", empty when unknown
	Tracked     bool   // memoize this node by identity
	Invalidates bool
	ID          int64      // identity for tracked nodes, 0 when untracked
	Paths       []PathPair // invalidation contributions, in declaration order
}

// PathPair associates a condition expression with the model path it
// invalidates when the condition is truthy.
//
// The surface language exposes this as a map; it is carried here as an
// ordered slice so that compilation is deterministic.
type PathPair struct {
	Condition Node
	Path      []Node // steps; the first identifies a model root
}

// NewToken returns a bare token of the given kind.
func NewToken(kind Kind) Token {
	return Token{Kind: kind}
}

// Expression is an operator token applied to an ordered argument list.
type Expression struct {
	Head Token
	Args []Node
}

// Node is a Token, *Expression, or a scalar literal (nil, bool, int,
// int64, float64, string) or opaque plain data (map[string]any, []any).
type Node any

// Expr builds an expression headed by a bare token of the given kind.
func Expr(kind Kind, args ...Node) *Expression {
	return &Expression{Head: NewToken(kind), Args: args}
}

// ExprT builds an expression headed by the given token.
func ExprT(head Token, args ...Node) *Expression {
	return &Expression{Head: head, Args: args}
}

// TopLevel is a named derived value exported on the instance surface.
// An empty name marks an internal derivation hidden from the surface.
type TopLevel struct {
	Name string
	Expr Node
}

// Setter is a named mutation recipe. Expr must be headed by one of the
// setter kinds (setter, splice, push) with the target path as arguments.
type Setter struct {
	Name string
	Expr *Expression
}

// Graph is the compiler's input: the frozen expression graph produced by
// the surface front end.
type Graph struct {
	TopLevels []TopLevel
	Setters   []Setter
}

// Options controls a compile invocation.
type Options struct {
	// Debug embeds sources and the AST, and arms runtime type checks in the
	// produced envelope.
	Debug bool

	// TypeCheck is recorded in the Artifact's options only. Neither envelope
	// back end carries it, so it does not arm runtime operand checks; an
	// instance arms them through debug mode or vm.WithTypeCheck.
	TypeCheck bool

	// Name is the instance-factory name used by the template back end.
	Name string

	// Format selects the textual envelope shape (codegen back end).
	Format string
}
