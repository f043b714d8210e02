// Package vm interprets packed projection tables against a live model. An
// Instance keeps its derived top-level values consistent with the model as
// setters mutate it, recomputing only projections whose inputs changed.
package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/ripple/pkg/bytecode"
)

// MaxRecalcPasses bounds the invalidation fixpoint per settle.
const MaxRecalcPasses = 64

// Func is a user function invoked by the collection combinators.
type Func func(value, key, context any) any

// RecFunc is a user function for the recursive combinators. loop resolves
// another key of the same collection, computing it at most once per call.
type RecFunc func(value, key, context any, loop func(key any) any) any

// Remove is the sentinel written by a setter to delete the target key.
var Remove = &struct{ name string }{"ripple.Remove"}

type listenerEntry struct {
	id uuid.UUID
	fn func()
}

type pendingSetter struct {
	row  int
	args []any
}

// topInvalidator records that a projection must be re-examined when the
// top-level at Index changes and Cond holds.
type topInvalidator struct {
	owner int
	index int
	cond  bytecode.Ref
}

// rootInvalidator records a model-rooted invalidation path owned by a
// projection.
type rootInvalidator struct {
	owner int
	cond  bytecode.Ref
	steps []bytecode.Ref
}

// Instance is a reactive view over a model. All methods must be called from
// a single goroutine; the packed tables may be shared between instances but
// the instance state is exclusively owned.
type Instance struct {
	pd    *bytecode.ProjectionData
	model any

	name      string
	debug     bool
	typeCheck bool
	funcLib   map[string]any
	ast       any
	log       commonlog.Logger

	values   []any
	computed []bool

	dependents [][]int
	rootInvs   []rootInvalidator
	topInvs    []topInvalidator

	topValues  []any
	exported   map[string]int
	setterRows map[string]int

	listeners []listenerEntry

	inBatch       bool
	inRecalculate bool
	batchPending  []pendingSetter
	batching      func(*Instance)
	strategyArmed bool

	trackedMemo map[int64]any
}

// Option configures an Instance at construction.
type Option func(*Instance)

// WithFuncLib installs the user function library consulted by the
// collection combinators. Values must be Func or RecFunc.
func WithFuncLib(lib map[string]any) Option {
	return func(in *Instance) { in.funcLib = lib }
}

// WithDebug toggles debug diagnostics: operand type checks and the AST
// accessor. Function library lookups fail with UndefinedFunctionError in
// every mode.
func WithDebug(debug bool) Option {
	return func(in *Instance) { in.debug = debug }
}

// WithTypeCheck arms operand type checks independently of debug mode.
func WithTypeCheck(check bool) Option {
	return func(in *Instance) { in.typeCheck = check }
}

// WithAST embeds the debug AST returned by the AST accessor.
func WithAST(ast any) Option {
	return func(in *Instance) { in.ast = ast }
}

// WithName labels the instance in diagnostics.
func WithName(name string) Option {
	return func(in *Instance) { in.name = name }
}

// WithListener registers a listener before the initial settle, so it
// observes the instance's first consistent state.
func WithListener(fn func()) Option {
	return func(in *Instance) {
		in.listeners = append(in.listeners, listenerEntry{id: uuid.New(), fn: fn})
	}
}

// WithBatchingStrategy installs a deferrer invoked on the first setter call
// after a settled state. Its contract is to call EndBatch eventually.
func WithBatchingStrategy(fn func(*Instance)) Option {
	return func(in *Instance) { in.batching = fn }
}

// NewInstance builds a reactive instance over model and performs the
// initial settle. Listeners registered via WithListener fire once it
// completes.
func NewInstance(pd *bytecode.ProjectionData, model any, opts ...Option) (in *Instance, err error) {
	defer recoverError(&err)

	in = &Instance{
		pd:          pd,
		model:       model,
		log:         commonlog.GetLogger("ripple.vm"),
		values:      make([]any, len(pd.Getters)),
		computed:    make([]bool, len(pd.Getters)),
		topValues:   make([]any, len(pd.TopLevelProjections)),
		exported:    make(map[string]int),
		setterRows:  make(map[string]int),
		trackedMemo: make(map[int64]any),
	}
	for _, opt := range opts {
		opt(in)
	}

	for i, nameIdx := range pd.TopLevelNames {
		if nameIdx < 0 {
			continue
		}
		name, ok := pd.Primitives[nameIdx].(string)
		if !ok {
			return nil, fmt.Errorf("vm: top-level name %d is not a string", i)
		}
		in.exported[name] = i
	}
	for i, row := range pd.Setters {
		name, ok := pd.Primitives[row[bytecode.SetterName].Payload()].(string)
		if !ok {
			return nil, fmt.Errorf("vm: setter %d name is not a string", i)
		}
		in.setterRows[name] = i
	}

	in.buildDependents()
	in.buildInvalidators()

	if in.debug {
		in.log.Debugf("instance %s: %d projections, %d top-levels, %d setters",
			in.name, len(pd.Getters), len(pd.TopLevelProjections), len(pd.Setters))
	}

	in.recalculate()
	return in, nil
}

// buildDependents reverses the projection argument edges, so invalidation
// can propagate from a projection to everything consuming it.
func (in *Instance) buildDependents() {
	in.dependents = make([][]int, len(in.pd.Getters))
	for j, row := range in.pd.Getters {
		for _, r := range row[bytecode.GetterArgs:] {
			if r.IsProjection() {
				i := r.Payload()
				in.dependents[i] = append(in.dependents[i], j)
			}
		}
	}
}

// buildInvalidators indexes every non-empty metadata record by the root of
// each of its paths.
func (in *Instance) buildInvalidators() {
	for j, row := range in.pd.Getters {
		metaRow := in.pd.MetaData[row[bytecode.GetterMeta].Payload()]
		for _, pathIdx := range metaRow[1:] {
			path := in.pd.Paths[pathIdx]
			cond, steps := path[0], path[1:]
			if len(steps) == 0 {
				continue
			}
			if !steps[0].IsPrimitive() {
				continue
			}
			root, _ := in.pd.Primitives[steps[0].Payload()].(string)
			switch root {
			case "root":
				in.rootInvs = append(in.rootInvs, rootInvalidator{owner: j, cond: cond, steps: steps[1:]})
			case "topLevel":
				if len(steps) >= 2 && steps[1].IsInline() {
					in.topInvs = append(in.topInvs, topInvalidator{owner: j, index: steps[1].Payload(), cond: cond})
				}
			}
		}
	}
}

// Get returns the current value of a named top-level projection.
func (in *Instance) Get(name string) any {
	idx, ok := in.exported[name]
	if !ok {
		return nil
	}
	return in.topValues[idx]
}

// Names returns the exported top-level names in declaration order.
func (in *Instance) Names() []string {
	out := make([]string, 0, len(in.exported))
	for _, nameIdx := range in.pd.TopLevelNames {
		if nameIdx < 0 {
			continue
		}
		out = append(out, in.pd.Primitives[nameIdx].(string))
	}
	return out
}

// Model returns the live model. Callers must not mutate it directly;
// mutations that bypass the setters leave derived values stale.
func (in *Instance) Model() any { return in.model }

// AST returns the embedded debug AST, or nil outside debug mode.
func (in *Instance) AST() any {
	if !in.debug {
		return nil
	}
	return in.ast
}

// Source is reserved; it always returns nil.
func (in *Instance) Source() any { return nil }

// AddListener registers a callback fired once per settle, and returns the
// handle that removes it.
func (in *Instance) AddListener(fn func()) uuid.UUID {
	id := uuid.New()
	in.listeners = append(in.listeners, listenerEntry{id: id, fn: fn})
	return id
}

// RemoveListener removes a listener by its registration handle.
func (in *Instance) RemoveListener(id uuid.UUID) {
	for i, l := range in.listeners {
		if l.id == id {
			in.listeners = append(in.listeners[:i], in.listeners[i+1:]...)
			return
		}
	}
}

// SetBatchingStrategy installs or replaces the batching deferrer.
func (in *Instance) SetBatchingStrategy(fn func(*Instance)) {
	in.batching = fn
	in.strategyArmed = false
}
