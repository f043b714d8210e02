package vm

import "github.com/chazu/ripple/pkg/bytecode"

// invalidate drops a projection's cached value and propagates to every
// projection consuming it.
func (in *Instance) invalidate(i int) {
	if !in.computed[i] {
		return
	}
	in.computed[i] = false
	in.values[i] = nil
	for _, d := range in.dependents[i] {
		in.invalidate(d)
	}
}

// resolveSteps evaluates a stored invalidation path's steps into concrete
// keys against the current state.
func (in *Instance) resolveSteps(steps []bytecode.Ref) []any {
	out := make([]any, len(steps))
	for i, s := range steps {
		out[i] = in.evalRef(s, nil)
	}
	return out
}

// pathsOverlap reports whether one concrete path is a prefix of the other:
// a write at either dirties values derived through both.
func pathsOverlap(a, b []any) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if !keyEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// invalidateForWrite dirties every projection whose condition-guarded
// invalidation paths touch the written model location.
func (in *Instance) invalidateForWrite(written []any) {
	for _, inv := range in.rootInvs {
		if !in.computed[inv.owner] {
			continue
		}
		if !truthy(in.evalRef(inv.cond, nil)) {
			continue
		}
		if pathsOverlap(in.resolveSteps(inv.steps), written) {
			in.invalidate(inv.owner)
		}
	}
}

// applyTopChanges dirties projections that watch changed top-level values.
// It reports whether any projection was invalidated, which drives the
// recalculation fixpoint.
func (in *Instance) applyTopChanges(changed map[int]bool) bool {
	if len(changed) == 0 {
		return false
	}
	dirtied := false
	for _, inv := range in.topInvs {
		if !changed[inv.index] || !in.computed[inv.owner] {
			continue
		}
		if !truthy(in.evalRef(inv.cond, nil)) {
			continue
		}
		in.invalidate(inv.owner)
		dirtied = true
	}
	return dirtied
}
