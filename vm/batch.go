package vm

import "reflect"

// StartBatch enters batching mode: setter calls queue until EndBatch. The
// model and derived values are not guaranteed consistent inside a batch.
func (in *Instance) StartBatch() {
	in.inBatch = true
}

// EndBatch leaves batching mode, applies every queued setter in FIFO order,
// and recomputes once.
func (in *Instance) EndBatch() (err error) {
	defer recoverError(&err)

	in.inBatch = false
	in.drainPending()
	in.recalculate()
	return nil
}

// RunInBatch runs f inside a batch and settles on return.
func (in *Instance) RunInBatch(f func()) error {
	in.StartBatch()
	f()
	return in.EndBatch()
}

func (in *Instance) drainPending() {
	pending := in.batchPending
	in.batchPending = nil
	for _, p := range pending {
		in.applySetter(p.row, p.args)
	}
}

// recalculate settles the instance: it iterates derivation over dirty
// projections until no top-level value changes, copies top-level values to
// the exported surface, fires every listener once, and drains setters that
// accumulated during listener execution with a follow-up recompute.
//
// It is a no-op inside a batch or inside an ongoing recalculation; failure
// to reach a fixpoint within MaxRecalcPasses raises
// RecalculationDivergenceError.
func (in *Instance) recalculate() {
	if in.inBatch || in.inRecalculate {
		return
	}
	in.inRecalculate = true
	defer func() { in.inRecalculate = false }()

	passes := 0
	for {
		for {
			passes++
			if passes > MaxRecalcPasses {
				panic(&RecalculationDivergenceError{Passes: passes})
			}
			changed := make(map[int]bool)
			for idx, r := range in.pd.TopLevelProjections {
				// In-place container mutation can leave the old and new
				// values deep-equal, so a recompute is itself a change.
				wasCached := !r.IsProjection() || in.computed[r.Payload()]
				v := in.evalRef(r, nil)
				if !wasCached || !reflect.DeepEqual(v, in.topValues[idx]) {
					in.topValues[idx] = v
					changed[idx] = true
				}
			}
			if !in.applyTopChanges(changed) {
				break
			}
		}

		in.trackedMemo = make(map[int64]any)

		// Listeners registered during notification do not fire this settle.
		active := make([]listenerEntry, len(in.listeners))
		copy(active, in.listeners)
		for _, l := range active {
			l.fn()
		}

		if len(in.batchPending) == 0 {
			break
		}
		in.drainPending()
	}
	in.strategyArmed = false
}
