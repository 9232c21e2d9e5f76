package region

import "math"

// costWalk fuses the segment-walk with the scalar accumulation shared by
// SampleCost and SubtreeCost (spec.md §4.5): parent is an upper-style list
// as seen from above the candidate attachment edge, other is the lower
// list of the sample or subtree being scored, and b is the branch length
// of the new edge that would join them. sampleShortcut enables the "O
// entry > 0.1 is dominant" fast path that is only valid when other is a
// sample's soft one-hot (spec.md §4.5).
func costWalk(parent, other *RegionList, b float64, model Model, sampleShortcut bool) (float64, error) {
	if b < 0 {
		return 0, errNew("region: negative branch length in cost evaluation")
	}
	runningProduct := 1.0
	runningLog := 0.0
	sumLog := 0.0

	fold := func(factor float64) {
		runningProduct *= factor
		if runningProduct < minPositive {
			runningProduct *= rescaleConst
			runningLog -= rescaleConstLog
		}
	}

	err := Walk(parent, other, func(start, end int, rp, ro *Region) bool {
		ref := model.RefState(start)
		tTop := rp.obs2node() + rp.obs2root()
		tBot := b + ro.obs2node()
		runLen := float64(end - start + 1)

		pIsN := rp.Type == TypeN || rp.Type == TypeDel
		oIsN := ro.Type == TypeN || ro.Type == TypeDel

		switch {
		case pIsN || oIsN:
			// No information from one side: this segment
			// contributes nothing to the differential.
		case rp.Type == TypeO && ro.Type == TypeO:
			pVec := propagateBackwardVec(rp.Likelihood, tTop, model)
			var oVec []float64
			if sampleShortcut {
				oVec = dominantOnehot(ro.Likelihood)
			} else {
				oVec = ro.Likelihood
			}
			cVec := propagateForwardVec(oVec, tBot, model)
			_, sum := hadamard(pVec, cVec)
			fold(sum)
		case rp.Type == TypeO:
			pVec := propagateBackwardVec(rp.Likelihood, tTop, model)
			ox := resolveState(ro.Type, ref)
			cVec := propagateForwardOnehot(ox, tBot, model)
			_, sum := hadamard(pVec, cVec)
			fold(sum)
		case ro.Type == TypeO:
			py := resolveState(rp.Type, ref)
			pVec := propagateBackwardOnehot(py, tTop, model)
			var oVec []float64
			if sampleShortcut {
				oVec = dominantOnehot(ro.Likelihood)
			} else {
				oVec = ro.Likelihood
			}
			cVec := propagateForwardVec(oVec, tBot, model)
			_, sum := hadamard(pVec, cVec)
			fold(sum)
		default:
			py := resolveState(rp.Type, ref)
			ox := resolveState(ro.Type, ref)
			if py == ox {
				t := tTop + tBot
				if rp.Type == TypeR || ro.Type == TypeR {
					// The run tracks a (possibly non-constant)
					// reference: fold in the per-state cumulative-
					// rate table instead of assuming one fixed
					// state for the whole run, per spec.md §4.3/§4.5
					// (mirrors MergeTwoLowers' matched-state branch
					// and RootLikelihood's TypeR case).
					for state := 0; state < model.NStates(); state++ {
						count := model.CumulativeCount(end, state) - model.CumulativeCount(start-1, state)
						if count != 0 {
							sumLog += count * t * model.DiagQ(state)
						}
					}
				} else {
					sumLog += runLen * t * model.DiagQ(py)
				}
			} else {
				pVec := propagateBackwardOnehot(py, tTop, model)
				cVec := propagateForwardOnehot(ox, tBot, model)
				_, sum := hadamard(pVec, cVec)
				fold(sum)
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	runningLog += math.Log(runningProduct)
	total := sumLog + runningLog
	if math.IsNaN(total) {
		return math.Inf(-1), nil
	}
	return total, nil
}

// dominantOnehot implements the sample-cost shortcut: a sample's O run is
// always a soft one-hot, so its dominant entry (> 0.1 by construction of
// the IUPAC/diff decoders) stands in for the whole vector.
func dominantOnehot(lh []float64) []float64 {
	best := 0
	for i, v := range lh {
		if v > lh[best] {
			best = i
		}
	}
	return onehot(best, len(lh))
}

// SampleCost scores attaching a single compressed taxon sample onto the
// edge described by parent (an upper-style list) at branch length b.
func SampleCost(parent, sample *RegionList, b float64, model Model) (float64, error) {
	return costWalk(parent, sample, b, model, true)
}

// SubtreeCost scores attaching an entire subtree (its full lower list) onto
// the edge described by parent at branch length b.
func SubtreeCost(parent, subtreeLower *RegionList, b float64, model Model) (float64, error) {
	return costWalk(parent, subtreeLower, b, model, false)
}
