package region

import "math"

// RootLikelihood computes log P(L | model) for the root's lower list L, per
// spec.md §4.4: R runs are scored via the model's cumulative reference-
// state counts, concrete runs via log π directly, and O runs by folding
// their π-weighted mass into a rescaled running product.
func RootLikelihood(l *RegionList, model Model) float64 {
	sumLog := 0.0
	runningProduct := 1.0
	runningLog := 0.0

	fold := func(factor float64) {
		runningProduct *= factor
		if runningProduct < minPositive {
			runningProduct *= rescaleConst
			runningLog -= rescaleConstLog
		}
	}

	prev := 0
	for i := range l.Regions {
		r := &l.Regions[i]
		switch r.Type {
		case TypeN, TypeDel:
			// No constraint contributes no information.
		case TypeR:
			for state := 0; state < model.NStates(); state++ {
				count := model.CumulativeCount(r.Position, state) - model.CumulativeCount(prev, state)
				if count != 0 {
					sumLog += model.LogPi(state) * count
				}
			}
			// A residual plength (state propagated but not yet
			// re-observed) attenuates by the model's total rate.
			if t := r.obs2node() + r.obs2root(); t > 0 {
				ref := model.RefState(r.Position)
				sumLog += float64(r.Position-prev) * t * model.DiagQ(ref)
			}
		case TypeO:
			sum := 0.0
			for state, v := range r.Likelihood {
				sum += model.Pi(state) * v
			}
			fold(sum)
		default:
			state := int(r.Type)
			sumLog += model.LogPi(state)
			if t := r.obs2node() + r.obs2root(); t > 0 {
				sumLog += t * model.DiagQ(state)
			}
		}
		prev = r.Position
	}

	runningLog += math.Log(runningProduct)
	lnL := sumLog + runningLog
	if math.IsNaN(lnL) {
		return math.Inf(-1)
	}
	return lnL
}
