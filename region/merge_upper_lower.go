package region

import "errors"

// ErrNullMerge is returned when a merge collapses to a likelihood vector
// with no positive support anywhere (spec.md §7): the branch below the
// merge point is a precondition-violation candidate for retry-with-grown-
// branch, never a panic.
var ErrNullMerge = errors.New("region: null merge")

// MergeUpperLower combines a parent-side ("upper") list P with a child-side
// ("lower") list C separated by two branch segments, per spec.md §4.2.
// bTop is the branch length above the join (between P's bearing node and
// the join), bBot is the branch length below (between the join and C's
// bearing node).
func MergeUpperLower(p *RegionList, bTop float64, c *RegionList, bBot float64, model Model, thresholdProb float64) (*RegionList, error) {
	if bTop < 0 || bBot < 0 {
		return nil, errors.New("region: negative branch length in MergeUpperLower")
	}
	out := NewRegionList(p.L, len(p.Regions)+len(c.Regions))

	err := Walk(p, c, func(start, end int, ra, rb *Region) bool {
		ref := model.RefState(start)
		tTop := bTop + ra.obs2node()
		tBot := bBot + rb.obs2node()

		switch {
		case ra.Type == TypeN || ra.Type == TypeDel:
			mergeFromNParent(out, end, rb, ref, tBot, model, thresholdProb)
		case ra.Type == TypeO:
			pVec := propagateBackwardVec(ra.Likelihood, tTop, model)
			mergeFromOParent(out, end, pVec, rb, ref, tBot, model, thresholdProb)
		default:
			py := resolveState(ra.Type, ref)
			if hasPlength(ra.PlengthObs2Root) {
				// Parent carries a live root marker (spec.md §4.7):
				// mix in π at the observation point instead of
				// treating py as a plain one-hot all the way down.
				pVec := mixRootFrequencies(py, ra.PlengthObs2Root, ra.PlengthObs2Node, bTop, model)
				mergeFromOParent(out, end, pVec, rb, ref, tBot, model, thresholdProb)
			} else {
				mergeFromConcreteParent(out, end, py, tTop, rb, ref, tBot, model, thresholdProb)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(out.Regions) == 0 {
		return nil, ErrNullMerge
	}
	return out, nil
}

// mergeFromNParent handles table row "P == N": the parent side contributes
// no constraint, so the output mirrors the propagated child.
func mergeFromNParent(out *RegionList, end int, rb *Region, ref int, tBot float64, model Model, thresholdProb float64) {
	switch {
	case rb.Type == TypeN || rb.Type == TypeDel:
		out.AppendR(rb.Type, end, NoPlength, NoPlength)
	case rb.Type == TypeO:
		vec := propagateForwardVec(rb.Likelihood, tBot, model)
		appendSimplified(out, end, NoPlength, NoPlength, vec, ref, thresholdProb)
	default:
		cx := resolveState(rb.Type, ref)
		out.AppendR(stateType(cx, ref), end, tBot, NoPlength)
	}
}

// mergeFromOParent handles table row "P == O": pVec is the parent's
// likelihood already propagated down through tTop.
func mergeFromOParent(out *RegionList, end int, pVec []float64, rb *Region, ref int, tBot float64, model Model, thresholdProb float64) {
	switch {
	case rb.Type == TypeN || rb.Type == TypeDel:
		appendSimplified(out, end, NoPlength, NoPlength, pVec, ref, thresholdProb)
	case rb.Type == TypeO:
		cVec := propagateForwardVec(rb.Likelihood, tBot, model)
		merged, _ := hadamard(pVec, cVec)
		appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)
	default:
		cx := resolveState(rb.Type, ref)
		cVec := propagateForwardOnehot(cx, tBot, model)
		merged, _ := hadamard(pVec, cVec)
		appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)
	}
}

// mergeFromConcreteParent handles table row "P == R/y".
func mergeFromConcreteParent(out *RegionList, end int, py int, tTop float64, rb *Region, ref int, tBot float64, model Model, thresholdProb float64) {
	switch {
	case rb.Type == TypeN || rb.Type == TypeDel:
		out.AppendR(stateType(py, ref), end, tTop, NoPlength)
	case rb.Type == TypeO:
		pVec := propagateBackwardOnehot(py, tTop, model)
		cVec := propagateForwardVec(rb.Likelihood, tBot, model)
		merged, _ := hadamard(pVec, cVec)
		appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)
	default:
		cx := resolveState(rb.Type, ref)
		if cx == py {
			out.AppendR(stateType(py, ref), end, tTop+tBot, NoPlength)
			return
		}
		pVec := propagateBackwardOnehot(py, tTop, model)
		cVec := propagateForwardOnehot(cx, tBot, model)
		merged, _ := hadamard(pVec, cVec)
		appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)
	}
}

// appendSimplified simplifies a raw merged vector to a Region (possibly
// concrete, possibly O) and appends it to out.
func appendSimplified(out *RegionList, position int, p2n, p2r float64, vec []float64, ref int, thresholdProb float64) {
	sum := 0.0
	for _, v := range vec {
		sum += v
	}
	if isDegenerate(sum) {
		// The caller (Placer/SPROptimizer) is responsible for the
		// retry-with-grown-branch policy of spec.md §7; here we simply
		// surface the degeneracy by emitting nothing for this run,
		// which will fail RegionList.Validate and short-circuit the
		// caller's null-merge handling.
		return
	}
	reg := simplifyO(position, p2n, p2r, vec, ref, thresholdProb)
	out.append(reg.Type, reg.Position, reg.PlengthObs2Node, reg.PlengthObs2Root, reg.Likelihood)
}
