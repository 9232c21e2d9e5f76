package region

import "math"

// minPositive and rescaleConst implement the underflow-avoidance scheme of
// spec.md §4.3/§7: whenever the running likelihood product drops below
// minPositive it is multiplied by rescaleConst and rescaleConstLog is
// subtracted from the accumulated log-sum. Tuned for float64 (spec.md §9's
// second Open Question: re-tune for a different floating width).
const (
	minPositive     = 1e-250
	rescaleConst    = 1e250
	rescaleConstLog = 250 * math.Ln10
)

// MergeTwoLowers combines two child-side lower lists meeting at an internal
// node, per spec.md §4.3. It is symmetric in (a, bA) and (b, bB). When
// wantLL is true it also returns, in the same pass, the absolute
// log-likelihood contribution of the join (needed to score topology moves
// without a second walk); when false the second return value is 0.
func MergeTwoLowers(a *RegionList, bA float64, b *RegionList, bB float64, model Model, thresholdProb float64, wantLL bool) (*RegionList, float64, error) {
	if bA < 0 || bB < 0 {
		return nil, 0, errNegativeBranch
	}
	out := NewRegionList(a.L, len(a.Regions)+len(b.Regions))

	runningLog := 0.0
	runningProduct := 1.0

	fold := func(factor float64) {
		if !wantLL {
			return
		}
		runningProduct *= factor
		if runningProduct < minPositive {
			runningProduct *= rescaleConst
			runningLog -= rescaleConstLog
		}
	}

	err := Walk(a, b, func(start, end int, ra, rb *Region) bool {
		ref := model.RefState(start)
		tA := bA + ra.obs2node()
		tB := bB + rb.obs2node()
		runLen := float64(end - start + 1)

		aIsN := ra.Type == TypeN || ra.Type == TypeDel
		bIsN := rb.Type == TypeN || rb.Type == TypeDel

		switch {
		case aIsN && bIsN:
			out.AppendR(TypeN, end, NoPlength, NoPlength)

		case aIsN && rb.Type == TypeO:
			vec := propagateForwardVec(rb.Likelihood, tB, model)
			appendSimplified(out, end, NoPlength, NoPlength, vec, ref, thresholdProb)
		case bIsN && ra.Type == TypeO:
			vec := propagateForwardVec(ra.Likelihood, tA, model)
			appendSimplified(out, end, NoPlength, NoPlength, vec, ref, thresholdProb)

		case aIsN && !bIsN:
			bx := resolveState(rb.Type, ref)
			out.AppendR(stateType(bx, ref), end, tB, NoPlength)
		case bIsN && !aIsN:
			ax := resolveState(ra.Type, ref)
			out.AppendR(stateType(ax, ref), end, tA, NoPlength)

		case ra.Type == TypeO && rb.Type == TypeO:
			va := propagateForwardVec(ra.Likelihood, tA, model)
			vb := propagateForwardVec(rb.Likelihood, tB, model)
			merged, sum := hadamard(va, vb)
			fold(sum)
			appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)

		case ra.Type == TypeO:
			bx := resolveState(rb.Type, ref)
			va := propagateForwardVec(ra.Likelihood, tA, model)
			vb := propagateForwardOnehot(bx, tB, model)
			merged, sum := hadamard(va, vb)
			fold(sum)
			appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)
		case rb.Type == TypeO:
			ax := resolveState(ra.Type, ref)
			va := propagateForwardOnehot(ax, tA, model)
			vb := propagateForwardVec(rb.Likelihood, tB, model)
			merged, sum := hadamard(va, vb)
			fold(sum)
			appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)

		default:
			ax := resolveState(ra.Type, ref)
			bx := resolveState(rb.Type, ref)
			if ax == bx {
				out.AppendR(stateType(ax, ref), end, tA+tB, NoPlength)
				if wantLL {
					t := tA + tB
					if ra.Type == TypeR || rb.Type == TypeR {
						// The run tracks a (possibly non-constant)
						// reference: fold in the per-state
						// cumulative-rate table instead of assuming
						// one fixed state for the whole run, per
						// spec.md §4.3 (mirrors the TypeR case in
						// RootLikelihood).
						for state := 0; state < model.NStates(); state++ {
							count := model.CumulativeCount(end, state) - model.CumulativeCount(start-1, state)
							if count != 0 {
								runningLog += count * t * model.DiagQ(state)
							}
						}
					} else {
						// A run of one fixed concrete state on both
						// sides: linearized survival probability
						// per position, summed over the run.
						runningLog += runLen * t * model.DiagQ(ax)
					}
				}
			} else {
				va := propagateForwardOnehot(ax, tA, model)
				vb := propagateForwardOnehot(bx, tB, model)
				merged, sum := hadamard(va, vb)
				fold(sum)
				appendSimplified(out, end, NoPlength, NoPlength, merged, ref, thresholdProb)
			}
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	if len(out.Regions) == 0 {
		return nil, 0, ErrNullMerge
	}
	if wantLL {
		runningLog += math.Log(runningProduct)
	}
	return out, runningLog, nil
}

var errNegativeBranch = errNew("region: negative branch length in MergeTwoLowers")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errNew(s string) error { return simpleErr(s) }
