// Package blen implements the analytic branch-length optimizer of
// spec.md §4.6: given a parent upper-lower list and a child lower list, it
// derives the coefficients of the log-likelihood derivative in one
// segment-walk and root-finds the optimal branch length by bisection.
package blen

import (
	"github.com/mrrlab/maple/region"
)

// logTerm is one 1/(c+t) summand of the derivative, weighted by the number
// of genome positions that share the coefficient c.
type logTerm struct {
	c float64
	w float64
}

// Estimate returns t* >= 0 maximizing the log-likelihood of the branch
// joining upper (a parent upper-lower list) and lower (a child lower list),
// clamped to [0, maxBlength]. It never mutates its inputs.
func Estimate(upper, lower *region.RegionList, model region.Model, maxBlength, eps float64) (float64, error) {
	var k float64
	var terms []logTerm

	err := region.Walk(upper, lower, func(start, end int, ra, rb *region.Region) bool {
		ref := model.RefState(start)
		runLen := float64(end - start + 1)
		tTop := obs(ra)
		tBotFixed := obs(rb)

		pIsN := ra.Type == region.TypeN || ra.Type == region.TypeDel
		cIsN := rb.Type == region.TypeN || rb.Type == region.TypeDel
		if pIsN || cIsN {
			return true
		}

		switch {
		case ra.Type == region.TypeO && rb.Type == region.TypeO:
			pVec := backward(ra.Likelihood, tTop, model)
			addLogTerm(&terms, pVec, rb.Likelihood, tBotFixed, runLen, model)
		case ra.Type == region.TypeO:
			pVec := backward(ra.Likelihood, tTop, model)
			cx := resolveState(rb.Type, ref)
			addLogTermOnehot(&terms, pVec, cx, tBotFixed, runLen, model, true)
		case rb.Type == region.TypeO:
			py := resolveState(ra.Type, ref)
			pVec := backwardOnehot(py, tTop, model)
			addLogTerm(&terms, pVec, rb.Likelihood, tBotFixed, runLen, model)
		default:
			py := resolveState(ra.Type, ref)
			cx := resolveState(rb.Type, ref)
			if py == cx {
				if ra.Type == region.TypeR || rb.Type == region.TypeR {
					// The run tracks a (possibly non-constant)
					// reference: fold in the per-state cumulative-
					// rate table instead of assuming one fixed
					// state for the whole run (mirrors
					// region.MergeTwoLowers' matched-state branch).
					for state := 0; state < model.NStates(); state++ {
						count := model.CumulativeCount(end, state) - model.CumulativeCount(start-1, state)
						if count != 0 {
							k += count * model.DiagQ(state)
						}
					}
				} else {
					k += runLen * model.DiagQ(py)
				}
			} else {
				pVec := backwardOnehot(py, tTop, model)
				addLogTermOnehot(&terms, pVec, cx, tBotFixed, runLen, model, false)
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	return bisect(k, terms, maxBlength, eps), nil
}

func obs(r *region.Region) float64 {
	return r.Obs2Node() + r.Obs2Root()
}

func resolveState(t region.StateType, ref int) int {
	if t == region.TypeR {
		return ref
	}
	return int(t)
}

func backward(vec []float64, t float64, model region.Model) []float64 {
	return propagate(vec, t, model, true)
}

func backwardOnehot(x int, t float64, model region.Model) []float64 {
	n := model.NStates()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := t * model.Q(x, i)
		if i == x {
			v += 1
		}
		out[i] = v
	}
	return out
}

func propagate(vec []float64, t float64, model region.Model, backward bool) []float64 {
	n := len(vec)
	out := make([]float64, n)
	if t == 0 {
		copy(out, vec)
		return out
	}
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			if backward {
				s += model.QT(i, j) * vec[j]
			} else {
				s += model.Q(i, j) * vec[j]
			}
		}
		out[i] = vec[i] + t*s
	}
	return out
}

// addLogTerm handles the case where the child side is a full O vector: the
// merged value as a function of branch length t is a + b*t, with
// a = pVec . (baseVec + tBotFixed*Q*baseVec) and b = pVec . (Q*baseVec).
func addLogTerm(terms *[]logTerm, pVec, baseVec []float64, tBotFixed, runLen float64, model region.Model) {
	n := len(baseVec)
	qBase := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			s += model.Q(i, j) * baseVec[j]
		}
		qBase[i] = s
	}
	a, b := 0.0, 0.0
	for i := 0; i < n; i++ {
		shifted := baseVec[i] + tBotFixed*qBase[i]
		a += pVec[i] * shifted
		b += pVec[i] * qBase[i]
	}
	appendCoefficient(terms, a, b, runLen)
}

// addLogTermOnehot is addLogTerm specialized to a one-hot base vector at x,
// used when the child side of the merge is a concrete/R state (the parent
// side, O or concrete, is already folded into pVec). parentIsO is not used:
// both parent kinds yield the same coefficients.
func addLogTermOnehot(terms *[]logTerm, pVec []float64, x int, tBotFixed, runLen float64, model region.Model, parentIsO bool) {
	n := len(pVec)
	qCol := make([]float64, n)
	for i := 0; i < n; i++ {
		qCol[i] = model.Q(i, x)
	}
	a, b := 0.0, 0.0
	for i := 0; i < n; i++ {
		base := 0.0
		if i == x {
			base = 1
		}
		shifted := base + tBotFixed*qCol[i]
		a += pVec[i] * shifted
		b += pVec[i] * qCol[i]
	}
	_ = parentIsO
	appendCoefficient(terms, a, b, runLen)
}

func appendCoefficient(terms *[]logTerm, a, b, runLen float64) {
	if b == 0 {
		return
	}
	c := a / b
	if c < 0 {
		return
	}
	*terms = append(*terms, logTerm{c: c, w: runLen})
}

// deriv evaluates ell'(t) = k + sum_j w_j/(c_j+t), which is monotonically
// decreasing in t since every summand is.
func deriv(t, k float64, terms []logTerm) float64 {
	d := k
	for _, term := range terms {
		d += term.w / (term.c + t)
	}
	return d
}

// bisect finds t* in [0, maxBlength] with deriv(t*) == 0, exploiting that
// deriv is monotonically decreasing (spec.md §4.6's bracketed bisection,
// simplified: monotonicity lets us bracket directly against the domain
// boundaries instead of estimating an initial bracket from the harmonic
// mean of the c_j).
func bisect(k float64, terms []logTerm, maxBlength, eps float64) float64 {
	if len(terms) == 0 {
		return 0
	}
	if deriv(0, k, terms) <= 0 {
		return 0
	}
	if deriv(maxBlength, k, terms) >= 0 {
		return maxBlength
	}
	lo, hi := 0.0, maxBlength
	for hi-lo > eps {
		mid := (lo + hi) / 2
		if deriv(mid, k, terms) > 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
