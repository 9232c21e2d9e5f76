package region

import "math"

// propagateForwardVec applies (I + Q*t) to vec: this is the operator that
// carries a child ("lower") likelihood vector up across a branch of length
// t, per spec.md §4.2's linear approximation of exp(Q*t).
func propagateForwardVec(vec []float64, t float64, model Model) []float64 {
	n := len(vec)
	out := make([]float64, n)
	if t == 0 {
		copy(out, vec)
		return out
	}
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			s += model.Q(i, j) * vec[j]
		}
		out[i] = vec[i] + t*s
	}
	return out
}

// propagateBackwardVec applies (I + Qᵀ*t) to vec: the operator that carries
// a parent ("upper") likelihood vector down across a branch of length t.
func propagateBackwardVec(vec []float64, t float64, model Model) []float64 {
	n := len(vec)
	out := make([]float64, n)
	if t == 0 {
		copy(out, vec)
		return out
	}
	for i := 0; i < n; i++ {
		s := 0.0
		for j := 0; j < n; j++ {
			s += model.QT(i, j) * vec[j]
		}
		out[i] = vec[i] + t*s
	}
	return out
}

// propagateForwardOnehot is propagateForwardVec specialized to a one-hot
// input at x: out[i] = delta(i,x) + t*Q[i][x].
func propagateForwardOnehot(x int, t float64, model Model) []float64 {
	n := model.NStates()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := t * model.Q(i, x)
		if i == x {
			v += 1
		}
		out[i] = v
	}
	return out
}

// propagateBackwardOnehot is propagateBackwardVec specialized to a one-hot
// input at y: out[i] = delta(y,i) + t*Q[y][i].
func propagateBackwardOnehot(y int, t float64, model Model) []float64 {
	n := model.NStates()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := t * model.Q(y, i)
		if i == y {
			v += 1
		}
		out[i] = v
	}
	return out
}

// mixRootFrequencies implements the two-stage root_vec computation from
// seqregions.cpp:492-505: a concrete/R observation stamped with a live
// PlengthObs2Root (spec.md §4.7) does not propagate backward as a plain
// one-hot indefinitely. Instead π is mixed in at the point the state was
// actually observed (obs2node away from its bearing node), and the
// resulting vector is then propagated the rest of the way — obs2root plus
// any branch above — down to the node that needs this cache.
func mixRootFrequencies(state int, obs2root, obs2node, bTop float64, model Model) []float64 {
	n := model.NStates()
	pi := make([]float64, n)
	for i := 0; i < n; i++ {
		pi[i] = model.Pi(i)
	}
	observed := propagateForwardOnehot(state, obs2node, model)
	mixed, _ := hadamard(pi, observed)
	lengthToRoot := obs2root
	if bTop > 0 {
		lengthToRoot += bTop
	}
	return propagateBackwardVec(mixed, lengthToRoot, model)
}

// hadamard multiplies two vectors elementwise, returning a new vector and
// the sum of its entries (the merge's local normalizing constant, needed
// by the two-lowers scalar log-likelihood accumulation).
func hadamard(a, b []float64) (out []float64, sum float64) {
	out = make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
		sum += out[i]
	}
	return
}

// resolveState maps TypeR to the reference state and returns int(t) for any
// other concrete type. Callers must not pass TypeN/TypeO/TypeDel.
func resolveState(t StateType, ref int) int {
	if t == TypeR {
		return ref
	}
	return int(t)
}

// stateType is the inverse of resolveState: maps a resolved state back to
// TypeR when it equals the reference, else to the concrete StateType.
func stateType(state, ref int) StateType {
	if state == ref {
		return TypeR
	}
	return StateType(state)
}

// isDegenerate reports whether a merged likelihood vector carries no usable
// signal (all entries at or below zero): the "null merge" condition from
// spec.md §7.
func isDegenerate(sum float64) bool {
	return sum <= 0 || math.IsNaN(sum)
}
