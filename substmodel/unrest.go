package substmodel

// NewUNREST builds a general (non-reversible) rate matrix directly from a
// full n x n off-diagonal rate table and the stationary distribution pi
// supplied by the caller, which is used as given (StationaryDistribution
// can compute one from a rate table), per spec.md §4.10's "UNREST:
// directional" re-estimation mode.
func NewUNREST(rates [][]float64, pi []float64, refSeq []int, updatePeriod int) *RateMatrix {
	n := len(pi)
	q := newMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				q[i][j] = rates[i][j]
			}
		}
	}
	fillDiagonal(q)
	normalizeRate(q, pi)
	return New(q, pi, refSeq, true, updatePeriod)
}

// StationaryDistribution solves piQ = 0, sum(pi) = 1 by power iteration on
// the uniformized discrete-time chain P = I + Q/maxRate, avoiding a dependency on a general
// eigensolver for what is otherwise a tiny (S <= 32) linear system.
func StationaryDistribution(q [][]float64) []float64 {
	n := len(q)
	maxRate := 0.0
	for i := 0; i < n; i++ {
		if r := -q[i][i]; r > maxRate {
			maxRate = r
		}
	}
	if maxRate == 0 {
		maxRate = 1
	}
	p := newMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				p[i][j] = 1 + q[i][j]/maxRate
			} else {
				p[i][j] = q[i][j] / maxRate
			}
		}
	}
	pi := make([]float64, n)
	for i := range pi {
		pi[i] = 1.0 / float64(n)
	}
	next := make([]float64, n)
	for iter := 0; iter < 10000; iter++ {
		for j := 0; j < n; j++ {
			next[j] = 0
			for i := 0; i < n; i++ {
				next[j] += pi[i] * p[i][j]
			}
		}
		diff := 0.0
		for i := 0; i < n; i++ {
			d := next[i] - pi[i]
			if d < 0 {
				d = -d
			}
			diff += d
		}
		copy(pi, next)
		if diff < 1e-12 {
			break
		}
	}
	return pi
}
