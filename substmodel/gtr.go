package substmodel

// NewGTR builds a time-reversible rate matrix from a symmetric exchangeability
// matrix (upper triangle only is read; exch[i][j] for i<j) and a stationary
// distribution pi: Q[i][j] = exch[i][j]*pi[j] for i != j, and each row's
// diagonal is set so the row sums to zero. Q is then rescaled so that the
// expected number of substitutions per unit time is one (grounded on the
// teacher's codon/matrix.go NewEMatrix scaling step, generalized from codons
// to an arbitrary alphabet size).
func NewGTR(exch [][]float64, pi []float64, refSeq []int, updatePeriod int) *RateMatrix {
	n := len(pi)
	q := newMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			e := exch[i][j]
			if i > j {
				e = exch[j][i]
			}
			q[i][j] = e * pi[j]
		}
	}
	fillDiagonal(q)
	normalizeRate(q, pi)
	return New(q, pi, refSeq, false, updatePeriod)
}

// DefaultGTRExchangeabilities returns a flat (all-equal) exchangeability
// matrix, the Jukes-Cantor-like starting point used before any pseudocounts
// have been observed.
func DefaultGTRExchangeabilities(n int) [][]float64 {
	e := newMatrix(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			e[i][j] = 1
		}
	}
	return e
}

func fillDiagonal(q [][]float64) {
	n := len(q)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				sum += q[i][j]
			}
		}
		q[i][i] = -sum
	}
}

// normalizeRate rescales q so that the stationary flux, -sum_i pi[i]*Q[i][i],
// equals one branch-length unit per site (spec.md §4.10: "renormalized so
// that the stationary-flux trace equals one").
func normalizeRate(q [][]float64, pi []float64) {
	n := len(pi)
	flux := 0.0
	for i := 0; i < n; i++ {
		flux -= pi[i] * q[i][i]
	}
	if flux <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			q[i][j] /= flux
		}
	}
}
