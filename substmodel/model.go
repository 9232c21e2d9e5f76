// Package substmodel provides the continuous-time Markov substitution
// models consumed by the region package's Model collaborator interface:
// dense GTR and UNREST rate matrices over a reference sequence, plus the
// pseudocount accumulation and periodic re-estimation of spec.md §4.10.
package substmodel

import (
	"math"
	"math/cmplx"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("substmodel")

// RateMatrix is a dense S-state instantaneous rate matrix together with the
// stationary distribution and the reference-sequence bookkeeping needed to
// satisfy region.Model. It is safe for concurrent reads; writes only happen
// between placements (spec.md §4.10, invariant 3).
type RateMatrix struct {
	nstates int
	unrest  bool

	q     [][]float64 // Q[i][j], row i sums to 0
	qt    [][]float64 // transpose, cached for QT
	diagQ []float64
	pi    []float64
	logPi []float64

	refSeq []int // 0-based reference state at each 1-based position, refSeq[0] unused

	// cumCount[i][pos] is the number of positions in [1,pos] whose
	// reference state is i; cumCount[i][0] == 0.
	cumCount [][]float64

	pseudo         [][]float64 // observed transition counts since last re-estimation
	sinceUpdate    int
	updatePeriod   int
	minRate        float64
}

// New builds a RateMatrix from an explicit Q and stationary distribution
// over a reference sequence (1-based positions 1..len(refSeq)). unrest
// marks whether re-estimation should keep Q asymmetric (UNREST) or
// symmetrize it against pi (GTR).
func New(q [][]float64, pi []float64, refSeq []int, unrest bool, updatePeriod int) *RateMatrix {
	n := len(pi)
	m := &RateMatrix{
		nstates:      n,
		unrest:       unrest,
		refSeq:       refSeq,
		pseudo:       newMatrix(n),
		updatePeriod: updatePeriod,
		minRate:      1e-6,
	}
	m.setQ(q, pi)
	m.buildCumCount()
	return m
}

func newMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

func (m *RateMatrix) setQ(q [][]float64, pi []float64) {
	n := m.nstates
	m.q = q
	m.qt = newMatrix(n)
	m.diagQ = make([]float64, n)
	m.pi = append([]float64(nil), pi...)
	m.logPi = make([]float64, n)
	for i := 0; i < n; i++ {
		m.diagQ[i] = q[i][i]
		m.logPi[i] = math.Log(pi[i])
		for j := 0; j < n; j++ {
			m.qt[j][i] = q[i][j]
		}
	}
}

func (m *RateMatrix) buildCumCount() {
	n := m.nstates
	l := len(m.refSeq) - 1
	m.cumCount = make([][]float64, n)
	for i := 0; i < n; i++ {
		m.cumCount[i] = make([]float64, l+1)
	}
	for pos := 1; pos <= l; pos++ {
		state := m.refSeq[pos]
		for i := 0; i < n; i++ {
			m.cumCount[i][pos] = m.cumCount[i][pos-1]
		}
		if state >= 0 && state < n {
			m.cumCount[state][pos]++
		}
	}
}

func (m *RateMatrix) NStates() int { return m.nstates }

func (m *RateMatrix) RefState(pos int) int { return m.refSeq[pos] }

func (m *RateMatrix) Q(i, j int) float64 { return m.q[i][j] }

func (m *RateMatrix) QT(i, j int) float64 { return m.qt[i][j] }

func (m *RateMatrix) DiagQ(i int) float64 { return m.diagQ[i] }

func (m *RateMatrix) Pi(i int) float64 { return m.pi[i] }

func (m *RateMatrix) LogPi(i int) float64 { return m.logPi[i] }

func (m *RateMatrix) CumulativeCount(pos, i int) float64 {
	if pos <= 0 {
		return 0
	}
	return m.cumCount[i][pos]
}

// Exp computes the exact matrix exponential exp(Q*t) via eigendecomposition,
// used only off the placement hot path, by the unit tests that validate
// the linear approximation.
func (m *RateMatrix) Exp(t float64) (*mat.Dense, error) {
	n := m.nstates
	flat := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			flat[i*n+j] = m.q[i][j]
		}
	}
	q := mat.NewDense(n, n, flat)

	var eig mat.Eigen
	if ok := eig.Factorize(q, mat.EigenRight); !ok {
		return nil, errNew("substmodel: eigendecomposition failed")
	}
	values := eig.Values(nil)
	var v mat.CDense
	eig.VectorsTo(&v)

	d := mat.NewCDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, cmplxExp(values[i], t))
	}

	vInv, err := complexInverse(&v, n)
	if err != nil {
		return nil, err
	}

	tmp := complexMul(&v, d, n)
	expQt := complexMul(tmp, vInv, n)

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, real(expQt.At(i, j)))
		}
	}
	return out, nil
}

// complexToBlock and complexFromBlock represent an n x n complex matrix as a
// 2n x 2n real matrix [[Re, -Im], [Im, Re]], which turns complex
// multiplication and inversion into real mat.Dense operations: this
// gonum version's mat.CDense exposes no Mul or Inverse of its own.
func complexToBlock(a mat.CMatrix, n int) *mat.Dense {
	b := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			b.Set(i, j, real(v))
			b.Set(i, j+n, -imag(v))
			b.Set(i+n, j, imag(v))
			b.Set(i+n, j+n, real(v))
		}
	}
	return b
}

func complexFromBlock(b *mat.Dense, n int) *mat.CDense {
	out := mat.NewCDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, complex(b.At(i, j), b.At(i+n, j)))
		}
	}
	return out
}

func complexMul(a, b mat.CMatrix, n int) *mat.CDense {
	var prod mat.Dense
	prod.Mul(complexToBlock(a, n), complexToBlock(b, n))
	return complexFromBlock(&prod, n)
}

func complexInverse(a mat.CMatrix, n int) (*mat.CDense, error) {
	var inv mat.Dense
	if err := inv.Inverse(complexToBlock(a, n)); err != nil {
		return nil, err
	}
	return complexFromBlock(&inv, n), nil
}

// Validate checks that Q's rows sum to zero and that pi is a stationary
// distribution of Q (piQ == 0), within tol.
func (m *RateMatrix) Validate(tol float64) error {
	n := m.nstates
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += m.q[i][j]
		}
		if math.Abs(sum) > tol {
			return errNew("substmodel: row does not sum to zero")
		}
	}
	for j := 0; j < n; j++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += m.pi[i] * m.q[i][j]
		}
		if math.Abs(sum) > tol {
			return errNew("substmodel: pi is not stationary")
		}
	}
	return nil
}

func cmplxExp(v complex128, t float64) complex128 {
	return cmplx.Exp(v * complex(t, 0))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errNew(s string) error { return simpleErr(s) }
