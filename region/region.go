// Package region implements the compact per-site likelihood representation
// used along every edge of the tree (spec.md §3-§4): Region, RegionList,
// the segment-walk primitive, the two merge kernels, and the likelihood
// cost evaluators. Every exported function here is pure: it borrows its
// inputs and returns a freshly allocated RegionList or scalar, matching the
// ownership rules in spec.md §3 ("Ownership summary").
package region

import (
	"fmt"
	"math"

	"github.com/op/go-logging"

	"github.com/mrrlab/maple/params"
)

var log = logging.MustGetLogger("region")

// StateType tags a Region. Non-negative values are concrete states in
// 0..NStates-1; the remaining tags are the special states from spec.md §3.
type StateType int

const (
	// TypeR: "same as reference at this position".
	TypeR StateType = -1
	// TypeN: gap / unknown, maximally uncertain.
	TypeN StateType = -2
	// TypeO: ambiguous, carries an explicit probability vector.
	TypeO StateType = -3
	// TypeDel: gap, inference-equivalent to N but kept distinct in
	// storage so that round-tripping the diff format is exact (this is
	// the resolution of spec.md §9's first Open Question: DEL and N are
	// conflated during cost evaluation but never in storage).
	TypeDel StateType = -4
)

// NoPlength is the sentinel meaning "this plength field is absent".
const NoPlength = -1.0

// IsConcrete reports whether t names a concrete state index.
func (t StateType) IsConcrete() bool {
	return t >= 0
}

func (t StateType) String() string {
	switch t {
	case TypeR:
		return "R"
	case TypeN:
		return "N"
	case TypeO:
		return "O"
	case TypeDel:
		return "DEL"
	default:
		if t.IsConcrete() {
			return fmt.Sprintf("state(%d)", int(t))
		}
		return fmt.Sprintf("invalid(%d)", int(t))
	}
}

// Region is one run of the compact per-edge likelihood vector: a closed
// -right interval ending at Position (1-based, inclusive).
type Region struct {
	Type StateType

	// Position is the last reference coordinate covered by this run.
	Position int

	// PlengthObs2Node is the "observation-to-node" extra branch length:
	// how far below (or above, depending on direction) the bearing node
	// the concrete observation that produced this run actually sits.
	// NoPlength when absent.
	PlengthObs2Node float64

	// PlengthObs2Root is the "observation-to-root" extra branch length,
	// used when a state has been propagated through the root. NoPlength
	// when absent.
	PlengthObs2Root float64

	// Likelihood is non-nil iff Type == TypeO: a length-NStates
	// nonnegative vector, its maximum entry > 0.
	Likelihood []float64
}

// hasPlength reports whether v is a real (non-sentinel) plength value.
func hasPlength(v float64) bool {
	return v >= 0
}

// obs2node returns the region's PlengthObs2Node, treating the sentinel as 0.
func (r *Region) obs2node() float64 {
	if hasPlength(r.PlengthObs2Node) {
		return r.PlengthObs2Node
	}
	return 0
}

// Obs2Node is the exported form of obs2node, for packages (blen, placer,
// spr) that need a region's resolved plength without reaching into its
// sentinel-encoded fields directly.
func (r *Region) Obs2Node() float64 { return r.obs2node() }

// Obs2Root is the exported form of obs2root.
func (r *Region) Obs2Root() float64 { return r.obs2root() }

// obs2root returns the region's PlengthObs2Root, treating the sentinel as 0.
func (r *Region) obs2root() float64 {
	if hasPlength(r.PlengthObs2Root) {
		return r.PlengthObs2Root
	}
	return 0
}

// Model is the substitution-model collaborator interface the core depends
// on (spec.md §1): a rate matrix Q, its transpose, its diagonal, root
// frequencies π, log π, and a cumulative table over the reference used to
// score long invariant runs in O(1) instead of O(run length).
type Model interface {
	// NStates is the size of the state alphabet (4, 20, 2, ... up to 32).
	NStates() int
	// RefState is the 0-based reference state at 1-based position pos.
	RefState(pos int) int
	// Q returns the (i,j) entry of the instantaneous rate matrix.
	Q(i, j int) float64
	// QT returns the (i,j) entry of the transposed rate matrix (== Q(j,i)
	// for time-reversible models, computed directly for UNREST).
	QT(i, j int) float64
	// DiagQ returns Q(i,i), the negative total substitution rate out of i.
	DiagQ(i int) float64
	// Pi returns the root frequency of state i.
	Pi(i int) float64
	// LogPi returns log(Pi(i)).
	LogPi(i int) float64
	// CumulativeCount returns, for 1 <= pos <= L, the number of reference
	// positions in [1, pos] whose reference state is i (spec.md §4.4's
	// "cumulative-rate table C[]"; C(0, i) == 0 for all i).
	CumulativeCount(pos, i int) float64
	// UpdatePseudoCount records one observed transition event, walking
	// the pair (parent upper list, child lower list) once per placement
	// (spec.md §4.10).
	UpdatePseudoCount(parentUpper, childLower *RegionList)
}

// RegionList is an ordered sequence of Regions covering positions 1..L of
// the reference exactly once (spec.md §3 invariants 1-5).
type RegionList struct {
	Regions []Region
	L       int
}

// NewRegionList creates an empty list for a genome of length l, with
// capacity hint cap for the region slice.
func NewRegionList(l, cap int) *RegionList {
	return &RegionList{Regions: make([]Region, 0, cap), L: l}
}

// append adds a run ending at position with the given type, plengths and
// likelihood vector, coalescing with the previous run when possible
// (addNonConsecutiveR in spec.md §4.2: consecutive identical runs are
// merged by extending Position instead of appending a new Region).
func (rl *RegionList) append(typ StateType, position int, p2n, p2r float64, lh []float64) {
	n := len(rl.Regions)
	if n > 0 {
		last := &rl.Regions[n-1]
		if last.Type == typ && typ != TypeO &&
			last.PlengthObs2Node == p2n && last.PlengthObs2Root == p2r {
			last.Position = position
			return
		}
	}
	rl.Regions = append(rl.Regions, Region{
		Type:            typ,
		Position:        position,
		PlengthObs2Node: p2n,
		PlengthObs2Root: p2r,
		Likelihood:      lh,
	})
}

// AppendR appends (or extends) a run of type typ (R, N, DEL, or a concrete
// state) ending at position.
func (rl *RegionList) AppendR(typ StateType, position int, p2n, p2r float64) {
	rl.append(typ, position, p2n, p2r, nil)
}

// AppendO appends an ambiguous run with an explicit likelihood vector.
func (rl *RegionList) AppendO(position int, p2n, p2r float64, lh []float64) {
	rl.append(TypeO, position, p2n, p2r, lh)
}

// Validate checks the RegionList invariants from spec.md §3.
func (rl *RegionList) Validate(p *params.Params, nstates int) error {
	if len(rl.Regions) == 0 {
		return fmt.Errorf("region: empty RegionList")
	}
	prev := 0
	for i := range rl.Regions {
		r := &rl.Regions[i]
		if r.Position <= prev {
			return fmt.Errorf("region: non-increasing position at run %d (%d <= %d)", i, r.Position, prev)
		}
		if r.Type == TypeO {
			if r.Likelihood == nil || len(r.Likelihood) != nstates {
				return fmt.Errorf("region: run %d is type O without a length-%d likelihood vector", i, nstates)
			}
			maxV, maxI := -1.0, -1
			sum := 0.0
			for j, v := range r.Likelihood {
				if v < 0 {
					return fmt.Errorf("region: run %d has negative likelihood entry", i)
				}
				sum += v
				if v > maxV {
					maxV, maxI = v, j
				}
			}
			if maxV <= 0 {
				return fmt.Errorf("region: run %d is type O with an all-zero likelihood vector", i)
			}
			if p != nil && maxV/sum > 1-p.ThresholdProb {
				return fmt.Errorf("region: run %d should have been simplified to concrete state %d", i, maxI)
			}
		} else if r.Likelihood != nil {
			return fmt.Errorf("region: run %d of type %s carries a likelihood vector", i, r.Type)
		}
		if r.Type.IsConcrete() && int(r.Type) >= nstates {
			return fmt.Errorf("region: run %d has out-of-range concrete state %d", i, r.Type)
		}
		if hasPlength(r.PlengthObs2Root) && !hasPlength(r.PlengthObs2Node) {
			return fmt.Errorf("region: run %d has plength_observation2root without plength_observation2node", i)
		}
		prev = r.Position
	}
	if prev != rl.L {
		return fmt.Errorf("region: last run ends at %d, expected %d", prev, rl.L)
	}
	return nil
}

// simplifyO collapses r (a TypeO region ending at position) to a concrete
// state if its likelihood is concentrated above 1-threshold_prob, per
// spec.md §3 invariant 3. lh is never stored: a run kept as O gets a
// normalized copy.
func simplifyO(position int, p2n, p2r float64, lh []float64, ref int, thresholdProb float64) Region {
	sum := 0.0
	maxV, maxI := -1.0, -1
	for i, v := range lh {
		sum += v
		if v > maxV {
			maxV, maxI = v, i
		}
	}
	if sum <= 0 {
		// Degenerate: no state has positive support. Fall back to N;
		// callers treat this as the "null merge" case (spec.md §7).
		return Region{Type: TypeN, Position: position, PlengthObs2Node: NoPlength, PlengthObs2Root: NoPlength}
	}
	if maxV/sum >= 1-thresholdProb {
		typ := StateType(maxI)
		if maxI == ref {
			typ = TypeR
		}
		return Region{Type: typ, Position: position, PlengthObs2Node: p2n, PlengthObs2Root: p2r}
	}
	normalized := make([]float64, len(lh))
	for i, v := range lh {
		normalized[i] = v / sum
	}
	return Region{Type: TypeO, Position: position, PlengthObs2Node: p2n, PlengthObs2Root: p2r, Likelihood: normalized}
}

// onehot returns a length-n vector with a 1 at index i.
func onehot(i, n int) []float64 {
	v := make([]float64, n)
	v[i] = 1
	return v
}

// asVector materializes a Region's per-state likelihood as a dense vector,
// substituting the reference state for TypeR. isN reports whether the
// region carries no constraint at all (TypeN/TypeDel) and vec is nil.
func asVector(r *Region, ref, nstates int) (vec []float64, isN bool) {
	switch {
	case r.Type == TypeN || r.Type == TypeDel:
		return nil, true
	case r.Type == TypeO:
		return r.Likelihood, false
	case r.Type == TypeR:
		return onehot(ref, nstates), false
	default:
		return onehot(int(r.Type), nstates), false
	}
}

func maxAbs(v []float64) (m float64) {
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return
}
