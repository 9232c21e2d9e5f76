package substmodel

import (
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mrrlab/maple/region"
)

// pseudocountPrior smooths a raw count/denom rate estimate with a Gamma
// prior of shape 1 and mean minRate: it returns the Gamma-Poisson posterior
// mean minRate*(1+count)/(1+denom*minRate), computed as minRate times the
// mean of Gamma(1+count, 1+denom*minRate). A state pair observed zero times
// gets minRate/(1+denom*minRate) (minRate when denom is 0) rather than a
// hard floor bolted on afterwards, and one observed with abundant
// denominator support tends to count/denom.
func pseudocountPrior(count, denom, minRate float64) float64 {
	if minRate <= 0 {
		minRate = 1e-6
	}
	g := distuv.Gamma{Alpha: 1 + count, Beta: 1 + denom*minRate}
	return g.Mean() * minRate
}

// UpdatePseudoCount implements region.Model's collaborator hook: it walks
// the pair (parent upper list, child lower list) once, incrementing an
// entry of the pseudocount matrix at every position where both sides carry
// a concrete, disagreeing state (spec.md §4.10). Ambiguous (O/N) runs are
// skipped, since a pseudocount must come from an observed transition, not
// an inferred one.
func (m *RateMatrix) UpdatePseudoCount(parentUpper, childLower *region.RegionList) {
	region.Walk(parentUpper, childLower, func(start, end int, rp, rc *region.Region) bool {
		if !rp.Type.IsConcrete() && rp.Type != region.TypeR {
			return true
		}
		if !rc.Type.IsConcrete() && rc.Type != region.TypeR {
			return true
		}
		for pos := start; pos <= end; pos++ {
			ref := m.RefState(pos)
			pState := resolve(rp.Type, ref)
			cState := resolve(rc.Type, ref)
			if pState != cState {
				m.pseudo[pState][cState]++
			}
		}
		return true
	})

	m.sinceUpdate++
	if m.sinceUpdate >= m.updatePeriod {
		m.sinceUpdate = 0
		if changed := m.reestimate(); changed {
			log.Debugf("rate matrix re-estimated from %d placements of pseudocounts", m.updatePeriod)
		}
	}
}

func resolve(t region.StateType, ref int) int {
	if t == region.TypeR {
		return ref
	}
	return int(t)
}

// Prime replaces the stationary distribution pi with counts normalized to
// sum to one, keeping Q as it is; a zero total leaves the model unchanged.
// Nothing in this module calls it: a run keeps the pi the model was
// constructed with.
func (m *RateMatrix) Prime(counts []float64) {
	total := 0.0
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		return
	}
	pi := make([]float64, m.nstates)
	for i, c := range counts {
		pi[i] = c / total
	}
	m.setQ(m.q, pi)
}

// reestimate rebuilds Q from the accumulated pseudocount matrix, GTR
// (symmetrized) or UNREST (directional) depending on how the model was
// constructed, then rebuilds the cumulative-rate table. It reports whether
// any diagonal entry moved by more than 1e-3. Its caller,
// UpdatePseudoCount, only logs that result: no cached RegionList is
// invalidated when Q changes.
func (m *RateMatrix) reestimate() bool {
	n := m.nstates
	oldDiag := append([]float64(nil), m.diagQ...)

	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			total += m.pseudo[i][j]
		}
	}
	if total == 0 {
		return false
	}

	rates := newMatrix(n)
	if m.unrest {
		for i := 0; i < n; i++ {
			rowTotal := 0.0
			for j := 0; j < n; j++ {
				if j != i {
					rowTotal += m.pseudo[i][j]
				}
			}
			if rowTotal == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				if j != i {
					rates[i][j] = pseudocountPrior(m.pseudo[i][j], rowTotal, m.minRate)
				}
			}
		}
		fillDiagonal(rates)
		pi := StationaryDistribution(rates)
		m.setQ(rates, pi)
	} else {
		exch := newMatrix(n)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				c := m.pseudo[i][j] + m.pseudo[j][i]
				denom := m.pi[i] + m.pi[j]
				if denom <= 0 {
					denom = 1
				}
				exch[i][j] = pseudocountPrior(c, denom, m.minRate)
			}
		}
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
				q[i][j] = e * m.pi[j]
			}
		}
		fillDiagonal(q)
		normalizeRate(q, m.pi)
		m.setQ(q, m.pi)
	}
	m.buildCumCount()

	changed := false
	for i := 0; i < n; i++ {
		if abs(m.diagQ[i]-oldDiag[i]) > 1e-3 {
			changed = true
		}
	}
	return changed
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
