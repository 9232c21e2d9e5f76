package substmodel

import (
	"math"
	"testing"

	"github.com/mrrlab/maple/region"
)

func flatDNA(l int) []int {
	ref := make([]int, l+1)
	for i := 1; i <= l; i++ {
		ref[i] = i % 4
	}
	return ref
}

func TestNewGTRRowsSumToZero(t *testing.T) {
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	exch := DefaultGTRExchangeabilities(4)
	m := NewGTR(exch, pi, flatDNA(100), 100)
	if err := m.Validate(1e-9); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCumulativeCountMatchesBruteForce(t *testing.T) {
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	ref := flatDNA(37)
	m := NewGTR(DefaultGTRExchangeabilities(4), pi, ref, 100)
	for pos := 0; pos <= 37; pos++ {
		for state := 0; state < 4; state++ {
			want := 0.0
			for p := 1; p <= pos; p++ {
				if ref[p] == state {
					want++
				}
			}
			if got := m.CumulativeCount(pos, state); got != want {
				t.Fatalf("CumulativeCount(%d,%d) = %v, want %v", pos, state, got, want)
			}
		}
	}
}

func TestQTIsTranspose(t *testing.T) {
	pi := []float64{0.1, 0.2, 0.3, 0.4}
	m := NewGTR(DefaultGTRExchangeabilities(4), pi, flatDNA(10), 100)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if m.Q(i, j) != m.QT(j, i) {
				t.Fatalf("Q(%d,%d) != QT(%d,%d)", i, j, j, i)
			}
		}
	}
}

func TestUpdatePseudoCountTriggersReestimation(t *testing.T) {
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	ref := flatDNA(4)
	m := NewGTR(DefaultGTRExchangeabilities(4), pi, ref, 2)

	parent := region.NewRegionList(4, 1)
	parent.AppendR(region.TypeR, 4, region.NoPlength, region.NoPlength)
	child := region.NewRegionList(4, 1)
	child.AppendR(region.StateType((ref[1]+1)%4), 4, region.NoPlength, region.NoPlength)

	m.UpdatePseudoCount(parent, child)
	if m.sinceUpdate != 1 {
		t.Fatalf("sinceUpdate = %d, want 1", m.sinceUpdate)
	}
	m.UpdatePseudoCount(parent, child)
	if m.sinceUpdate != 0 {
		t.Fatalf("sinceUpdate should reset to 0 after hitting updatePeriod, got %d", m.sinceUpdate)
	}
}

func TestExpApproxesLinearForSmallT(t *testing.T) {
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	m := NewGTR(DefaultGTRExchangeabilities(4), pi, flatDNA(10), 100)
	dt := 1e-6
	exp, err := m.Exp(dt)
	if err != nil {
		t.Fatalf("Exp: %v", err)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := dt * m.Q(i, j)
			if i == j {
				want += 1
			}
			if got := exp.At(i, j); math.Abs(got-want) > 1e-6 {
				t.Fatalf("Exp(%v)[%d][%d] = %v, want approx %v", dt, i, j, got, want)
			}
		}
	}
}
