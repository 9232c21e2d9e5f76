package blen

import (
	"testing"

	"github.com/mrrlab/maple/region"
	"github.com/mrrlab/maple/substmodel"
)

func testModel() *substmodel.RateMatrix {
	ref := make([]int, 21)
	for i := 1; i <= 20; i++ {
		ref[i] = i % 4
	}
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	return substmodel.NewGTR(substmodel.DefaultGTRExchangeabilities(4), pi, ref, 1<<30)
}

func TestEstimateZeroWhenIdentical(t *testing.T) {
	model := testModel()
	upper := region.NewRegionList(20, 1)
	upper.AppendR(region.TypeR, 20, region.NoPlength, region.NoPlength)
	lower := region.NewRegionList(20, 1)
	lower.AppendR(region.TypeR, 20, region.NoPlength, region.NoPlength)

	got, err := Estimate(upper, lower, model, 1.0, 1e-6)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got != 0 {
		t.Fatalf("Estimate on an all-matching run = %v, want 0", got)
	}
}

func TestEstimatePositiveWhenMismatched(t *testing.T) {
	model := testModel()
	upper := region.NewRegionList(20, 1)
	upper.AppendR(region.TypeR, 20, region.NoPlength, region.NoPlength)
	lower := region.NewRegionList(20, 1)
	lower.AppendR(region.StateType((model.RefState(1)+1)%4), 20, region.NoPlength, region.NoPlength)

	got, err := Estimate(upper, lower, model, 1.0, 1e-6)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if got <= 0 {
		t.Fatalf("Estimate on a fully-mismatched run = %v, want > 0", got)
	}
}
