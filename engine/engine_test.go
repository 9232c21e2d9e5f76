package engine

import (
	"math"
	"strings"
	"testing"

	"github.com/mrrlab/maple/alignment"
	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/region"
	"github.com/mrrlab/maple/substmodel"
)

func testParams(l int) *params.Params {
	p := params.Defaults()
	p.ResolveLengths(l)
	return p
}

func flatRef(l int) []int {
	ref := make([]int, l+1)
	for i := 1; i <= l; i++ {
		ref[i] = i % 4
	}
	return ref
}

func testModel(l int) region.Model {
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	return substmodel.NewGTR(substmodel.DefaultGTRExchangeabilities(4), pi, flatRef(l), 1000)
}

func allR(l int) *region.RegionList {
	rl := region.NewRegionList(l, 1)
	rl.AppendR(region.TypeR, l, region.NoPlength, region.NoPlength)
	return rl
}

func oneMismatch(l, pos int, ref []int) *region.RegionList {
	rl := region.NewRegionList(l, 3)
	if pos > 1 {
		rl.AppendR(region.TypeR, pos-1, region.NoPlength, region.NoPlength)
	}
	mismatch := region.StateType((ref[pos] + 1) % 4)
	rl.AppendR(mismatch, pos, region.NoPlength, region.NoPlength)
	if pos < l {
		rl.AppendR(region.TypeR, l, region.NoPlength, region.NoPlength)
	}
	return rl
}

func testAlignment(l int) *alignment.Alignment {
	ref := flatRef(l)
	names := []string{"t1", "t2", "t3", "t4"}
	diffs := map[string]*region.RegionList{
		"t1": allR(l),
		"t2": oneMismatch(l, 5, ref),
		"t3": oneMismatch(l, 12, ref),
		"t4": oneMismatch(l, 20, ref),
	}
	return &alignment.Alignment{
		Ref:   &alignment.Reference{Alphabet: alignment.DNA, States: ref},
		Names: names,
		Diffs: diffs,
	}
}

func TestBuildPlacesEveryTaxon(t *testing.T) {
	l := 30
	p := testParams(l)
	model := testModel(l)
	e := New(model, p)

	align := testAlignment(l)
	if err := e.Build(align, nil, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	leaves := 0
	for i := range e.Tree.Nodes {
		if e.Tree.Nodes[i].IsLeaf() {
			leaves++
		}
	}
	if leaves != len(align.Names) {
		t.Fatalf("expected %d leaves, got %d", len(align.Names), leaves)
	}
	if len(e.Trajectory) != len(align.Names) {
		t.Fatalf("expected one trajectory point per placement, got %d", len(e.Trajectory))
	}
}

func TestRunProducesNewickAndConvergesWithinCap(t *testing.T) {
	l := 30
	p := testParams(l)
	p.MaxIterations = 3
	model := testModel(l)
	e := New(model, p)

	result, err := e.Run(testAlignment(l), nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasSuffix(result.Newick, ";") {
		t.Fatalf("Newick output should end with ';', got %q", result.Newick)
	}
	if result.Taxa != 4 {
		t.Fatalf("Taxa = %d, want 4", result.Taxa)
	}
	if len(result.Trajectory) < result.Taxa {
		t.Fatalf("trajectory shorter than the number of placements: %d < %d", len(result.Trajectory), result.Taxa)
	}
}

func TestResolveOrderPrefersBackboneThenAppendsRemaining(t *testing.T) {
	l := 30
	p := testParams(l)
	model := testModel(l)
	e := New(model, p)

	align := testAlignment(l)
	order := e.resolveOrder(align, []string{"t4", "t1", "unknown-taxon"})

	if order[0] != "t4" || order[1] != "t1" {
		t.Fatalf("resolveOrder should place backbone-named taxa first in order, got %v", order)
	}
	if len(order) != len(align.Names) {
		t.Fatalf("resolveOrder dropped or duplicated taxa: got %v", order)
	}
}

func TestLogLikelihoodIsFiniteAfterBuild(t *testing.T) {
	l := 30
	p := testParams(l)
	model := testModel(l)
	e := New(model, p)

	if err := e.Build(testAlignment(l), nil, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	lnL := e.LogLikelihood()
	if math.IsInf(lnL, 0) || math.IsNaN(lnL) {
		t.Fatalf("LogLikelihood should be finite after Build, got %v", lnL)
	}
	if lnL == 0 {
		t.Fatalf("LogLikelihood should be non-zero once taxa have been placed")
	}
}
