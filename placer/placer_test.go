package placer

import (
	"testing"

	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/phylotree"
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

func TestOrderTaxaSortsByAscendingDivergence(t *testing.T) {
	l := 20
	p := testParams(l)
	ref := flatRef(l)
	samples := map[string]*region.RegionList{
		"far":   oneMismatch(l, 5, ref),
		"close": allR(l),
	}
	names := []string{"far", "close"}
	ordered := OrderTaxa(names, samples, p)
	if ordered[0] != "close" || ordered[1] != "far" {
		t.Fatalf("OrderTaxa = %v, want [close far]", ordered)
	}
}

func TestPlaceFirstTaxonSeedsRoot(t *testing.T) {
	l := 20
	p := testParams(l)
	model := testModel(l)
	tree := phylotree.New(model, p)
	pl := New(tree, model, p)

	sample := allR(l)
	if err := pl.Place("t1", sample); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if tree.Root == -1 {
		t.Fatalf("root not set after first placement")
	}
	if !tree.Nodes[tree.Root].IsLeaf() {
		t.Fatalf("root should be a leaf after a single placement")
	}
}

func TestPlaceSecondTaxonGraftsBinaryTree(t *testing.T) {
	l := 20
	p := testParams(l)
	model := testModel(l)
	ref := flatRef(l)
	tree := phylotree.New(model, p)
	pl := New(tree, model, p)

	if err := pl.Place("t1", allR(l)); err != nil {
		t.Fatalf("Place t1: %v", err)
	}
	if err := pl.Place("t2", oneMismatch(l, 10, ref)); err != nil {
		t.Fatalf("Place t2: %v", err)
	}

	root := &tree.Nodes[tree.Root]
	if root.IsLeaf() {
		t.Fatalf("root should be internal after second placement")
	}
	if root.Children[0] == -1 || root.Children[1] == -1 {
		t.Fatalf("root should have two children, got %v", root.Children)
	}
	if root.Lower == nil {
		t.Fatalf("root Lower cache should be populated after Refresh")
	}
}

func TestPlaceAllOrdersAndPlacesEveryTaxon(t *testing.T) {
	l := 30
	p := testParams(l)
	model := testModel(l)
	ref := flatRef(l)
	tree := phylotree.New(model, p)
	pl := New(tree, model, p)

	samples := map[string]*region.RegionList{
		"t1": allR(l),
		"t2": oneMismatch(l, 5, ref),
		"t3": oneMismatch(l, 25, ref),
	}
	names := []string{"t1", "t2", "t3"}
	if err := pl.PlaceAll(names, samples); err != nil {
		t.Fatalf("PlaceAll: %v", err)
	}

	leaves := 0
	for i := range tree.Nodes {
		if tree.Nodes[i].IsLeaf() {
			leaves++
		}
	}
	if leaves != 3 {
		t.Fatalf("expected 3 leaves after placing 3 taxa, got %d", leaves)
	}
	if tree.Nodes[tree.Root].Outdated {
		t.Fatalf("root should not be left Outdated after Refresh")
	}
}

func TestCoarseSearchFindsMismatchedSiteAsWorseFit(t *testing.T) {
	l := 40
	p := testParams(l)
	model := testModel(l)
	ref := flatRef(l)
	tree := phylotree.New(model, p)
	pl := New(tree, model, p)

	if err := pl.Place("t1", allR(l)); err != nil {
		t.Fatalf("Place t1: %v", err)
	}
	if err := pl.Place("t2", allR(l)); err != nil {
		t.Fatalf("Place t2: %v", err)
	}

	identical := allR(l)
	mismatched := oneMismatch(l, 20, ref)

	bestIdentical := pl.coarseSearch(identical)
	bestMismatched := pl.coarseSearch(mismatched)

	if bestIdentical.cost < bestMismatched.cost {
		t.Fatalf("an identical sample should score at least as well as a mismatched one: identical=%v mismatched=%v",
			bestIdentical.cost, bestMismatched.cost)
	}
}
