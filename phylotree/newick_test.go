package phylotree

import (
	"strings"
	"testing"

	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/region"
	"github.com/mrrlab/maple/substmodel"
)

func testTreeModel(l int) region.Model {
	pi := []float64{0.25, 0.25, 0.25, 0.25}
	ref := make([]int, l+1)
	for i := 1; i <= l; i++ {
		ref[i] = i % 4
	}
	return substmodel.NewGTR(substmodel.DefaultGTRExchangeabilities(4), pi, ref, 1000)
}

func testTreeParams(l int) *params.Params {
	p := params.Defaults()
	p.ResolveLengths(l)
	return p
}

func sampleRL(l int) *region.RegionList {
	rl := region.NewRegionList(l, 1)
	rl.AppendR(region.TypeR, l, region.NoPlength, region.NoPlength)
	return rl
}

// buildThreeLeafTree hand-assembles ((a,b),c) directly on the arena,
// bypassing placer, so newick_test can exercise Newick output in isolation.
func buildThreeLeafTree(t *testing.T, l int) *Tree {
	t.Helper()
	model := testTreeModel(l)
	p := testTreeParams(l)
	tr := New(model, p)

	a := tr.alloc(newLeaf(noChild, "a", sampleRL(l)))
	tr.node(a).BranchLength = 0.1
	b := tr.alloc(newLeaf(noChild, "b", sampleRL(l)))
	tr.node(b).BranchLength = 0.2
	ab := tr.alloc(newInternal(noChild))
	tr.node(ab).BranchLength = 0.3
	tr.node(a).Parent = ab
	tr.node(b).Parent = ab
	tr.node(ab).Children = [2]int{a, b}

	c := tr.alloc(newLeaf(noChild, "c", sampleRL(l)))
	tr.node(c).BranchLength = 0.4
	root := tr.alloc(newInternal(noChild))
	tr.node(ab).Parent = root
	tr.node(c).Parent = root
	tr.node(root).Children = [2]int{ab, c}
	tr.Root = root

	return tr
}

func TestNewickRoundTripsThroughReadNewick(t *testing.T) {
	l := 10
	tr := buildThreeLeafTree(t, l)
	nwk := tr.WriteNewick()

	model := testTreeModel(l)
	p := testTreeParams(l)
	lookup := func(name string) (*region.RegionList, error) { return sampleRL(l), nil }

	parsed, err := ReadNewick(strings.NewReader(nwk), model, p, lookup)
	if err != nil {
		t.Fatalf("ReadNewick(%q): %v", nwk, err)
	}

	leaves := map[string]bool{}
	var walk func(int)
	walk = func(idx int) {
		n := &parsed.Nodes[idx]
		if n.IsLeaf() {
			leaves[n.Name] = true
			return
		}
		for _, c := range n.Children {
			if c != noChild {
				walk(c)
			}
		}
	}
	walk(parsed.Root)
	for _, want := range []string{"a", "b", "c"} {
		if !leaves[want] {
			t.Fatalf("round-tripped tree is missing leaf %q, Newick was %q", want, nwk)
		}
	}
}

func TestNewickEndsWithSemicolon(t *testing.T) {
	tr := buildThreeLeafTree(t, 10)
	nwk := tr.WriteNewick()
	if !strings.HasSuffix(nwk, ";") {
		t.Fatalf("Newick output %q should end with ';'", nwk)
	}
}

func TestNewickCollapsesPolytomyWhenMultifurcating(t *testing.T) {
	l := 10
	model := testTreeModel(l)
	p := testTreeParams(l)
	tr := New(model, p)

	a := tr.alloc(newLeaf(noChild, "a", sampleRL(l)))
	b := tr.alloc(newLeaf(noChild, "b", sampleRL(l)))
	c := tr.alloc(newLeaf(noChild, "c", sampleRL(l)))
	stub := tr.alloc(newInternal(noChild))
	root := tr.alloc(newInternal(noChild))

	tr.node(a).Parent, tr.node(a).BranchLength = root, 0.1
	tr.node(stub).Parent, tr.node(stub).BranchLength = root, 0
	tr.node(b).Parent, tr.node(b).BranchLength = stub, 0.2
	tr.node(c).Parent, tr.node(c).BranchLength = stub, 0.3
	tr.node(stub).Children = [2]int{b, c}
	tr.node(root).Children = [2]int{a, stub}
	tr.Root = root

	flat := tr.Newick(true)
	if strings.Count(flat, "(") != 1 {
		t.Fatalf("multifurcating output should collapse the zero-length stub into one split, got %q", flat)
	}

	binary := tr.Newick(false)
	if strings.Count(binary, "(") != 2 {
		t.Fatalf("non-multifurcating output should keep the stub as its own split, got %q", binary)
	}
}

func TestNewickRendersMinorSiblingComment(t *testing.T) {
	tr := buildThreeLeafTree(t, 10)
	aIdx := tr.Nodes[tr.Root].Children[0]
	target := tr.Nodes[aIdx].Children[0] // leaf "a"
	tr.AddMinorSibling(target, "shadow_of_a")

	nwk := tr.WriteNewick()
	if !strings.Contains(nwk, "a[&minorSiblings=shadow_of_a]") {
		t.Fatalf("expected a minorSiblings NHX comment on leaf a, got %q", nwk)
	}
}
