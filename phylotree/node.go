package phylotree

import "github.com/mrrlab/maple/region"

// Kind distinguishes the two node payloads a tree can hold, replacing the
// class hierarchy a pointer-based tree would use with a tagged variant
// stored inline in the node arena (spec.md §9 Design Notes).
type Kind int

const (
	Leaf Kind = iota
	Internal
)

// noChild marks an absent child slot.
const noChild = -1

// Node is one entry of a Tree's arena. Leaves carry Name and Sample;
// internal nodes carry exactly two Children (multifurcations are
// represented as chains of zero-length internal edges, collapsed back to a
// single Newick node on output — see newick.go).
type Node struct {
	Kind     Kind
	Name     string
	Parent   int
	Children [2]int

	// BranchLength is the length of the edge connecting this node to
	// Parent; meaningless for the root.
	BranchLength float64

	// Sample is a leaf's own compressed diff against the reference. Nil
	// for internal nodes.
	Sample *region.RegionList

	// The five per-node caches of spec.md §4.7.
	Lower      *region.RegionList
	UpperLeft  *region.RegionList
	UpperRight *region.RegionList
	MidBranch  *region.RegionList
	Total      *region.RegionList

	// Outdated marks a node whose subtree or neighborhood changed and
	// whose caches need refreshing (spec.md §4.7, §4.9). SPR's search for a
	// better edge (spec.md §4.9 step 3) drives this same flag through
	// Tree.Refresh to lazily recompute the upper-lists a logical prune
	// leaves stale, rather than tracking a separate per-node frontier flag.
	Outdated bool
}

func newLeaf(parent int, name string, sample *region.RegionList) Node {
	return Node{
		Kind:     Leaf,
		Name:     name,
		Parent:   parent,
		Children: [2]int{noChild, noChild},
		Sample:   sample,
	}
}

func newInternal(parent int) Node {
	return Node{
		Kind:     Internal,
		Parent:   parent,
		Children: [2]int{noChild, noChild},
	}
}

func (n *Node) IsRoot() bool { return n.Parent == noChild }

func (n *Node) IsLeaf() bool { return n.Kind == Leaf }

// ownLower is the RegionList a node contributes to its parent's merge: a
// leaf's own sample, or an internal node's computed Lower.
func (n *Node) ownLower() *region.RegionList {
	if n.Kind == Leaf {
		return n.Sample
	}
	return n.Lower
}

// OwnLower is the exported form of ownLower, for packages (placer, spr)
// scoring candidate attachments against a node's contributed likelihood.
func (n *Node) OwnLower() *region.RegionList { return n.ownLower() }
