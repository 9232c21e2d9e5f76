// Package phylotree provides the arena-indexed binary tree of
// spec.md §9's Design Notes: nodes live in a contiguous slice and refer to
// each other by index rather than pointer, and each node carries the five
// likelihood caches of spec.md §4.7. Polytomies are represented internally
// as chains of zero-length binary edges and collapsed on Newick output.
package phylotree

import (
	"github.com/op/go-logging"

	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/region"
)

var log = logging.MustGetLogger("phylotree")

// Tree is the arena of Nodes plus the shared Model/Params every cache
// recomputation needs.
type Tree struct {
	Nodes  []Node
	Root   int
	Model  region.Model
	Params *params.Params

	// MinorSiblings records, per node index, the names of taxa placed
	// on-node against it whose own diff was found less informative than
	// that node's. Such a taxon is still grafted as its own leaf beside the
	// node (GraftOnNode adds an internal node for it); the names are
	// written to Newick output only for leaf nodes.
	MinorSiblings map[int][]string
}

// New creates an empty tree ready to receive its first leaf via AddRoot.
func New(model region.Model, p *params.Params) *Tree {
	return &Tree{Model: model, Params: p, Root: noChild, MinorSiblings: make(map[int][]string)}
}

// AddMinorSibling records name as placed on-node against idx without its
// own distinguishing internal node.
func (t *Tree) AddMinorSibling(idx int, name string) {
	t.MinorSiblings[idx] = append(t.MinorSiblings[idx], name)
}

// AddRoot seeds the tree with a single leaf, used when placing the first
// taxon (spec.md §4.8 has nothing to attach to yet).
func (t *Tree) AddRoot(name string, sample *region.RegionList) int {
	idx := t.alloc(newLeaf(noChild, name, sample))
	t.Root = idx
	return idx
}

func (t *Tree) alloc(n Node) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

func (t *Tree) node(idx int) *Node { return &t.Nodes[idx] }

// siblingSlot returns which of Children[0]/Children[1] on parent equals
// child, or -1 if child is not parent's child.
func (t *Tree) siblingSlot(parent, child int) int {
	p := t.node(parent)
	if p.Children[0] == child {
		return 0
	}
	if p.Children[1] == child {
		return 1
	}
	return -1
}

// Sibling is the exported form of sibling.
func (t *Tree) Sibling(idx int) int { return t.sibling(idx) }

// sibling returns the index of node idx's sibling under its parent, or
// noChild if idx is the root.
func (t *Tree) sibling(idx int) int {
	n := t.node(idx)
	if n.Parent == noChild {
		return noChild
	}
	slot := t.siblingSlot(n.Parent, idx)
	return t.node(n.Parent).Children[1-slot]
}

// upperFor returns the upper-lower list a node should use as the "parent"
// operand when computing its own MidBranch/Total/child-upper caches: the
// grandparent-mixed cache the parent stores for this specific child slot,
// or nil at the root (callers fall back to region.RootLikelihood /
// model-mixed treatment there, per spec.md §4.7).
// UpperFor is the exported form of upperFor.
func (t *Tree) UpperFor(idx int) *region.RegionList { return t.upperFor(idx) }

func (t *Tree) upperFor(idx int) *region.RegionList {
	n := t.node(idx)
	if n.Parent == noChild {
		return nil
	}
	parent := t.node(n.Parent)
	slot := t.siblingSlot(n.Parent, idx)
	if slot == 0 {
		return parent.UpperLeft
	}
	return parent.UpperRight
}

// Graft splices a new leaf into the tree along the edge above target, at
// fractional position frac in [0,1] of target's branch length, measured
// from the top: the new internal node takes frac of the old length and
// target keeps the rest. With frac==1 target's own edge becomes
// zero-length, which is how on-node placement is expressed. It returns the
// new leaf's index and the new internal node's index. Splicing never recomputes caches; the caller queues a
// refresh via MarkOutdated/Refresh.
func (t *Tree) Graft(target int, frac float64, leafName string, sample *region.RegionList, newBranchLength float64) (leafIdx, internalIdx int) {
	tn := t.node(target)
	oldParent := tn.Parent
	oldLen := tn.BranchLength
	topLen := oldLen * frac
	botLen := oldLen - topLen

	internalIdx = t.alloc(newInternal(oldParent))
	if oldParent != noChild {
		slot := t.siblingSlot(oldParent, target)
		t.node(oldParent).Children[slot] = internalIdx
	} else {
		t.Root = internalIdx
	}
	t.node(internalIdx).BranchLength = topLen

	t.node(target).Parent = internalIdx
	t.node(target).BranchLength = botLen

	leafIdx = t.alloc(newLeaf(internalIdx, leafName, sample))
	t.node(leafIdx).BranchLength = newBranchLength

	t.node(internalIdx).Children = [2]int{target, leafIdx}
	return leafIdx, internalIdx
}

// GraftOnNode attaches a new leaf beside target by inserting a new internal
// node that takes over target's whole branch, leaving a zero-length edge
// between it and target (Graft with frac==1), matching the on-node
// placement case of spec.md §4.8 step 4. When target is internal, that
// zero-length edge is a polytomy stub, collapsed on Newick output.
func (t *Tree) GraftOnNode(target int, leafName string, sample *region.RegionList, newBranchLength float64) (leafIdx, internalIdx int) {
	return t.Graft(target, 1.0, leafName, sample, newBranchLength)
}

// Prune detaches the subtree rooted at idx from the tree, reconnecting
// idx's grandparent directly to its sibling with a summed branch length
// (spec.md §4.9 step 4). It returns the sibling's index (now the root, or
// reattached to the grandparent); the sibling's BranchLength holds the
// summed length.
func (t *Tree) Prune(idx int) (sibling int, err error) {
	n := t.node(idx)
	parent := n.Parent
	if parent == noChild {
		return noChild, errNew("phylotree: cannot prune the root")
	}
	sib := t.sibling(idx)
	grand := t.node(parent).Parent
	combined := t.node(sib).BranchLength + t.node(parent).BranchLength

	t.node(sib).Parent = grand
	t.node(sib).BranchLength = combined
	if grand == noChild {
		t.Root = sib
	} else {
		slot := t.siblingSlot(grand, parent)
		t.node(grand).Children[slot] = sib
	}
	return sib, nil
}

// Attach grafts a previously pruned subtree (whose root is idx) back onto
// the tree along the edge above target, mirroring Graft but reusing an
// existing subtree instead of allocating a new leaf.
func (t *Tree) Attach(idx, target int, frac, subtreeBranchLength float64) (internalIdx int) {
	tn := t.node(target)
	oldParent := tn.Parent
	oldLen := tn.BranchLength
	topLen := oldLen * frac
	botLen := oldLen - topLen

	internalIdx = t.alloc(newInternal(oldParent))
	if oldParent != noChild {
		slot := t.siblingSlot(oldParent, target)
		t.node(oldParent).Children[slot] = internalIdx
	} else {
		t.Root = internalIdx
	}
	t.node(internalIdx).BranchLength = topLen

	t.node(target).Parent = internalIdx
	t.node(target).BranchLength = botLen

	t.node(idx).Parent = internalIdx
	t.node(idx).BranchLength = subtreeBranchLength

	t.node(internalIdx).Children = [2]int{target, idx}
	return internalIdx
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func errNew(s string) error { return simpleErr(s) }
