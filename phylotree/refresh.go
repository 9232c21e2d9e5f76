package phylotree

import (
	"math"

	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/region"
)

// MarkOutdated sets idx's Outdated flag after a branch-length change, SPR
// graft, or SPR prune (spec.md §4.7). It does not push idx onto a work
// stack: Refresh starts only from the nodes passed to it as roots.
func (t *Tree) MarkOutdated(idx int) {
	t.node(idx).Outdated = true
}

// Refresh drains the work-stack seeded by roots, recomputing the five
// caches on each popped node and pushing a neighbor only when its
// recomputed list differs meaningfully from the cached one (spec.md §4.7).
// This keeps the cost of a local edit roughly constant rather than
// sweeping the whole tree.
func (t *Tree) Refresh(roots []int) error {
	stack := append([]int(nil), roots...)
	for _, idx := range roots {
		t.node(idx).Outdated = true
	}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.node(idx)
		if !n.Outdated {
			continue
		}
		n.Outdated = false

		lowerChanged, err := t.recomputeLower(idx)
		if err != nil {
			return err
		}
		upperChanged, err := t.recomputeUppers(idx)
		if err != nil {
			return err
		}
		if err := t.recomputeMidAndTotal(idx); err != nil {
			return err
		}

		if lowerChanged && n.Parent != noChild {
			stack = append(stack, n.Parent)
			t.node(n.Parent).Outdated = true
		}
		if upperChanged {
			for _, c := range n.Children {
				if c != noChild {
					stack = append(stack, c)
					t.node(c).Outdated = true
				}
			}
		}
	}
	return nil
}

// recomputeLower rebuilds an internal node's Lower cache from its two
// children, reporting whether the result differs meaningfully from what
// was cached before.
func (t *Tree) recomputeLower(idx int) (changed bool, err error) {
	n := t.node(idx)
	if n.Kind == Leaf {
		return false, nil
	}
	left, right := t.node(n.Children[0]), t.node(n.Children[1])
	merged, _, err := region.MergeTwoLowers(left.ownLower(), left.BranchLength, right.ownLower(), right.BranchLength, t.Model, t.Params.ThresholdProb, false)
	if err == region.ErrNullMerge {
		if err2 := t.growAndRetry(n.Children[0], n.Children[1]); err2 != nil {
			return false, err2
		}
		left, right = t.node(n.Children[0]), t.node(n.Children[1])
		merged, _, err = region.MergeTwoLowers(left.ownLower(), left.BranchLength, right.ownLower(), right.BranchLength, t.Model, t.Params.ThresholdProb, false)
	}
	if err != nil {
		return false, err
	}
	changed = regionListsDiffer(n.Lower, merged, t.Params)
	n.Lower = merged
	return changed, nil
}

// recomputeUppers rebuilds the UpperLeft/UpperRight caches a node hands
// down to its two children, reporting whether either changed.
func (t *Tree) recomputeUppers(idx int) (changed bool, err error) {
	n := t.node(idx)
	if n.Kind == Leaf {
		return false, nil
	}
	parentUpper := t.upperFor(idx)
	left, right := t.node(n.Children[0]), t.node(n.Children[1])

	var newLeft, newRight *region.RegionList
	if parentUpper == nil {
		// Root: the "upper" seen from either child is the sibling's
		// lower list carried across the sibling's own branch and
		// stamped for root-frequency mixing (spec.md §4.7), not the
		// raw sibling lower list.
		newLeft, err = region.ComputeTotalLhAtRoot(right.ownLower(), t.Model, right.BranchLength, t.Params.ThresholdProb)
		if err != nil && err != region.ErrNullMerge {
			return false, err
		}
		newRight, err = region.ComputeTotalLhAtRoot(left.ownLower(), t.Model, left.BranchLength, t.Params.ThresholdProb)
		if err != nil && err != region.ErrNullMerge {
			return false, err
		}
	} else {
		newLeft, err = region.MergeUpperLower(parentUpper, n.BranchLength, right.ownLower(), right.BranchLength, t.Model, t.Params.ThresholdProb)
		if err != nil && err != region.ErrNullMerge {
			return false, err
		}
		newRight, err = region.MergeUpperLower(parentUpper, n.BranchLength, left.ownLower(), left.BranchLength, t.Model, t.Params.ThresholdProb)
		if err != nil && err != region.ErrNullMerge {
			return false, err
		}
	}

	if regionListsDiffer(n.UpperLeft, newLeft, t.Params) {
		changed = true
	}
	if regionListsDiffer(n.UpperRight, newRight, t.Params) {
		changed = true
	}
	n.UpperLeft, n.UpperRight = newLeft, newRight
	return changed, nil
}

// recomputeMidAndTotal rebuilds a node's own MidBranch and Total caches
// from its parent's upper-lower list and its own lower list.
func (t *Tree) recomputeMidAndTotal(idx int) error {
	n := t.node(idx)
	parentUpper := t.upperFor(idx)
	if parentUpper == nil {
		// Root has no incoming branch, but its Total still must be its
		// own lower list "viewed at root", i.e. stamped for root-
		// frequency mixing rather than passed through unchanged
		// (spec.md §4.7). There is no meaningful mid-branch cache.
		total, err := region.ComputeTotalLhAtRoot(n.ownLower(), t.Model, 0, t.Params.ThresholdProb)
		if err != nil && err != region.ErrNullMerge {
			return err
		}
		n.Total = total
		n.MidBranch = nil
		return nil
	}
	total, err := region.MergeUpperLower(parentUpper, n.BranchLength, n.ownLower(), 0, t.Model, t.Params.ThresholdProb)
	if err != nil && err != region.ErrNullMerge {
		return err
	}
	n.Total = total

	half := n.BranchLength / 2
	mid, err := region.MergeUpperLower(parentUpper, half, n.ownLower(), half, t.Model, t.Params.ThresholdProb)
	if err != nil && err != region.ErrNullMerge {
		return err
	}
	n.MidBranch = mid
	return nil
}

// growAndRetry implements spec.md §7's null-merge recovery: a zero-length
// branch that collapses to a degenerate merge is grown to min_blength.
func (t *Tree) growAndRetry(a, b int) error {
	na, nb := t.node(a), t.node(b)
	if na.BranchLength <= 0 {
		na.BranchLength = t.Params.MinBlength
	}
	if nb.BranchLength <= 0 {
		nb.BranchLength = t.Params.MinBlength
	}
	return nil
}

// regionListsDiffer implements spec.md §4.7's refresh-stop test: two lists
// differ if they disagree structurally, or if any O run's entries or any
// plength field moved by more than both the absolute (ThreshDiffUpdate)
// and fold-change (ThreshDiffFoldUpdate) floors.
func regionListsDiffer(a, b *region.RegionList, p *params.Params) bool {
	if a == nil || b == nil {
		return a != b
	}
	if len(a.Regions) != len(b.Regions) {
		return true
	}
	for i := range a.Regions {
		ra, rb := &a.Regions[i], &b.Regions[i]
		if ra.Type != rb.Type || ra.Position != rb.Position {
			return true
		}
		if plengthDiffers(ra.PlengthObs2Node, rb.PlengthObs2Node, p) {
			return true
		}
		if plengthDiffers(ra.PlengthObs2Root, rb.PlengthObs2Root, p) {
			return true
		}
		if ra.Type == region.TypeO {
			for j := range ra.Likelihood {
				if valueDiffers(ra.Likelihood[j], rb.Likelihood[j], p) {
					return true
				}
			}
		}
	}
	return false
}

func plengthDiffers(a, b float64, p *params.Params) bool {
	return valueDiffers(a, b, p)
}

func valueDiffers(a, b float64, p *params.Params) bool {
	diff := math.Abs(a - b)
	if diff <= p.ThreshDiffUpdate {
		return false
	}
	denom := math.Min(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Max(a, b)/denom > p.ThreshDiffFoldUpdate
}
