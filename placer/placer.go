package placer

import (
	"math"

	"github.com/op/go-logging"

	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/phylotree"
	"github.com/mrrlab/maple/region"
)

var log = logging.MustGetLogger("placer")

// Placer builds a tree by repeated best-first placement (spec.md §4.8).
type Placer struct {
	Tree   *phylotree.Tree
	Model  region.Model
	Params *params.Params
}

func New(t *phylotree.Tree, model region.Model, p *params.Params) *Placer {
	return &Placer{Tree: t, Model: model, Params: p}
}

// candidate is one scored attachment point found during the coarse search.
type candidate struct {
	node   int
	onNode bool
	cost   float64
}

// Place attaches one new taxon to the current tree, or seeds the tree if it
// is still empty.
func (pl *Placer) Place(name string, sample *region.RegionList) error {
	if pl.Tree.Root == -1 {
		pl.Tree.AddRoot(name, sample)
		return nil
	}
	if pl.Tree.Nodes[pl.Tree.Root].IsLeaf() {
		// Nothing to search yet with only one leaf present.
		return pl.placeAsSecondLeaf(name, sample)
	}

	best := pl.coarseSearch(sample)
	best = pl.fineTune(best, sample)
	blen := pl.branchLengthSubSearch(best, sample)

	return pl.splice(best, name, sample, blen)
}

// PlaceAll orders and places every taxon in align in one pass.
func (pl *Placer) PlaceAll(names []string, samples map[string]*region.RegionList) error {
	ordered := OrderTaxa(names, samples, pl.Params)
	for _, name := range ordered {
		if err := pl.Place(name, samples[name]); err != nil {
			return err
		}
	}
	return nil
}

func (pl *Placer) placeAsSecondLeaf(name string, sample *region.RegionList) error {
	rootIdx := pl.Tree.Root
	root := &pl.Tree.Nodes[rootIdx]
	_, internalIdx := pl.Tree.Graft(rootIdx, 1.0, name, sample, pl.Params.DefaultBlength)
	root.BranchLength = pl.Params.DefaultBlength
	return pl.Tree.Refresh([]int{internalIdx})
}

// coarseSearch implements spec.md §4.8 step 1: a best-first traversal from
// the root, gated by a failure counter and a log-likelihood proximity
// threshold, scoring a mid-branch and an on-node attachment at every node
// visited.
func (pl *Placer) coarseSearch(sample *region.RegionList) candidate {
	best := candidate{node: pl.Tree.Root, onNode: true, cost: math.Inf(-1)}
	pl.visit(pl.Tree.Root, sample, 0, &best)
	return best
}

// visit recursively scores idx and its children, stopping a branch once
// failures accumulate past the configured limit without improvement.
func (pl *Placer) visit(idx int, sample *region.RegionList, failures int, best *candidate) {
	n := &pl.Tree.Nodes[idx]

	if mid := pl.midBranchCost(idx, sample); mid > best.cost {
		*best = candidate{node: idx, onNode: false, cost: mid}
	}
	if onNode := pl.onNodeCost(idx, sample); onNode > best.cost {
		*best = candidate{node: idx, onNode: true, cost: onNode}
	}

	if n.IsLeaf() {
		if lower := n.OwnLower(); lower != nil {
			if info := region.Compare(lower, sample, pl.Model); info == region.Seq1MoreInformative {
				// n's own diff already dominates the new sample:
				// no point searching further past this leaf.
				return
			}
		}
		return
	}

	for _, c := range n.Children {
		if c == -1 {
			continue
		}
		childFailures := failures
		childCost := math.Max(pl.midBranchCost(c, sample), pl.onNodeCost(c, sample))
		if childCost >= best.cost-pl.Params.ThreshLogLHSample {
			childFailures = 0
		} else {
			childFailures++
		}
		stop := childFailures >= pl.Params.FailureLimitSample
		if stop && !pl.Params.StrictStopSeekingPlacementSample {
			continue
		}
		pl.visit(c, sample, childFailures, best)
	}
}

func (pl *Placer) midBranchCost(idx int, sample *region.RegionList) float64 {
	n := &pl.Tree.Nodes[idx]
	if n.MidBranch == nil {
		return math.Inf(-1)
	}
	cost, err := region.SampleCost(n.MidBranch, sample, pl.Params.DefaultBlength, pl.Model)
	if err != nil {
		return math.Inf(-1)
	}
	return cost
}

func (pl *Placer) onNodeCost(idx int, sample *region.RegionList) float64 {
	n := &pl.Tree.Nodes[idx]
	ctx := n.Total
	if ctx == nil {
		ctx = n.OwnLower()
	}
	if ctx == nil {
		return math.Inf(-1)
	}
	cost, err := region.SampleCost(ctx, sample, pl.Params.DefaultBlength, pl.Model)
	if err != nil {
		return math.Inf(-1)
	}
	return cost
}

// fineTune refines a mid-branch candidate's cost by trying split points
// along the winning node's own branch, moving the split by a halving step
// while that improves the cost, until the step falls below
// min_blength_mid. An on-node candidate is returned unchanged. Only the
// cost is updated: the winning fraction is not recorded, and splice grafts
// a mid-branch candidate at the midpoint of the branch.
func (pl *Placer) fineTune(best candidate, sample *region.RegionList) candidate {
	if best.onNode {
		return best
	}
	n := &pl.Tree.Nodes[best.node]
	frac := 0.5
	step := 0.25
	for step*n.BranchLength >= pl.Params.MinBlengthMid {
		up := pl.fracCost(best.node, frac+step, sample)
		down := pl.fracCost(best.node, frac-step, sample)
		switch {
		case up > best.cost && up >= down:
			frac += step
			best.cost = up
		case down > best.cost:
			frac -= step
			best.cost = down
		default:
			step /= 2
			continue
		}
		step /= 2
	}
	return best
}

// fracCost scores a mid-branch attachment at a specific fractional split
// point along node idx's incoming branch, by building the upper-lower
// context that split implies (grounded on region.MergeUpperLower, mirroring
// the MidBranch cache computation at an arbitrary fraction instead of 0.5).
func (pl *Placer) fracCost(idx int, frac float64, sample *region.RegionList) float64 {
	if frac <= 0 || frac >= 1 {
		return math.Inf(-1)
	}
	n := &pl.Tree.Nodes[idx]
	parentUpper := pl.Tree.UpperFor(idx)
	if parentUpper == nil {
		return math.Inf(-1)
	}
	top := n.BranchLength * frac
	bot := n.BranchLength - top
	ctx, err := region.MergeUpperLower(parentUpper, top, n.OwnLower(), bot, pl.Model, pl.Params.ThresholdProb)
	if err != nil {
		return math.Inf(-1)
	}
	cost, err := region.SampleCost(ctx, sample, pl.Params.DefaultBlength, pl.Model)
	if err != nil {
		return math.Inf(-1)
	}
	return cost
}

// branchLengthSubSearch implements spec.md §4.8 step 3: try halving and
// doubling the default branch length, then a near-zero check, keeping
// whichever scores best.
func (pl *Placer) branchLengthSubSearch(best candidate, sample *region.RegionList) float64 {
	ctx := pl.attachmentContext(best)
	if ctx == nil {
		return pl.Params.DefaultBlength
	}
	candidates := []float64{
		pl.Params.DefaultBlength,
		pl.Params.DefaultBlength / 2,
		pl.Params.DefaultBlength * 2,
		pl.Params.MinBlength,
	}
	bestLen, bestCost := candidates[0], math.Inf(-1)
	for _, l := range candidates {
		cost, err := region.SampleCost(ctx, sample, l, pl.Model)
		if err != nil {
			continue
		}
		if cost > bestCost {
			bestCost, bestLen = cost, l
		}
	}
	return bestLen
}

func (pl *Placer) attachmentContext(best candidate) *region.RegionList {
	n := &pl.Tree.Nodes[best.node]
	if best.onNode {
		if n.Total != nil {
			return n.Total
		}
		return n.OwnLower()
	}
	return n.MidBranch
}

// splice inserts the new taxon at the winning candidate and refreshes the
// affected caches, per spec.md §4.8 step 4.
func (pl *Placer) splice(best candidate, name string, sample *region.RegionList, blen float64) error {
	target := best.node
	var leafIdx, internalIdx int
	if best.onNode {
		if lower := pl.Tree.Nodes[target].OwnLower(); lower != nil {
			if region.Compare(lower, sample, pl.Model) == region.Seq1MoreInformative {
				pl.Tree.AddMinorSibling(target, name)
			}
		}
		leafIdx, internalIdx = pl.Tree.GraftOnNode(target, name, sample, blen)
	} else {
		leafIdx, internalIdx = pl.Tree.Graft(target, 0.5, name, sample, blen)
	}
	_ = leafIdx

	if err := pl.Tree.Refresh([]int{internalIdx}); err != nil {
		return err
	}

	if parentUpper := pl.Tree.UpperFor(leafIdx); parentUpper != nil {
		pl.Model.UpdatePseudoCount(parentUpper, sample)
	}
	return nil
}
