// Package spr implements topology polishing: after a subtree has been
// placed, repeatedly checks whether detaching it and reattaching it
// somewhere else in the tree improves its likelihood, and re-estimates its
// branch length in place either way. Two search profiles are exposed: a
// full pass over the whole tree (Optimizer.Run) and a cheaper short-range
// pass meant to run more often during early tree-building
// (Optimizer.RunShortRange).
package spr

import (
	"math"

	"github.com/op/go-logging"

	"github.com/mrrlab/maple/blen"
	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/phylotree"
	"github.com/mrrlab/maple/region"
)

var log = logging.MustGetLogger("spr")

// Optimizer repeatedly prunes and reattaches subtrees to improve the
// overall tree likelihood.
type Optimizer struct {
	Tree   *phylotree.Tree
	Model  region.Model
	Params *params.Params
}

func New(t *phylotree.Tree, model region.Model, p *params.Params) *Optimizer {
	return &Optimizer{Tree: t, Model: model, Params: p}
}

// profile bundles the failure-limit/threshold knobs that distinguish a
// full topology search from a cheap short-range polish.
type profile struct {
	failureLimit    int
	threshLogLH     float64
	threshPlacement float64
	strict          bool
}

func (o *Optimizer) fullProfile() profile {
	return profile{
		failureLimit:    o.Params.FailureLimitSubtree,
		threshLogLH:     o.Params.ThreshLogLHSubtree,
		threshPlacement: o.Params.ThreshPlacementCost,
		strict:          o.Params.StrictStopSeekingPlacementSubtree,
	}
}

func (o *Optimizer) shortProfile() profile {
	return profile{
		failureLimit:    o.Params.FailureLimitSubtreeShortSearch,
		threshLogLH:     o.Params.ThreshLogLHSubtreeShortSearch,
		threshPlacement: o.Params.ThreshPlacementCostShortSearch,
		strict:          o.Params.StrictStopSeekingPlacementSubtree,
	}
}

// Run repeatedly sweeps every node of the tree with the full search
// profile until a whole pass improves the tree by less than
// ThreshEntireTreeImprovement, or MaxIterations passes have run.
func (o *Optimizer) Run() error {
	return o.runPasses(o.fullProfile())
}

// RunShortRange runs a single cheaper sweep, meant to be interleaved
// between placements rather than run to convergence.
func (o *Optimizer) RunShortRange() error {
	return o.sweep(o.shortProfile())
}

func (o *Optimizer) runPasses(prof profile) error {
	for iter := 0; iter < o.Params.MaxIterations; iter++ {
		improvement, err := o.sweepWithTotal(prof)
		if err != nil {
			return err
		}
		log.Debugf("spr pass %d: total improvement %.6g", iter, improvement)
		if improvement < o.Params.ThreshEntireTreeImprovement {
			return nil
		}
	}
	return nil
}

func (o *Optimizer) sweep(prof profile) error {
	_, err := o.sweepWithTotal(prof)
	return err
}

// sweepWithTotal visits every non-root node once, attempting a branch
// length re-estimation and a topology move at each, and returns the sum of
// the log-likelihood gains found this pass. Nodes detached by an earlier
// move in the same pass are skipped by optimizeNode.
func (o *Optimizer) sweepWithTotal(prof profile) (float64, error) {
	total := 0.0
	// Nodes can be created (grafted) mid-sweep by earlier moves in this
	// same pass; snapshotting the length up front visits only nodes that
	// existed when the sweep began, matching a single well-defined pass.
	n := len(o.Tree.Nodes)
	for idx := 0; idx < n; idx++ {
		if idx == o.Tree.Root {
			continue
		}
		gain, err := o.optimizeNode(idx, prof)
		if err != nil {
			return total, err
		}
		total += gain
	}
	return total, nil
}

// optimizeNode re-estimates idx's own branch length and, if a better
// attachment point exists elsewhere in the tree, moves idx there. It
// returns the log-likelihood gain achieved (0 if nothing improved).
func (o *Optimizer) optimizeNode(idx int, prof profile) (float64, error) {
	n := &o.Tree.Nodes[idx]
	if n.Parent == -1 {
		return 0, nil
	}
	// A parent left detached by an earlier Prune in this sweep keeps its
	// old Parent index but is no longer that node's child: skip it.
	if p := &o.Tree.Nodes[n.Parent]; p.Children[0] != idx && p.Children[1] != idx {
		return 0, nil
	}
	parentUpper := o.Tree.UpperFor(idx)
	if parentUpper == nil {
		return 0, nil
	}
	lower := n.OwnLower()
	if lower == nil {
		return 0, nil
	}

	gain := 0.0

	currentCost, err := region.SubtreeCost(parentUpper, lower, n.BranchLength, o.Model)
	if err != nil {
		currentCost = math.Inf(-1)
	}

	if currentCost < prof.threshPlacement {
		newLen, err := blen.Estimate(parentUpper, lower, o.Model, o.Params.MaxBlength, o.Params.EpsBlength)
		if err == nil && newLen != n.BranchLength {
			newCost, err := region.SubtreeCost(parentUpper, lower, newLen, o.Model)
			if err == nil && newCost > currentCost {
				gain += newCost - currentCost
				n.BranchLength = newLen
				currentCost = newCost
				o.Tree.MarkOutdated(idx)
				if err := o.Tree.Refresh([]int{idx}); err != nil {
					return gain, err
				}
			}
		}
	}

	moveGain, err := o.relocate(idx, currentCost, prof)
	if err != nil {
		return gain, err
	}
	return gain + moveGain, nil
}

// candidate is one scored reattachment edge found while searching for a
// better home for the subtree rooted at the node being optimized.
type candidate struct {
	node   int
	onNode bool
	cost   float64
}

// relocate implements spec.md §4.9 steps 3-4. It logically prunes the
// subtree rooted at idx (via Tree.Prune, which detaches idx without
// discarding either idx's or the rest of the tree's caches), lets
// Tree.Refresh lazily recompute the local upper-lists the prune left stale
// (the frontier bookkeeping spec.md calls need_updating: here it is the
// same Outdated-flag propagation §4.7 already uses, seeded at exactly the
// two points a prune invalidates — the promoted sibling and the
// grandparent), then searches outward from that neighborhood for a better
// edge. If none beats idx's current placement by more than
// prof.threshPlacement, idx is grafted back exactly where it started.
func (o *Optimizer) relocate(idx int, currentCost float64, prof profile) (float64, error) {
	n := &o.Tree.Nodes[idx]
	parent := n.Parent
	sibIdx := o.Tree.Sibling(idx)
	if parent == -1 || sibIdx == -1 {
		return 0, nil
	}
	subtreeLen := n.BranchLength
	lower := n.OwnLower()

	sibLen := o.Tree.Nodes[sibIdx].BranchLength
	parentLen := o.Tree.Nodes[parent].BranchLength
	combined := sibLen + parentLen
	origFrac := 0.0
	if combined > 0 {
		origFrac = parentLen / combined
	}

	sib, err := o.Tree.Prune(idx)
	if err != nil {
		return 0, err
	}
	grand := o.Tree.Nodes[sib].Parent
	roots := []int{sib}
	if grand != -1 {
		// Prune leaves grand's own Lower built from the now-orphaned
		// parent; nothing else marks it outdated on its own since sib's
		// lower value did not itself change.
		o.Tree.MarkOutdated(grand)
		roots = append(roots, grand)
	}
	if err := o.Tree.Refresh(roots); err != nil {
		return 0, err
	}

	best := o.searchOutward(sib, grand, subtreeLen, lower, currentCost, prof)

	if best.node == -1 || best.cost-currentCost <= prof.threshPlacement {
		internalIdx := o.Tree.Attach(idx, sib, origFrac, subtreeLen)
		if err := o.Tree.Refresh([]int{internalIdx}); err != nil {
			return 0, err
		}
		return 0, nil
	}

	frac := 0.5
	if best.onNode {
		frac = 1.0
	}
	internalIdx := o.Tree.Attach(idx, best.node, frac, subtreeLen)
	if err := o.Tree.Refresh([]int{internalIdx}); err != nil {
		return 0, err
	}

	gain := best.cost - currentCost
	parentUpper := o.Tree.UpperFor(idx)
	if parentUpper != nil {
		if newLen, err := blen.Estimate(parentUpper, lower, o.Model, o.Params.MaxBlength, o.Params.EpsBlength); err == nil {
			o.Tree.Nodes[idx].BranchLength = newLen
			o.Tree.MarkOutdated(idx)
			if err := o.Tree.Refresh([]int{idx}); err != nil {
				return gain, err
			}
			if cost, err := region.SubtreeCost(parentUpper, lower, newLen, o.Model); err == nil {
				gain = cost - currentCost
			}
		}
	}
	return gain, nil
}

// searchOutward implements spec.md §4.9 step 3's traversal proper: starting
// from sib (which now occupies the pruned subtree's old slot) and grand
// (its new parent), it alternates one step of child-side exploration
// (descending into sib's own subtree) with one step of parent-side
// exploration (climbing to the next ancestor and fanning out into that
// ancestor's other child), scoring both a mid-branch and an on-node
// attachment at every node visited via SubtreeCost. Each direction carries
// its own failure counter, reset whenever a visited node scores within
// prof.threshLogLH of the current best, and stopped once it reaches
// prof.failureLimit unless prof.strict keeps it going regardless.
func (o *Optimizer) searchOutward(sib, grand int, subtreeLen float64, lower *region.RegionList, currentCost float64, prof profile) candidate {
	best := candidate{node: -1, cost: currentCost}

	score := func(idx int) {
		if mid := o.midSubtreeCost(idx, subtreeLen, lower); mid > best.cost {
			best = candidate{node: idx, onNode: false, cost: mid}
		}
		if onNode := o.onNodeSubtreeCost(idx, subtreeLen, lower); onNode > best.cost {
			best = candidate{node: idx, onNode: true, cost: onNode}
		}
	}
	nextFailures := func(prev, idx int) int {
		c := math.Max(o.midSubtreeCost(idx, subtreeLen, lower), o.onNodeSubtreeCost(idx, subtreeLen, lower))
		if c >= best.cost-prof.threshLogLH {
			return 0
		}
		return prev + 1
	}

	type frontier struct {
		idx      int
		failures int
	}
	childStack := []frontier{{idx: sib}}
	pcIdx, pcFrom, pcFailures := grand, sib, 0
	haveParent := grand != -1

	score(sib)

	toggleChild := true
	for len(childStack) > 0 || haveParent {
		if toggleChild && len(childStack) > 0 {
			e := childStack[len(childStack)-1]
			childStack = childStack[:len(childStack)-1]
			cn := &o.Tree.Nodes[e.idx]
			if !cn.IsLeaf() {
				for _, c := range cn.Children {
					if c == -1 {
						continue
					}
					score(c)
					failures := nextFailures(e.failures, c)
					if failures >= prof.failureLimit && !prof.strict {
						continue
					}
					childStack = append(childStack, frontier{idx: c, failures: failures})
				}
			}
			if haveParent {
				toggleChild = false
			}
			continue
		}
		if haveParent {
			an := &o.Tree.Nodes[pcIdx]
			if pcIdx != o.Tree.Root {
				score(pcIdx)
			}
			for _, c := range an.Children {
				if c == -1 || c == pcFrom {
					continue
				}
				score(c)
				failures := nextFailures(pcFailures, c)
				if failures < prof.failureLimit || prof.strict {
					childStack = append(childStack, frontier{idx: c, failures: failures})
				}
			}
			next := an.Parent
			if next == -1 {
				haveParent = false
			} else {
				failures := nextFailures(pcFailures, pcIdx)
				if failures < prof.failureLimit || prof.strict {
					pcFrom, pcIdx, pcFailures = pcIdx, next, failures
				} else {
					haveParent = false
				}
			}
			toggleChild = true
			continue
		}
		toggleChild = true
	}

	return best
}

func (o *Optimizer) midSubtreeCost(idx int, subtreeLen float64, lower *region.RegionList) float64 {
	n := &o.Tree.Nodes[idx]
	if n.MidBranch == nil {
		return math.Inf(-1)
	}
	cost, err := region.SubtreeCost(n.MidBranch, lower, subtreeLen, o.Model)
	if err != nil {
		return math.Inf(-1)
	}
	return cost
}

func (o *Optimizer) onNodeSubtreeCost(idx int, subtreeLen float64, lower *region.RegionList) float64 {
	n := &o.Tree.Nodes[idx]
	ctx := n.Total
	if ctx == nil {
		ctx = n.OwnLower()
	}
	if ctx == nil {
		return math.Inf(-1)
	}
	cost, err := region.SubtreeCost(ctx, lower, subtreeLen, o.Model)
	if err != nil {
		return math.Inf(-1)
	}
	return cost
}
