// Package engine wires the whole placement/SPR loop together: build a
// tree from an alignment by repeated stepwise placement, then alternate
// topology search and branch-length re-estimation until the tree stops
// improving or the iteration cap is hit.
package engine

import (
	"github.com/op/go-logging"

	"github.com/mrrlab/maple/alignment"
	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/phylotree"
	"github.com/mrrlab/maple/placer"
	"github.com/mrrlab/maple/region"
	"github.com/mrrlab/maple/spr"
)

var log = logging.MustGetLogger("engine")

// Engine owns the tree being built/refined and the collaborators that
// operate on it.
type Engine struct {
	Tree   *phylotree.Tree
	Model  region.Model
	Params *params.Params

	placer *placer.Placer
	spr    *spr.Optimizer

	// Trajectory records the tree log-likelihood after every placement
	// and every SPR/branch-length pass, for diagnostics.
	Trajectory []float64
}

// New creates an Engine ready to build a tree from scratch.
func New(model region.Model, p *params.Params) *Engine {
	t := phylotree.New(model, p)
	return &Engine{
		Tree:   t,
		Model:  model,
		Params: p,
		placer: placer.New(t, model, p),
		spr:    spr.New(t, model, p),
	}
}

// Result is the summary a caller (cmd/maple) reports after a run.
type Result struct {
	Newick        string
	LogLikelihood float64
	Trajectory    []float64
	Taxa          int
}

// Progress is called after every placement and every refinement pass, for
// callers (checkpointing, the CLI) that want to react as the run
// progresses. placed is the number of taxa placed so far during Build
// (pass is then 0), or -1 during Refine (pass is then the pass number).
type Progress func(placed int, pass int, lnL float64)

// Build places every taxon of align onto the tree in order, defaulting to
// divergence-to-reference ordering unless backboneOrder names a specific
// sequence (produced by alignment.ReadBackboneOrder from a prior run's
// tree). Unknown names in backboneOrder are ignored; taxa it omits are
// appended afterward in the default order.
func (e *Engine) Build(align *alignment.Alignment, backboneOrder []string, progress Progress) error {
	order := e.resolveOrder(align, backboneOrder)
	for i, name := range order {
		sample, ok := align.Sample(name)
		if !ok {
			continue
		}
		if err := e.placer.Place(name, sample); err != nil {
			return err
		}
		if progress != nil {
			progress(i+1, 0, e.LogLikelihood())
		}
		e.recordTrajectory()
	}
	return nil
}

func (e *Engine) resolveOrder(align *alignment.Alignment, backboneOrder []string) []string {
	if len(backboneOrder) == 0 {
		return placer.OrderTaxa(align.Names, align.Diffs, e.Params)
	}
	seen := make(map[string]bool, len(backboneOrder))
	ordered := make([]string, 0, len(align.Names))
	for _, name := range backboneOrder {
		if _, ok := align.Sample(name); ok && !seen[name] {
			ordered = append(ordered, name)
			seen[name] = true
		}
	}
	var remaining []string
	for _, name := range align.Names {
		if !seen[name] {
			remaining = append(remaining, name)
		}
	}
	ordered = append(ordered, placer.OrderTaxa(remaining, align.Diffs, e.Params)...)
	return ordered
}

// Refine alternates full SPR passes with the engine's iteration cap
// (Params.MaxIterations), stopping early once a pass improves the tree by
// less than Params.ThreshEntireTreeImprovement. It returns the number of
// passes actually run.
func (e *Engine) Refine(progress Progress) (int, error) {
	for pass := 1; pass <= e.Params.MaxIterations; pass++ {
		before := e.LogLikelihood()
		if err := e.spr.Run(); err != nil {
			return pass, err
		}
		e.recordTrajectory()
		after := e.LogLikelihood()
		if progress != nil {
			progress(-1, pass, after)
		}
		log.Infof("refine pass %d: lnL %.4f -> %.4f", pass, before, after)
		if after-before < e.Params.ThreshEntireTreeImprovement {
			return pass, nil
		}
	}
	return e.Params.MaxIterations, nil
}

// Run builds the tree from align and refines it to convergence, returning
// a summary suitable for a JSON run report.
func (e *Engine) Run(align *alignment.Alignment, backboneOrder []string, progress Progress) (*Result, error) {
	if err := e.Build(align, backboneOrder, progress); err != nil {
		return nil, err
	}
	if _, err := e.Refine(progress); err != nil {
		return nil, err
	}
	return &Result{
		Newick:        e.Tree.WriteNewick(),
		LogLikelihood: e.LogLikelihood(),
		Trajectory:    e.Trajectory,
		Taxa:          align.NTaxa(),
	}, nil
}

// LogLikelihood scores the whole tree by evaluating the root's own lower
// list against the model's stationary frequencies.
func (e *Engine) LogLikelihood() float64 {
	if e.Tree.Root == -1 {
		return 0
	}
	lower := e.Tree.Nodes[e.Tree.Root].OwnLower()
	if lower == nil {
		return 0
	}
	return region.RootLikelihood(lower, e.Model)
}

func (e *Engine) recordTrajectory() {
	e.Trajectory = append(e.Trajectory, e.LogLikelihood())
}
