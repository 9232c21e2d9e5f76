// Package params holds the process-wide numeric configuration for the
// placement/SPR engine. There is no global mutable state anywhere else in
// this module: every operation that needs a threshold takes a *Params.
package params

// Params collects the thresholds and knobs referenced throughout spec.md
// §6. Zero-valued fields are not safe to use; call Defaults() to obtain a
// populated record and override individual fields from the CLI.
type Params struct {
	// HammingWeight weighs concrete mismatches vs ambiguous runs when
	// ordering taxa by divergence to the reference before placement.
	HammingWeight float64

	// ThresholdProb is the minimum probability below which an O run's
	// entries are treated as zero, and above which an O run collapses
	// to a concrete state.
	ThresholdProb float64

	// ThreshDiffUpdate and ThreshDiffFoldUpdate are the absolute and
	// relative floors used to decide whether a recomputed RegionList
	// differs enough from its cached predecessor to keep propagating
	// a refresh outward.
	ThreshDiffUpdate     float64
	ThreshDiffFoldUpdate float64

	// Branch length caps, expressed as multiples of 1/L (L = genome
	// length) once resolved by ResolveLengths.
	MinBlengthFactor    float64
	MaxBlengthFactor    float64
	MinBlengthMidFactor float64

	// Resolved branch-length caps (set by ResolveLengths given L).
	MinBlength    float64
	MaxBlength    float64
	MinBlengthMid float64

	// DefaultBlength is the starting branch length tried for a newly
	// placed taxon before halving/doubling search.
	DefaultBlength float64

	// EpsBlength is the bisection sensitivity used by the
	// branch-length estimator (spec.md §4.6).
	EpsBlength float64

	// Best-first traversal failure caps.
	FailureLimitSample                int
	FailureLimitSubtree               int
	FailureLimitSubtreeShortSearch    int

	// Log-likelihood gating thresholds.
	ThreshLogLHSample              float64
	ThreshLogLHSubtree             float64
	ThreshLogLHSubtreeShortSearch  float64
	ThreshLogLHFailure             float64

	// Whether gating conditions AND (strict) or OR the failure-count
	// and log-likelihood criteria when deciding to stop a best-first
	// search branch.
	StrictStopSeekingPlacementSample  bool
	StrictStopSeekingPlacementSubtree bool

	// MutationUpdatePeriod is the number of placements between
	// pseudocount-driven rate matrix re-estimations.
	MutationUpdatePeriod int

	// SPR acceptance and convergence thresholds.
	ThreshPlacementCost           float64
	ThreshPlacementCostShortSearch float64
	ThreshEntireTreeImprovement   float64

	// MaxIterations caps the number of SPR/branch-length alternation
	// passes performed by the engine even if convergence has not been
	// reached (spec.md §5, "configured iteration cap").
	MaxIterations int

	// CheckpointPeriodSeconds is the minimum number of seconds between two
	// checkpoint saves (see the checkpoint package).
	CheckpointPeriodSeconds float64
}

// Defaults returns a Params record populated with the values used by the
// reference tool for closely-related-genome placement (viral-genome scale
// alignments).
func Defaults() *Params {
	return &Params{
		HammingWeight:        1000,
		ThresholdProb:        1e-7,
		ThreshDiffUpdate:     1e-7,
		ThreshDiffFoldUpdate: 1.001,

		MinBlengthFactor:    0.2,
		MaxBlengthFactor:    80,
		MinBlengthMidFactor: 0.02,

		DefaultBlength: 1e-4,
		EpsBlength:     1e-5,

		FailureLimitSample:             4,
		FailureLimitSubtree:            4,
		FailureLimitSubtreeShortSearch: 2,

		ThreshLogLHSample:             1,
		ThreshLogLHSubtree:            1,
		ThreshLogLHSubtreeShortSearch: 0.5,
		ThreshLogLHFailure:            0.05,

		StrictStopSeekingPlacementSample:  false,
		StrictStopSeekingPlacementSubtree: false,

		MutationUpdatePeriod: 100,

		ThreshPlacementCost:            1e-3,
		ThreshPlacementCostShortSearch: 1e-2,
		ThreshEntireTreeImprovement:    1,

		MaxIterations: 5,

		CheckpointPeriodSeconds: 60,
	}
}

// ResolveLengths derives the absolute branch-length caps from the genome
// length L, per spec.md §6 ("branch-length caps as multiples of 1/L").
func (p *Params) ResolveLengths(l int) {
	inv := 1.0 / float64(l)
	p.MinBlength = p.MinBlengthFactor * inv
	p.MaxBlength = p.MaxBlengthFactor * inv
	p.MinBlengthMid = p.MinBlengthMidFactor * inv
	if p.DefaultBlength < p.MinBlength {
		p.DefaultBlength = p.MinBlength
	}
}
