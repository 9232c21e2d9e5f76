// Package placer implements the stepwise tree-building loop of spec.md
// §4.8: taxa are ordered by divergence from the reference, then each is
// placed onto the current tree by a best-first search over candidate
// attachment edges, a short fine-tuning pass, and a branch-length
// sub-search, before being spliced in and its neighborhood cache-refreshed.
package placer

import (
	"sort"

	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/region"
)

// OrderTaxa sorts names by ascending distance to the reference, so that
// the most informative (least divergent) taxa are placed first (spec.md
// §4.8). Distance counts concrete mismatches weighted by p.HammingWeight
// plus the number of ambiguous (N/O) positions.
func OrderTaxa(names []string, samples map[string]*region.RegionList, p *params.Params) []string {
	ordered := append([]string(nil), names...)
	dist := make(map[string]float64, len(names))
	for _, name := range ordered {
		dist[name] = divergence(samples[name], p)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return dist[ordered[i]] < dist[ordered[j]]
	})
	return ordered
}

// divergence approximates a taxon's distance to the reference by walking
// its own RegionList: every non-R run contributes, concrete mismatches at
// p.HammingWeight per position and ambiguous (N/O) runs at 1 per position.
func divergence(rl *region.RegionList, p *params.Params) float64 {
	if rl == nil {
		return 0
	}
	d := 0.0
	prev := 0
	for i := range rl.Regions {
		r := &rl.Regions[i]
		runLen := float64(r.Position - prev)
		switch r.Type {
		case region.TypeR:
			// Agrees with the reference everywhere in the run.
		case region.TypeN, region.TypeDel, region.TypeO:
			d += runLen
		default:
			d += runLen * p.HammingWeight
		}
		prev = r.Position
	}
	return d
}
