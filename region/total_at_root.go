package region

// ComputeTotalLhAtRoot stamps l (a bearing node's lower list) with the
// markers that let it stand in for "the view from the root": a concrete/R
// run that already has a PlengthObs2Node, or that gets a positive blength,
// has blength folded into PlengthObs2Node and PlengthObs2Root marked live,
// so a later MergeUpperLower against this list mixes in root frequencies
// (π) instead of treating the run as an ordinary one-hot observation; a
// concrete/R run with neither is copied unchanged. O runs are simply
// propagated the same distance. blength is the branch length separating
// l's bearing node from the root; pass 0 when l already is the root's own
// lower list (spec.md §4.7). Grounded on computeTotalLhAtRoot,
// original_source/alignment/seqregions.cpp:1078-1137.
func ComputeTotalLhAtRoot(l *RegionList, model Model, blength, thresholdProb float64) (*RegionList, error) {
	out := NewRegionList(l.L, len(l.Regions))
	for i := range l.Regions {
		r := &l.Regions[i]
		switch {
		case r.Type == TypeN || r.Type == TypeDel:
			out.AppendR(r.Type, r.Position, r.PlengthObs2Node, r.PlengthObs2Root)
		case r.Type == TypeO:
			total := blength
			if hasPlength(r.PlengthObs2Node) {
				total = r.PlengthObs2Node
				if blength > 0 {
					total += blength
				}
			}
			vec := propagateBackwardVec(r.Likelihood, total, model)
			appendSimplified(out, r.Position, r.PlengthObs2Node, r.PlengthObs2Root, vec, model.RefState(r.Position), thresholdProb)
		default:
			p2n, p2r := r.PlengthObs2Node, r.PlengthObs2Root
			switch {
			case hasPlength(p2n):
				if blength > 0 {
					p2n += blength
				}
				p2r = 0
			case blength > 0:
				p2n = blength
				p2r = 0
			}
			out.AppendR(r.Type, r.Position, p2n, p2r)
		}
	}
	if len(out.Regions) == 0 {
		return nil, ErrNullMerge
	}
	return out, nil
}
