package region

// Informativeness is the result of comparing two lower lists for the
// "less-informative-than" short-circuit used by the placer (spec.md §4.8
// step 1): when the winning node's lower list is more informative than the
// new taxon's, the new taxon is recorded as a minor sibling of that node.
type Informativeness int

const (
	// Neither list is a specialization of the other.
	Neither Informativeness = iota
	// Seq1MoreInformative means a is at least as resolved as b everywhere
	// and strictly more resolved somewhere (b is a subset/relaxation of a).
	Seq1MoreInformative
	// Seq2MoreInformative is the symmetric case.
	Seq2MoreInformative
	// Both means the two lists are compatible (one could be produced by
	// further ambiguating the other) but identical wherever both are
	// concrete: same information content, so either may be treated as
	// the "more informative" one, e.g. an exact match.
	Both
)

// dominates reports whether region ra carries at least as much information
// as rb at a shared segment (rb is N, or rb equals ra, or rb is an O run
// whose support set contains ra concrete/one-hot). ref is the reference
// state substituted for TypeR.
func dominates(ra, rb *Region, ref, nstates int) bool {
	if rb.Type == TypeN || rb.Type == TypeDel {
		return true
	}
	if ra.Type == rb.Type {
		if ra.Type != TypeO {
			return true
		}
	}
	av, aIsN := asVector(ra, ref, nstates)
	bv, bIsN := asVector(rb, ref, nstates)
	if aIsN {
		return bIsN
	}
	if bIsN {
		return false
	}
	// a dominates b iff every state with positive support in a also has
	// positive support in b, i.e. b's support set contains a's.
	for i := range av {
		if av[i] > 0 && bv[i] == 0 {
			return false
		}
	}
	return true
}

// Compare implements the two-list comparison from spec.md §4.8 step 1.
func Compare(a, b *RegionList, model Model) Informativeness {
	nstates := model.NStates()
	aDominatesEverywhere := true
	bDominatesEverywhere := true
	identicalEverywhere := true

	_ = Walk(a, b, func(start, end int, ra, rb *Region) bool {
		ref := model.RefState(start)
		if !dominates(ra, rb, ref, nstates) {
			aDominatesEverywhere = false
		}
		if !dominates(rb, ra, ref, nstates) {
			bDominatesEverywhere = false
		}
		if !(ra.Type == rb.Type && sameLikelihood(ra.Likelihood, rb.Likelihood)) {
			identicalEverywhere = false
		}
		return true
	})

	switch {
	case identicalEverywhere:
		return Both
	case aDominatesEverywhere && bDominatesEverywhere:
		return Both
	case aDominatesEverywhere:
		return Seq1MoreInformative
	case bDominatesEverywhere:
		return Seq2MoreInformative
	default:
		return Neither
	}
}

func sameLikelihood(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
