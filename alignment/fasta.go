package alignment

import (
	"fmt"
	"io"

	godalign "github.com/evolbioinfo/goalign/align"
	fastaio "github.com/evolbioinfo/goalign/io/fasta"
	phylipio "github.com/evolbioinfo/goalign/io/phylip"

	"github.com/mrrlab/maple/region"
)

// ReadFasta parses a FASTA multiple sequence alignment via goalign and
// converts it to the reference+diffs shape the placement engine operates
// on. The first sequence is taken as the reference; every sequence, the
// first one included, is diffed against it in memory and kept as a taxon
// (spec.md §6 lists FASTA as an accepted input format alongside the
// compact diff format).
func ReadFasta(r io.Reader, alphabet *Alphabet) (*Alignment, error) {
	parsed, err := fastaio.NewParser(r).Parse()
	if err != nil {
		return nil, err
	}
	return fromGoalign(parsed, alphabet)
}

// ReadPhylip parses interleaved or sequential PHYLIP via goalign. The
// underlying parser auto-detects the block layout, so interleaved is
// accepted for API compatibility but does not otherwise affect parsing.
func ReadPhylip(r io.Reader, alphabet *Alphabet, interleaved bool) (*Alignment, error) {
	_ = interleaved
	parsed, err := phylipio.NewParser(r, false).Parse()
	if err != nil {
		return nil, err
	}
	return fromGoalign(parsed, alphabet)
}

func fromGoalign(a godalign.Alignment, alphabet *Alphabet) (*Alignment, error) {
	if a.NbSequences() == 0 {
		return nil, fmt.Errorf("alignment: empty alignment")
	}

	var refName, refSeq string
	var names []string
	var seqs []string
	first := true
	a.Iterate(func(name string, sequence string) bool {
		if first {
			refName, refSeq = name, sequence
			first = false
		}
		names = append(names, name)
		seqs = append(seqs, sequence)
		return true
	})
	_ = refName

	refSeqU := upperSeq(refSeq)
	ref := &Reference{Alphabet: alphabet, States: make([]int, len(refSeqU)+1)}
	for i := 0; i < len(refSeqU); i++ {
		idx, ok := alphabet.Index(refSeqU[i])
		if !ok {
			if isGapOrMissing(refSeqU[i]) {
				return nil, fmt.Errorf("alignment: reference sequence %q has a gap/ambiguous site at column %d", refName, i+1)
			}
			return nil, fmt.Errorf("alignment: reference sequence %q has unrecognized state %q at column %d", refName, refSeqU[i], i+1)
		}
		ref.States[i+1] = idx
	}

	align := &Alignment{Ref: ref, Diffs: make(map[string]*region.RegionList)}
	for k, name := range names {
		rl, err := diffAgainstReference(ref, alphabet, upperSeq(seqs[k]))
		if err != nil {
			return nil, fmt.Errorf("alignment: taxon %q: %w", name, err)
		}
		align.Names = append(align.Names, name)
		align.Diffs[name] = rl
	}
	return align, nil
}

// diffAgainstReference builds the compressed RegionList of one aligned
// sequence relative to ref, one column at a time.
func diffAgainstReference(ref *Reference, alphabet *Alphabet, seq string) (*region.RegionList, error) {
	l := ref.L()
	if len(seq) != l {
		return nil, fmt.Errorf("length %d does not match reference length %d", len(seq), l)
	}
	rl := region.NewRegionList(l, l/50+1)
	for pos := 1; pos <= l; pos++ {
		c := seq[pos-1]
		refState := ref.State(pos)

		switch {
		case isGapOrMissing(c):
			rl.AppendR(region.TypeN, pos, region.NoPlength, region.NoPlength)
		default:
			if vec := alphabet.SoftOneHot(c); vec != nil {
				rl.AppendO(pos, region.NoPlength, region.NoPlength, vec)
				continue
			}
			idx, ok := alphabet.Index(c)
			if !ok {
				return nil, fmt.Errorf("unrecognized state %q at column %d", c, pos)
			}
			if idx == refState {
				rl.AppendR(region.TypeR, pos, region.NoPlength, region.NoPlength)
			} else {
				rl.AppendR(region.StateType(idx), pos, region.NoPlength, region.NoPlength)
			}
		}
	}
	return rl, nil
}
