// Package alignment turns FASTA, PHYLIP, and the compact per-taxon diff
// format of spec.md §6 into a reference sequence plus, for each taxon, a
// region.RegionList compressed relative to that reference.
package alignment

import "strings"

// Alphabet maps single-letter states to 0-based indices and back, and
// resolves IUPAC ambiguity codes to a soft one-hot support set.
type Alphabet struct {
	Letters string
	index   map[byte]int
}

// DNA is the 4-letter nucleotide alphabet.
var DNA = newAlphabet("ACGT")

// Protein is the 20-letter amino acid alphabet.
var Protein = newAlphabet("ARNDCQEGHILKMFPSTWYV")

func newAlphabet(letters string) *Alphabet {
	a := &Alphabet{Letters: letters, index: make(map[byte]int, len(letters))}
	for i := 0; i < len(letters); i++ {
		a.index[letters[i]] = i
	}
	return a
}

func (a *Alphabet) NStates() int { return len(a.Letters) }

// Index returns the 0-based state index of an upper-case concrete letter,
// and false if the letter is not part of this alphabet's concrete states.
func (a *Alphabet) Index(c byte) (int, bool) {
	i, ok := a.index[c]
	return i, ok
}

// dnaAmbiguity maps IUPAC nucleotide ambiguity codes to their implied
// concrete-state subset.
var dnaAmbiguity = map[byte]string{
	'R': "AG", 'Y': "CT", 'W': "AT", 'S': "CG", 'M': "AC", 'K': "GT",
	'B': "CGT", 'H': "ACT", 'D': "AGT", 'V': "ACG",
}

// isGapOrMissing reports whether c should decode to N (or DEL): gaps,
// missing-data placeholders, and the explicit ambiguous-everything codes.
func isGapOrMissing(c byte) bool {
	switch c {
	case '-', '.', '~', '?', 'X', 'N', 'x', 'n':
		return true
	}
	return false
}

// SoftOneHot returns a uniform likelihood vector over the states implied by
// an IUPAC ambiguity letter, or nil if c is not an ambiguity code in this
// alphabet.
func (a *Alphabet) SoftOneHot(c byte) []float64 {
	set, ok := dnaAmbiguity[c]
	if !ok || a != DNA {
		return nil
	}
	vec := make([]float64, a.NStates())
	w := 1.0 / float64(len(set))
	for i := 0; i < len(set); i++ {
		idx, ok := a.Index(set[i])
		if ok {
			vec[idx] = w
		}
	}
	return vec
}

// upperSeq upper-cases a sequence, matching the case-insensitive
// FASTA/PHYLIP convention.
func upperSeq(s string) string {
	return strings.ToUpper(s)
}
