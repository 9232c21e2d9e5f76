package alignment

import "github.com/mrrlab/maple/region"

// Reference is the reference genome the engine places every taxon against:
// its 0-based state per 1-based position, plus the alphabet it was decoded
// with.
type Reference struct {
	Alphabet *Alphabet
	States   []int // 1-based indexing; States[0] unused
}

func (r *Reference) L() int { return len(r.States) - 1 }

// State returns the 0-based reference state at 1-based position pos.
func (r *Reference) State(pos int) int { return r.States[pos] }

// Alignment is the core package's Alignment collaborator: a reference
// sequence plus, for each taxon in insertion order, its compressed diff
// against that reference.
type Alignment struct {
	Ref   *Reference
	Names []string
	Diffs map[string]*region.RegionList
}

func (a *Alignment) NTaxa() int { return len(a.Names) }

// Sample returns the RegionList for a taxon by name.
func (a *Alignment) Sample(name string) (*region.RegionList, bool) {
	rl, ok := a.Diffs[name]
	return rl, ok
}
