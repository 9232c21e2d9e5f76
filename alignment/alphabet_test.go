package alignment

import "testing"

func TestDNAIndexRoundTrips(t *testing.T) {
	for i, c := range []byte(DNA.Letters) {
		idx, ok := DNA.Index(c)
		if !ok || idx != i {
			t.Fatalf("DNA.Index(%q) = (%d, %v), want (%d, true)", c, idx, ok, i)
		}
	}
}

func TestSoftOneHotSpreadsMassOverAmbiguitySet(t *testing.T) {
	vec := DNA.SoftOneHot('R') // R = A or G
	if vec == nil {
		t.Fatalf("SoftOneHot('R') = nil, want a support vector")
	}
	aIdx, _ := DNA.Index('A')
	gIdx, _ := DNA.Index('G')
	cIdx, _ := DNA.Index('C')
	if vec[aIdx] != 0.5 || vec[gIdx] != 0.5 {
		t.Fatalf("SoftOneHot('R') = %v, want mass split evenly between A and G", vec)
	}
	if vec[cIdx] != 0 {
		t.Fatalf("SoftOneHot('R') should assign no mass to C, got %v", vec)
	}
}

func TestSoftOneHotReturnsNilForConcreteStates(t *testing.T) {
	if vec := DNA.SoftOneHot('A'); vec != nil {
		t.Fatalf("SoftOneHot('A') should be nil since A is concrete, got %v", vec)
	}
}

func TestSoftOneHotIsDNAOnly(t *testing.T) {
	if vec := Protein.SoftOneHot('R'); vec != nil {
		t.Fatalf("Protein.SoftOneHot('R') should be nil: ambiguity codes are DNA-specific, R is a concrete amino acid, got %v", vec)
	}
}
