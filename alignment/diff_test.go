package alignment

import (
	"strings"
	"testing"

	"github.com/mrrlab/maple/region"
)

func TestReadDiffParsesReferenceAndTaxa(t *testing.T) {
	input := ">REF\n" +
		"ACGTACGTAC\n" +
		">t1\n" +
		">t2\n" +
		"T\t3\n" +
		"N\t7\t2\n"

	align, err := ReadDiff(strings.NewReader(input), DNA)
	if err != nil {
		t.Fatalf("ReadDiff: %v", err)
	}
	if align.Ref.L() != 10 {
		t.Fatalf("reference length = %d, want 10", align.Ref.L())
	}
	if len(align.Names) != 2 || align.Names[0] != "t1" || align.Names[1] != "t2" {
		t.Fatalf("Names = %v, want [t1 t2]", align.Names)
	}

	t1, ok := align.Sample("t1")
	if !ok {
		t.Fatalf("missing sample for t1")
	}
	if len(t1.Regions) != 1 || t1.Regions[0].Type != region.TypeR {
		t.Fatalf("t1 (no diff entries) should be a single all-R run, got %+v", t1.Regions)
	}

	t2, ok := align.Sample("t2")
	if !ok {
		t.Fatalf("missing sample for t2")
	}
	var sawMismatch, sawN bool
	for _, r := range t2.Regions {
		if r.Type == region.StateType(DNA.index['T']) && r.Position == 3 {
			sawMismatch = true
		}
		if r.Type == region.TypeN && r.Position == 8 {
			sawN = true
		}
	}
	if !sawMismatch {
		t.Fatalf("t2 should have a mismatch run at position 3, got %+v", t2.Regions)
	}
	if !sawN {
		t.Fatalf("t2 should have an N run ending at position 8, got %+v", t2.Regions)
	}
}

func TestReadDiffRejectsMissingRefHeader(t *testing.T) {
	_, err := ReadDiff(strings.NewReader(">t1\nA\t1\n"), DNA)
	if err == nil {
		t.Fatalf("expected an error for input missing the >REF header")
	}
}

func TestReadDiffRejectsNonIncreasingPositions(t *testing.T) {
	input := ">REF\nACGTACGTAC\n>t1\nT\t5\nG\t3\n"
	_, err := ReadDiff(strings.NewReader(input), DNA)
	if err == nil {
		t.Fatalf("expected an error for non-increasing positions within a taxon")
	}
}

func TestReadDiffRejectsOutOfRangePosition(t *testing.T) {
	input := ">REF\nACGT\n>t1\nT\t9\n"
	_, err := ReadDiff(strings.NewReader(input), DNA)
	if err == nil {
		t.Fatalf("expected an error for a position beyond the reference length")
	}
}
