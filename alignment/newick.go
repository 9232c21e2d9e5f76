package alignment

import (
	"fmt"
	"io"

	gotreenewick "github.com/evolbioinfo/gotree/io/newick"
	gotreetree "github.com/evolbioinfo/gotree/tree"
)

// ReadBackboneOrder parses a Newick tree produced by another tool (a
// previous run, or a reference topology) via gotree and returns its tip
// names in postorder, so a fresh placement run can reproduce that order
// instead of falling back to OrderTaxa's divergence heuristic. Every name
// returned must still have a matching entry in the Alignment being placed;
// callers filter names that don't.
func ReadBackboneOrder(r io.Reader) ([]string, error) {
	t, err := gotreenewick.NewParser(r).Parse()
	if err != nil {
		return nil, fmt.Errorf("alignment: parsing backbone tree: %w", err)
	}
	return tipOrder(t), nil
}

// tipOrder walks t in postorder and collects leaf names in the order
// visited.
func tipOrder(t *gotreetree.Tree) []string {
	var names []string
	t.PostOrder(func(cur, prev *gotreetree.Node, e *gotreetree.Edge) bool {
		if cur.Tip() {
			names = append(names, cur.Name())
		}
		return true
	})
	return names
}
