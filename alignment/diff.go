package alignment

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mrrlab/maple/region"
)

// ParseError carries the file/line context spec.md §7 requires for every
// input parse failure.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// ReadDiff parses the compact per-taxon diff format of spec.md §6:
//
//	>REF
//	<reference sequence, one or more lines>
//	>taxon_name
//	<state>\t<position>[\t<length>]
//	...
func ReadDiff(r io.Reader, alphabet *Alphabet) (*Alignment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)

	lineNo := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		lineNo++
		return scanner.Text(), true
	}

	header, ok := next()
	if !ok || header != ">REF" {
		return nil, &ParseError{lineNo, "expected '>REF' as the first line"}
	}

	var refBuf strings.Builder
	line, ok := next()
	for ok && !strings.HasPrefix(line, ">") {
		refBuf.WriteString(strings.TrimSpace(line))
		line, ok = next()
	}
	refSeq := upperSeq(refBuf.String())
	if len(refSeq) == 0 {
		return nil, &ParseError{lineNo, "empty reference sequence"}
	}

	ref := &Reference{Alphabet: alphabet, States: make([]int, len(refSeq)+1)}
	for i := 0; i < len(refSeq); i++ {
		idx, ok := alphabet.Index(refSeq[i])
		if !ok {
			return nil, &ParseError{lineNo, fmt.Sprintf("reference contains non-concrete state %q at position %d", refSeq[i], i+1)}
		}
		ref.States[i+1] = idx
	}
	l := ref.L()

	align := &Alignment{Ref: ref, Diffs: make(map[string]*region.RegionList)}

	for ok {
		if !strings.HasPrefix(line, ">") {
			return nil, &ParseError{lineNo, "expected '>taxon_name'"}
		}
		name := strings.TrimPrefix(line, ">")
		align.Names = append(align.Names, name)

		rl := region.NewRegionList(l, 8)
		lastEnd := 0

		line, ok = next()
		for ok && !strings.HasPrefix(line, ">") {
			if strings.TrimSpace(line) == "" {
				line, ok = next()
				continue
			}
			fields := strings.Split(line, "\t")
			if len(fields) < 2 {
				return nil, &ParseError{lineNo, "expected '<state>\\t<position>[\\t<length>]'"}
			}
			state := fields[0]
			if len(state) != 1 {
				return nil, &ParseError{lineNo, "state must be a single character"}
			}
			pos, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, &ParseError{lineNo, "invalid position: " + fields[1]}
			}

			isRun := state[0] == 'N' || state[0] == '-'
			runLen := 1
			if len(fields) >= 3 {
				runLen, err = strconv.Atoi(fields[2])
				if err != nil {
					return nil, &ParseError{lineNo, "invalid length: " + fields[2]}
				}
				if !isRun {
					return nil, &ParseError{lineNo, "length is only valid for N/- runs"}
				}
			} else if isRun {
				return nil, &ParseError{lineNo, "N/- runs require a length"}
			}

			if pos < 1 || pos+runLen-1 > l {
				return nil, &ParseError{lineNo, fmt.Sprintf("position %d (+length %d) out of range [1,%d]", pos, runLen, l)}
			}
			if pos <= lastEnd {
				return nil, &ParseError{lineNo, "positions within a taxon must be strictly increasing"}
			}

			if err := appendDiffEntry(rl, alphabet, state[0], pos, runLen); err != nil {
				return nil, &ParseError{lineNo, err.Error()}
			}
			lastEnd = pos + runLen - 1
			line, ok = next()
		}
		if lastEnd < l {
			rl.AppendR(region.TypeR, l, region.NoPlength, region.NoPlength)
		}
		align.Diffs[name] = rl
	}

	return align, nil
}

// appendDiffEntry decodes one diff-format record into a Region and appends
// it to rl, first back-filling the implicit R run since the previous entry.
// Every entry in a diff file represents a departure from the reference by
// construction, so a concrete state is always encoded as its own StateType,
// never simplified against the reference.
func appendDiffEntry(rl *region.RegionList, alphabet *Alphabet, state byte, pos, runLen int) error {
	lastCovered := 0
	if n := len(rl.Regions); n > 0 {
		lastCovered = rl.Regions[n-1].Position
	}
	if lastCovered < pos-1 {
		rl.AppendR(region.TypeR, pos-1, region.NoPlength, region.NoPlength)
	}

	end := pos + runLen - 1
	switch {
	case state == 'N':
		rl.AppendR(region.TypeN, end, region.NoPlength, region.NoPlength)
	case state == '-':
		rl.AppendR(region.TypeDel, end, region.NoPlength, region.NoPlength)
	default:
		u := toUpperByte(state)
		if vec := alphabet.SoftOneHot(u); vec != nil {
			rl.AppendO(pos, region.NoPlength, region.NoPlength, vec)
			return nil
		}
		if isGapOrMissing(u) {
			rl.AppendR(region.TypeN, end, region.NoPlength, region.NoPlength)
			return nil
		}
		idx, ok := alphabet.Index(u)
		if !ok {
			return fmt.Errorf("unrecognized state character %q", state)
		}
		rl.AppendR(region.StateType(idx), pos, region.NoPlength, region.NoPlength)
	}
	return nil
}

func toUpperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}
