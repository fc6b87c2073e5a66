// Package anchor defines the line/character ranges that plan comments and
// review threads are attached to.
package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/colonyops/hive-review/internal/core/hiveerr"
)

// Position is a zero-based character offset on a line. Line numbers follow
// the convention of whoever created the anchor; the engine never renumbers.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions, inclusive of both lines.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Line returns a range covering a single line.
func Line(n int) Range {
	return Range{Start: Position{Line: n}, End: Position{Line: n}}
}

// Lines returns a range covering lines start through end.
func Lines(start, end int) Range {
	return Range{Start: Position{Line: start}, End: Position{Line: end}}
}

// IsSingleLine returns true if the range starts and ends on the same line.
func (r Range) IsSingleLine() bool {
	return r.Start.Line == r.End.Line
}

// Validate checks that the range is non-negative and ordered.
func (r Range) Validate() error {
	if r.Start.Line < 0 || r.End.Line < 0 || r.Start.Character < 0 || r.End.Character < 0 {
		return hiveerr.Invalid("range", "positions must not be negative")
	}
	if r.End.Line < r.Start.Line || (r.End.Line == r.Start.Line && r.End.Character < r.Start.Character) {
		return hiveerr.Invalid("range", "end must not precede start")
	}
	return nil
}

// Excerpt returns the lines of content covered by r. Line numbers are
// treated as one-based when zeroBased is false. Lines past the end of the
// content are omitted.
func (r Range) Excerpt(content string, zeroBased bool) []string {
	lines := strings.Split(content, "\n")
	start, end := r.Start.Line, r.End.Line
	if !zeroBased {
		start--
		end--
	}
	start = max(start, 0)
	if start >= len(lines) || end < start {
		return nil
	}
	end = min(end, len(lines)-1)
	return lines[start : end+1]
}

// Hash returns a SHA256 hex digest of the excerpt covered by r. An empty
// string is returned when the range lies entirely outside content.
func (r Range) Hash(content string, zeroBased bool) string {
	excerpt := r.Excerpt(content, zeroBased)
	if excerpt == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.Join(excerpt, "\n")))
	return hex.EncodeToString(sum[:])
}
