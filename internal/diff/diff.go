// Package diff wraps sergi/go-diff for the two comparisons lmctx needs: a
// character similarity ratio used to drop near-duplicate blocks, and a
// line-level hunk view used to preview a region replacement.
package diff

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff
type Line struct {
	Content string
	Type    LineType
}

// Hunk represents a group of changes
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Engine computes diffs and similarity ratios, caching ratios for repeated
// input pairs.
type Engine struct {
	dmp    *diffmatchpatch.DiffMatchPatch
	ratios *lru.Cache[cacheKey, float64]
}

// ratioCacheSize bounds the ratio cache of one engine.
const ratioCacheSize = 1024

type cacheKey struct {
	a, b uint64
}

// NewEngine creates a diff engine.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // Disable timeout for accuracy
	ratios, err := lru.New[cacheKey, float64](ratioCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Engine{dmp: dmp, ratios: ratios}
}

// DefaultEngine is a singleton engine for general use
var DefaultEngine = NewEngine()

// Ratio returns 2*M/(len(a)+len(b)) in runes, where M is the number of
// characters the two strings share in a minimal diff. Identical strings,
// including two empty ones, score 1.
func (e *Engine) Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}

	key := cacheKey{hash(a), hash(b)}
	if cached, ok := e.ratios.Get(key); ok {
		return cached
	}

	matched := 0
	for _, d := range e.dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}
	ratio := 2 * float64(matched) / float64(total)
	e.ratios.Add(key, ratio)
	return ratio
}

// Ratio is a convenience function using the default engine
func Ratio(a, b string) float64 {
	return DefaultEngine.Ratio(a, b)
}

// Hunks returns line hunks turning oldText into newText, with contextLines
// unchanged lines around each change.
func (e *Engine) Hunks(oldText, newText string, contextLines int) []Hunk {
	a, b, lineArray := e.dmp.DiffLinesToChars(oldText, newText)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)
	return groupIntoHunks(toOperations(diffs), contextLines)
}

// operation represents a single line operation
type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	var ops []operation
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{LineRemoved, oldLine, newLine, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{LineAdded, oldLine, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

// groupIntoHunks merges changes closer than 2*contextLines into one hunk.
func groupIntoHunks(ops []operation, contextLines int) []Hunk {
	var changes []int
	for i, op := range ops {
		if op.typ != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	start := changes[0]
	end := changes[0]
	flush := func() {
		from := start - contextLines
		if from < 0 {
			from = 0
		}
		to := end + contextLines
		if to >= len(ops) {
			to = len(ops) - 1
		}
		h := Hunk{OldStart: ops[from].oldLine + 1, NewStart: ops[from].newLine + 1}
		for _, op := range ops[from : to+1] {
			h.Lines = append(h.Lines, Line{Content: op.content, Type: op.typ})
			if op.typ != LineAdded {
				h.OldCount++
			}
			if op.typ != LineRemoved {
				h.NewCount++
			}
		}
		hunks = append(hunks, h)
	}
	for _, idx := range changes[1:] {
		if idx-end > 2*contextLines {
			flush()
			start = idx
		}
		end = idx
	}
	flush()
	return hunks
}

// Format renders hunks in unified diff style.
func Format(hunks []Hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				b.WriteString("+")
			case LineRemoved:
				b.WriteString("-")
			default:
				b.WriteString(" ")
			}
			b.WriteString(l.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// hash computes a simple hash for caching (FNV-1a algorithm)
func hash(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
