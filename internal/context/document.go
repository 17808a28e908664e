package context

import (
	"strings"
	"unicode/utf8"
)

// Budget tracks character capacity for one assembly. Used never exceeds
// Capacity.
type Budget struct {
	Capacity int
	Used     int
}

// Remaining returns the characters still available.
func (b Budget) Remaining() int {
	return b.Capacity - b.Used
}

// Below reports whether usage is strictly under frac of capacity.
func (b Budget) Below(frac float64) bool {
	return float64(b.Used) < frac*float64(b.Capacity)
}

// Above reports whether usage is strictly over frac of capacity.
func (b Budget) Above(frac float64) bool {
	return float64(b.Used) > frac*float64(b.Capacity)
}

func (b Budget) fits(n int) bool {
	return b.Used+n <= b.Capacity
}

// Document is the ordered text handed to the prompt builder.
type Document struct {
	budget   Budget
	sections []string
	files    []string
}

func newDocument(capacity int) *Document {
	return &Document{budget: Budget{Capacity: capacity}}
}

// tryAppend adds text whole or not at all. path, when non-empty, records a
// file included by this section.
func (d *Document) tryAppend(text, path string) bool {
	n := utf8.RuneCountInString(text)
	if !d.budget.fits(n) {
		return false
	}
	d.sections = append(d.sections, text)
	d.budget.Used += n
	if path != "" {
		d.files = append(d.files, path)
	}
	return true
}

// Budget returns a snapshot of capacity and usage.
func (d *Document) Budget() Budget {
	return d.budget
}

// Files returns the absolute paths whose content was included, in order.
func (d *Document) Files() []string {
	out := make([]string, len(d.files))
	copy(out, d.files)
	return out
}

// Len returns the document length in characters.
func (d *Document) Len() int {
	return d.budget.Used
}

func (d *Document) String() string {
	return strings.Join(d.sections, "")
}

// visitedSet holds cleaned absolute paths already incorporated.
type visitedSet map[string]struct{}

func (v visitedSet) has(path string) bool {
	_, ok := v[path]
	return ok
}

func (v visitedSet) add(path string) {
	v[path] = struct{}{}
}
