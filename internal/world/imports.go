package world

import (
	"regexp"
	"sort"
)

// Pattern-based extraction. This is not a parser: imports inside comments or
// string literals are picked up, and dynamic imports built from expressions
// are missed.
var (
	jsImportRegex = regexp.MustCompile(`(?:import|require\()\s*['"](.+?)['"]`)
	jsFromRegex   = regexp.MustCompile(`from\s+['"](.+?)['"]`)

	pyImportRegex   = regexp.MustCompile(`(?:import|from)\s+([\w.]+)`)
	pyQuotedImports = regexp.MustCompile(`import\s+['"](.+?)['"]`)
)

// ExtractImports returns the import specifiers found in text, in order of
// first occurrence, deduplicated, with empty entries dropped. The pattern
// family is chosen by the extension of path; unknown types yield nil.
func ExtractImports(text, path string) []string {
	var patterns []*regexp.Regexp
	switch {
	case IsJSLike(path):
		patterns = []*regexp.Regexp{jsImportRegex, jsFromRegex}
	case IsPython(path):
		patterns = []*regexp.Regexp{pyImportRegex, pyQuotedImports}
	default:
		return nil
	}

	type hit struct {
		pos  int
		spec string
	}
	var hits []hit
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			hits = append(hits, hit{pos: m[2], spec: text[m[2]:m[3]]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	seen := make(map[string]bool, len(hits))
	var out []string
	for _, h := range hits {
		if h.spec == "" || seen[h.spec] {
			continue
		}
		seen[h.spec] = true
		out = append(out, h.spec)
	}
	return out
}
