// Package sanitize reduces a model's raw reply to plain code.
//
// Clean runs a fixed pipeline: drop reasoning sections, extract code, strip
// comments, normalize blank lines, and drop near-duplicate blocks. Every
// stage is text substitution, not lexing: comment-like or fence-like text
// inside string literals can be damaged.
package sanitize

import (
	"regexp"
	"strings"

	"lmctx/internal/diff"
	"lmctx/internal/logging"
)

// DuplicateThreshold is the similarity above which a block is treated as a
// repeat of the previous kept block.
const DuplicateThreshold = 0.90

const removed = "\x00"

var (
	reasoningRegex = regexp.MustCompile(`(?is)<(think|thinking|reasoning)>.*?</(?:think|thinking|reasoning)>`)
	openTagRegex   = regexp.MustCompile(`(?i)<(think|thinking|reasoning)>`)
	closeTagRegex  = regexp.MustCompile(`(?i)</(think|thinking|reasoning)>`)

	fenceRegex     = regexp.MustCompile("(?s)```[^\\n`]*\\n(.*?)```")
	openFenceRegex = regexp.MustCompile("```[^\\n`]*\\n")

	proseRegex = regexp.MustCompile(`(?i)^(here is|here's|here are|explanation|note|summary|solution|answer|improved|fixed|this code|the above)\b`)

	blockCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	markupCommentRegex = regexp.MustCompile(`(?s)<!--.*?-->`)
	trailingSlashes    = regexp.MustCompile(`[ \t]+//.*$`)
	trailingHash       = regexp.MustCompile(`[ \t]+#[ \t].*$`)
	preprocessorRegex  = regexp.MustCompile(`^#\s*(include|define|undef|if|ifdef|ifndef|else|elif|endif|pragma|import|error|warning|line|region|endregion)\b`)
)

// Clean sanitizes raw model output. Empty or fully stripped input yields "";
// otherwise the result ends with exactly one newline.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = stripReasoning(text)
	text = extractCode(text)
	text = stripComments(text)
	lines := normalizeLines(text)
	blocks := dedupBlocks(splitBlocks(lines))

	out := strings.Trim(strings.Join(blocks, "\n\n"), "\n")
	if strings.TrimSpace(out) == "" {
		return ""
	}
	return out + "\n"
}

// CleanCompletion sanitizes an inline completion. The result never starts
// or ends with a newline so it can be inserted at the cursor.
func CleanCompletion(raw string) string {
	return strings.Trim(Clean(raw), "\n")
}

// Similarity returns the diff-based similarity ratio of two blocks in [0,1].
func Similarity(a, b string) float64 {
	return diff.Ratio(a, b)
}

// stripReasoning removes paired reasoning sections. A dangling close tag
// drops everything before it; a dangling open tag drops everything after.
func stripReasoning(text string) string {
	text = reasoningRegex.ReplaceAllString(text, "")
	if loc := closeTagRegex.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if loc := openTagRegex.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return text
}

// extractCode returns fenced bodies when any exist, otherwise the text. Either
// way the result is cut at its first prose lead-in line, so cleaned output
// never holds a line the cut would remove.
func extractCode(text string) string {
	matches := fenceRegex.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		bodies := make([]string, 0, len(matches))
		for _, m := range matches {
			if body := strings.TrimSpace(cutProse(strings.TrimSpace(m[1]))); body != "" {
				bodies = append(bodies, body)
			}
		}
		return strings.Join(bodies, "\n\n")
	}

	// A reply cut off inside its only fence.
	if loc := openFenceRegex.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	return cutProse(text)
}

// cutProse keeps the lines before the first prose lead-in.
func cutProse(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isProse(line) {
			logging.SanitizeDebug("cut at prose line %d: %q", i, line)
			return strings.Join(lines[:i], "\n")
		}
	}
	return text
}

// isProse reports whether line is an unindented explanation. Indented lines
// belong to code (docstrings, markup text) and are never prose.
func isProse(line string) bool {
	if line != strings.TrimLeft(line, " \t") {
		return false
	}
	trimmed := strings.TrimSpace(line)
	if !proseRegex.MatchString(trimmed) {
		return false
	}
	return !looksLikeCode(trimmed)
}

// looksLikeCode guards identifiers such as note.save() or answer = 42 that
// begin with a lead-in word.
func looksLikeCode(line string) bool {
	if strings.Contains(line, "()") || strings.Contains(line, " = ") || strings.Contains(line, "=>") {
		return true
	}
	if strings.HasSuffix(line, ";") || strings.HasSuffix(line, "{") || strings.HasSuffix(line, "}") {
		return true
	}
	word := proseRegex.FindString(line)
	rest := line[len(word):]
	return strings.HasPrefix(rest, ".") && len(rest) > 1 && rest[1] != ' '
}

func stripComments(text string) string {
	// Region comments leave a placeholder so lines they fully occupied can
	// be dropped instead of becoming blank.
	text = blockCommentRegex.ReplaceAllString(text, removed)
	text = markupCommentRegex.ReplaceAllString(text, removed)

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		hadRegion := strings.Contains(line, removed)
		line = strings.ReplaceAll(line, removed, "")
		trimmed := strings.TrimSpace(line)
		switch {
		case hadRegion && trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "```"):
			continue
		case strings.HasPrefix(trimmed, "//"):
			continue
		case strings.HasPrefix(trimmed, "#") && !keepHashLine(trimmed):
			continue
		case trimmed == "--" || strings.HasPrefix(trimmed, "-- "):
			continue
		}
		line = trailingSlashes.ReplaceAllString(line, "")
		line = trailingHash.ReplaceAllString(line, "")
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// keepHashLine reports whether a line starting with # is code: shebangs,
// Rust attributes and C preprocessor directives.
func keepHashLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "#!") ||
		strings.HasPrefix(trimmed, "#[") ||
		preprocessorRegex.MatchString(trimmed)
}

// normalizeLines right-trims every line and collapses blank runs to one.
func normalizeLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r\f\v")
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitBlocks partitions lines into maximal runs of non-blank lines.
func splitBlocks(lines []string) []string {
	var blocks []string
	var current []string
	for _, line := range lines {
		if line == "" {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

// dedupBlocks drops every block too similar to the previous kept block.
func dedupBlocks(blocks []string) []string {
	var kept []string
	for _, b := range blocks {
		if len(kept) > 0 {
			if ratio := Similarity(kept[len(kept)-1], b); ratio > DuplicateThreshold {
				logging.SanitizeDebug("dropped repeated block (ratio %.2f)", ratio)
				continue
			}
		}
		kept = append(kept, b)
	}
	return kept
}
