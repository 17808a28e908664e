package perception

import (
	"fmt"
	"strings"
)

// SystemPrompt keeps small local models from wrapping code in prose.
const SystemPrompt = `You are a silent code generator.
Output ONLY the final code.
No explanations, no thoughts, no tags, no markdown, no triple backticks.
No reasoning of any kind. Never use <think> or any XML tags.
Never add comments explaining changes.`

// GenerationPrompt builds the user prompt for replacing selected code.
func GenerationPrompt(projectContext, fileSnippet, selected string) string {
	var b strings.Builder
	b.WriteString("You are an expert developer. Replace the selected code with better, cleaner, or fixed code that fits this project.\n\n")
	b.WriteString("INSTRUCTIONS:\n")
	for _, rule := range []string{
		"Output ONLY the raw code: no explanations, no markdown fences, no comments, no extra text.",
		"Match the exact coding style and formatting of the surrounding code.",
		"Make it syntactically correct and ready to run.",
		"Do not output the file name or the language name.",
		"If the solution needs context that is missing from PROJECT CONTEXT, make reasonable assumptions.",
		"Never output reasoning or <think> tags.",
		"Only output the replacement for the selected code.",
	} {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nPROJECT CONTEXT:\n%s\n\nCURRENT FILE SNIPPET:\n%s\n\nSELECTED CODE TO REPLACE:\n%s\n", projectContext, fileSnippet, selected)
	return b.String()
}

// Snippet renders up to contextLines lines of text centred on cursorLine
// (0-based), marking the cursor line with ">>> ".
func Snippet(name, text string, cursorLine, contextLines int) string {
	lines := strings.Split(text, "\n")
	if cursorLine < 0 {
		cursorLine = 0
	}
	if cursorLine >= len(lines) {
		cursorLine = len(lines) - 1
	}
	half := contextLines / 2
	start := cursorLine - half
	if start < 0 {
		start = 0
	}
	end := cursorLine + half
	if end > len(lines)-1 {
		end = len(lines) - 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CURRENT FILE: %s\n", name)
	for i := start; i <= end; i++ {
		prefix := "    "
		if i == cursorLine {
			prefix = ">>> "
		}
		b.WriteString(prefix)
		b.WriteString(lines[i])
		b.WriteString("\n")
	}
	return b.String()
}
