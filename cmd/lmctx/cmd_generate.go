package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"lmctx/internal/diff"
	"lmctx/internal/perception"
	"lmctx/internal/sanitize"
	"lmctx/internal/world"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	generateFile  string
	generateLines string
	generateWrite bool
	generateDiff  bool
)

// generateCmd replaces a line range with model output
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Ask the model to rewrite a range of lines",
	Long: `Sends the selected lines of --file, a window of the surrounding file and
the assembled project context to the model, then prints the cleaned
replacement. With --write the file is updated in place; with --diff a unified
diff of the change is printed instead.

Example:
  lmctx generate --file src/app.ts --lines 10:24 --diff`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateFile, "file", "f", "", "File to edit (required)")
	generateCmd.Flags().StringVarP(&generateLines, "lines", "l", "", "1-based inclusive line range start:end (required)")
	generateCmd.Flags().BoolVar(&generateWrite, "write", false, "Write the result back to the file")
	generateCmd.Flags().BoolVar(&generateDiff, "diff", false, "Print a unified diff instead of the replacement")
	_ = generateCmd.MarkFlagRequired("file")
	_ = generateCmd.MarkFlagRequired("lines")
}

// parseLineRange parses "a:b" (or "a") into 0-based inclusive bounds
// clamped to n lines.
func parseLineRange(rng string, n int) (int, int, error) {
	startStr, endStr, found := strings.Cut(strings.TrimSpace(rng), ":")
	if !found {
		endStr = startStr
	}
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line range %q", rng)
	}
	end, err := strconv.Atoi(strings.TrimSpace(endStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid line range %q", rng)
	}
	if start < 1 || end < start {
		return 0, 0, fmt.Errorf("invalid line range %q", rng)
	}
	if start > n {
		return 0, 0, fmt.Errorf("line %d is past end of file (%d lines)", start, n)
	}
	if end > n {
		end = n
	}
	return start - 1, end - 1, nil
}

// replaceLines swaps lines[start..end] for replacement, keeping the
// original trailing newline state.
func replaceLines(text string, start, end int, replacement string) string {
	lines := strings.Split(text, "\n")
	repl := strings.Split(strings.TrimRight(replacement, "\n"), "\n")
	out := make([]string, 0, len(lines)-(end-start+1)+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	out = append(out, lines[end+1:]...)
	return strings.Join(out, "\n")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	path := resolveFile(generateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", generateFile, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	start, end, err := parseLineRange(generateLines, len(lines))
	if err != nil {
		return err
	}
	selected := strings.Join(lines[start:end+1], "\n")
	if strings.TrimSpace(selected) == "" {
		return fmt.Errorf("selected lines are empty")
	}

	a, _ := newAssembler(cfg)
	projectContext := a.Assemble(ctx, path, workspace)
	snippet := perception.Snippet(world.RelPath(workspace, path), text, start, cfg.ContextLines)
	prompt := perception.GenerationPrompt(projectContext, snippet, selected)

	client := perception.NewClient(perception.ClientConfigFrom(cfg))
	logger.Info("requesting generation",
		zap.String("file", generateFile),
		zap.Int("start", start+1),
		zap.Int("end", end+1),
		zap.Int("prompt_chars", len(prompt)))

	reply, err := client.Chat(ctx, perception.SystemPrompt, prompt)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	code := sanitize.Clean(reply)
	if code == "" {
		return fmt.Errorf("model returned no code")
	}

	updated := replaceLines(text, start, end, code)
	out := cmd.OutOrStdout()
	if generateDiff {
		hunks := diff.DefaultEngine.Hunks(text, updated, 3)
		fmt.Fprint(out, colorizeDiff(diff.Format(hunks)))
	} else if !generateWrite {
		fmt.Fprint(out, code)
	}

	if generateWrite {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", generateFile, err)
		}
		if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", generateFile, err)
		}
		logger.Info("wrote generated code", zap.String("file", generateFile))
	}
	return nil
}

func colorizeDiff(unified string) string {
	add := color.New(color.FgGreen).SprintFunc()
	del := color.New(color.FgRed).SprintFunc()
	hdr := color.New(color.FgCyan).SprintFunc()

	var b strings.Builder
	for _, line := range strings.SplitAfter(unified, "\n") {
		if line == "" {
			continue
		}
		body := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(body, "@@"):
			b.WriteString(hdr(body))
		case strings.HasPrefix(body, "+"):
			b.WriteString(add(body))
		case strings.HasPrefix(body, "-"):
			b.WriteString(del(body))
		default:
			b.WriteString(body)
		}
		if strings.HasSuffix(line, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
