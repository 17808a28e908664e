package main

import (
	"fmt"
	"os"
	"strings"

	"lmctx/internal/perception"

	"github.com/spf13/cobra"
)

var (
	completeFile  string
	completeLine  int
	completeCol   int
	completeForce bool
)

// completeCmd produces one inline completion
var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Print an inline completion at a cursor position",
	Long: `Asks the model to continue --file at --line/--col (1-based). Nothing is
printed unless the cursor sits at the end of its line. Blank lines are only
completed with --force. The prompt starts with the file's assembled project
context.

Inline completion must be enabled with inline_enabled: true in lmctx.yaml or
requested with --force.`,
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVarP(&completeFile, "file", "f", "", "File to complete (required)")
	completeCmd.Flags().IntVar(&completeLine, "line", 0, "1-based cursor line (default: last line)")
	completeCmd.Flags().IntVar(&completeCol, "col", 0, "1-based cursor column (default: end of line)")
	completeCmd.Flags().BoolVar(&completeForce, "force", false, "Complete even when disabled or on a blank line")
	_ = completeCmd.MarkFlagRequired("file")
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	data, err := os.ReadFile(resolveFile(completeFile))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", completeFile, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	req := cursorRequest(text, completeLine, completeCol)
	req.Manual = completeForce
	req.File = resolveFile(completeFile)

	ghost := perception.NewGhostProvider(
		perception.NewClient(perception.ClientConfigFrom(cfg)),
		cfg.InlineEnabled || completeForce,
		0,
	)
	assembler, _ := newAssembler(cfg)
	ghost.SetContext(projectContext(assembler, workspace))
	completion, err := ghost.Provide(ctx, req)
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), completion)
	return nil
}

// cursorRequest converts 1-based flags into a 0-based request. Zero values
// select the last line and the end of the line. A trailing newline does not
// count as a final empty line.
func cursorRequest(text string, line, col int) perception.GhostRequest {
	lines := strings.Split(text, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
		text = strings.Join(lines, "\n")
	}
	l := line - 1
	if line <= 0 || l >= len(lines) {
		l = len(lines) - 1
	}
	c := col - 1
	if col <= 0 {
		c = len([]rune(lines[l]))
	}
	return perception.GhostRequest{Text: text, Line: l, Col: c}
}
