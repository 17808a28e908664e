package main

import (
	"errors"
	"fmt"
	"os"

	lmcontext "lmctx/internal/context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	assembleFile  string
	assembleStats bool
)

// assembleCmd prints the context document for a file
var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Print the project context document for a file",
	Long: `Builds the context document the model would see for --file: the file
itself, its directory siblings, its import graph and root manifests, bounded
by the model's discovered context window.

Prints NO_ACTIVE_EDITOR when --file is empty.`,
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().StringVarP(&assembleFile, "file", "f", "", "Current file")
	assembleCmd.Flags().BoolVar(&assembleStats, "stats", false, "Print assembly statistics to stderr")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	a, _ := newAssembler(cfg)
	doc, stats, err := a.AssembleDocument(ctx, resolveFile(assembleFile), workspace)
	switch {
	case errors.Is(err, lmcontext.ErrNoActiveEditor):
		fmt.Println(lmcontext.NoActiveEditor)
		return nil
	case errors.Is(err, lmcontext.ErrNoWorkspaceOpen):
		fmt.Println(lmcontext.NoWorkspaceOpen)
		return nil
	case err != nil:
		return fmt.Errorf("assembly failed: %w", err)
	}

	fmt.Print(doc.String())
	logger.Debug("assembled context",
		zap.String("id", stats.ID),
		zap.Int("files", stats.Files),
		zap.Int("chars", stats.Used))

	if assembleStats {
		printStats(doc, stats)
	}
	return nil
}

func printStats(doc *lmcontext.Document, stats lmcontext.Stats) {
	counter := lmcontext.NewEncodingTokenCounter()
	label := color.New(color.FgCyan, color.Bold).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	tokenNote := "cl100k_base"
	if !counter.Exact() {
		tokenNote = "estimated"
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "%s %s\n", label("assembly:"), stats.ID)
	fmt.Fprintf(os.Stderr, "%s %d / %d chars (%.0f%%)\n", label("budget:  "), stats.Used, stats.Capacity, percent(stats.Used, stats.Capacity))
	fmt.Fprintf(os.Stderr, "%s ~%d (%s)\n", label("tokens:  "), counter.CountDocument(doc), tokenNote)
	fmt.Fprintf(os.Stderr, "%s %d\n", label("files:   "), stats.Files)
	fmt.Fprintf(os.Stderr, "%s %v\n", label("tiers:   "), stats.Tiers)
	fmt.Fprintf(os.Stderr, "%s %v\n", label("elapsed: "), stats.Elapsed)
	if stats.Truncated {
		fmt.Fprintln(os.Stderr, warn("context was truncated"))
	}
}

func percent(used, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(used) * 100 / float64(capacity)
}
