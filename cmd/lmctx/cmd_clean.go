package main

import (
	"fmt"
	"io"
	"os"

	"lmctx/internal/sanitize"

	"github.com/spf13/cobra"
)

var cleanCompletion bool

// cleanCmd sanitizes model output read from stdin
var cleanCmd = &cobra.Command{
	Use:   "clean [file]",
	Short: "Reduce raw model output to plain code",
	Long: `Reads a model reply from the given file (or stdin) and prints it with
reasoning sections, markdown fences, trailing prose, comments and repeated
blocks removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanCompletion, "completion", false, "Clean as an inline completion (no surrounding newlines)")
}

func runClean(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if cleanCompletion {
		fmt.Fprint(cmd.OutOrStdout(), sanitize.CleanCompletion(string(raw)))
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), sanitize.Clean(string(raw)))
	return nil
}
