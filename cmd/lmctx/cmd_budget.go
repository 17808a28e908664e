package main

import (
	"fmt"

	"lmctx/internal/budget"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// budgetCmd reports the context budget the assembler would use
var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show the discovered context budget",
	Long: `Queries GET /v1/models on the configured endpoint and prints the usable
character budget for the configured model, alongside the static fallback used
when the server cannot be reached.`,
	RunE: runBudget,
}

func runBudget(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	oracle := budget.NewOracle(cfg)
	out := cmd.OutOrStdout()
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	model := cfg.Model
	if model == "" {
		model = "(first loaded)"
	}
	fmt.Fprintf(out, "endpoint: %s\n", cfg.Endpoint)
	fmt.Fprintf(out, "model:    %s\n", model)

	fallback := oracle.Fallback(cfg.Model)
	chars, err := oracle.Probe(ctx)
	if err != nil {
		fmt.Fprintf(out, "probe:    %s (%v)\n", warn("unavailable"), err)
		fmt.Fprintf(out, "budget:   %d chars (fallback)\n", fallback)
		return nil
	}
	fmt.Fprintf(out, "probe:    %s\n", ok("ok"))
	fmt.Fprintf(out, "budget:   %d chars\n", chars)
	fmt.Fprintf(out, "fallback: %d chars\n", fallback)
	return nil
}
