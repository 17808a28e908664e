package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lmctx/internal/budget"
	"lmctx/internal/config"
	lmcontext "lmctx/internal/context"
	"lmctx/internal/logging"
	"lmctx/internal/perception"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lmctx",
	Short: "lmctx - project context for local code models",
	Long: `lmctx assembles a budget-bounded view of a workspace for a local
OpenAI-compatible model server (LM Studio, llama.cpp, Ollama) and cleans the
model's reply down to plain code.

The context window is discovered from the server's /v1/models listing, with a
static per-family fallback when the server cannot be reached.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve workspace: %w", err)
			}
			workspace = wd
		}
		abs, err := filepath.Abs(workspace)
		if err == nil {
			workspace = abs
		}

		loaded, err := config.Load(config.ResolvePath(configPath, workspace))
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		opts := cfg.Logging.Options()
		if verbose {
			opts.Level = "debug"
		}
		logger, err = logging.Initialize(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.BootDebug("workspace=%s endpoint=%s model=%q", workspace, cfg.Endpoint, cfg.Model)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/lmctx.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(budgetCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(inlineCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// newAssembler wires the budget oracle into an assembler configured from cfg.
func newAssembler(c *config.Config) (*lmcontext.Assembler, *budget.Oracle) {
	oracle := budget.NewOracle(c)
	return lmcontext.NewAssembler(oracle, assemblerOptions(c)), oracle
}

func assemblerOptions(c *config.Config) lmcontext.Options {
	return lmcontext.Options{
		MaxFileChars: c.MaxFileReadChars,
		ExcludedDirs: c.World.ExcludedDirs,
		ReadWorkers:  c.World.ReadWorkers,
	}
}

// projectContext adapts an assembler to perception.ContextFunc. Failed or
// cancelled assemblies contribute nothing.
func projectContext(a *lmcontext.Assembler, root string) perception.ContextFunc {
	return func(ctx context.Context, file string) string {
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
		doc, stats, err := a.AssembleDocument(ctx, file, root)
		if err != nil {
			logging.ContextDebug("no project context for %s: %v", file, err)
			return ""
		}
		logging.ContextDebug("project context %s: %d/%d chars", stats.ID, stats.Used, stats.Capacity)
		return doc.String()
	}
}

// resolveFile makes a --file argument absolute against the workspace.
func resolveFile(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}
