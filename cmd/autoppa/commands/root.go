package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/autoppa/pkg/cli"
	"github.com/haivivi/autoppa/pkg/eda"
	"github.com/haivivi/autoppa/pkg/genx/modelloader"
	"github.com/haivivi/autoppa/pkg/task"
)

var (
	// Global flags
	configPath  string
	contextName string
	verbose     bool
	jsonOutput  bool
	outputFmt   string
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "autoppa",
	Short: "LLM-driven PPA optimization of Verilog designs",
	Long: `autoppa - iteratively optimize Verilog designs for power, performance
and area with a language model in the loop.

The agent streams a candidate design, compiles and simulates it with
iverilog, synthesizes it with yosys and feeds the tool reports back to the
model until the iteration limit is reached or you stop it.

Settings are grouped in contexts stored in ~/.autoppa/config.yaml.
Model endpoints are registered from YAML files in the models directory.

Examples:
  # Create a context for a checkout of the benchmark
  autoppa config add-context lab --root ~/autoppa --model openai/gpt-5-mini

  # Evaluate the reference design of task 3
  autoppa bench 3

  # Optimize task 3 for at most 8 iterations
  autoppa agent 3 --max-iters 8`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(cli.NewLogger(os.Stderr, verbose, noColor))
		modelloader.Verbose = verbose
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.autoppa/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context to use instead of the current one")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON (same as -o json)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", string(cli.FormatYAML), "output format: yaml, json or text")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored logs")
}

// env is the resolved environment of a command.
type env struct {
	cfg   *cli.Config
	ctx   cli.Context
	paths *cli.Paths
}

func loadEnv() (*env, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return nil, fmt.Errorf("locate home directory: %w", err)
	}
	cfg, err := cli.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	c, err := cfg.ResolveContext(contextName)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, ctx: c.WithDefaults(paths), paths: paths}, nil
}

func (e *env) workspace() eda.Workspace {
	return eda.Workspace{
		Root:         e.ctx.Root,
		BenchmarkDir: e.ctx.BenchmarkDir,
		BuildDir:     e.ctx.BuildDir,
	}
}

func (e *env) tasks() (*task.Store, error) {
	return task.Open(e.ctx.BenchmarkDir, e.ctx.BaselineDir)
}

func (e *env) toolOptions() []eda.Option {
	return []eda.Option{eda.WithLogger(slog.Default())}
}

func outputFormat() cli.OutputFormat {
	if jsonOutput {
		return cli.FormatJSON
	}
	return cli.OutputFormat(outputFmt)
}

// tableListing reports whether a listing prints its table: the default,
// unless a structured format was asked for.
func tableListing(cmd *cobra.Command) bool {
	if jsonOutput {
		return false
	}
	return !cmd.Flags().Changed("output") || outputFormat() == cli.FormatText
}

func printResult(cmd *cobra.Command, result any) error {
	return cli.Output(result, cli.OutputOptions{Format: outputFormat(), Writer: cmd.OutOrStdout()})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
