package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haivivi/autoppa/pkg/artifact"
	"github.com/haivivi/autoppa/pkg/cli"
)

var newContext struct {
	cli.Context
	artifacts string
	s3        artifact.S3Config
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage contexts.

A context names a benchmark checkout, a model and the run limits.

Examples:
  autoppa config list
  autoppa config add-context lab --root ~/autoppa --model openai/gpt-5-mini
  autoppa config add-context ci --artifacts s3 --s3-bucket autoppa-runs
  autoppa config use-context lab
  autoppa config show`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Create or replace a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		c := newContext.Context
		switch newContext.artifacts {
		case "":
		case cli.ArtifactsS3:
			s3 := newContext.s3
			c.Artifacts = &cli.ArtifactStore{Kind: cli.ArtifactsS3, S3: &s3}
		default:
			c.Artifacts = &cli.ArtifactStore{Kind: newContext.artifacts}
		}
		if err := cfg.AddContext(args[0], &c); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Context %q saved to %s", args[0], cfg.Path())
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := cfg.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Switched to context %q", args[0])
		return nil
	},
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := cfg.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "Context %q deleted", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "list-contexts"},
	Short:   "List all contexts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		names := cfg.ListContexts()
		if !tableListing(cmd) {
			return printResult(cmd, cfg.Contexts)
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contexts configured.")
			fmt.Fprintln(cmd.OutOrStdout(), "Create one with: autoppa config add-context <name>")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CURRENT\tNAME\tMODEL\tROOT")
		for _, name := range names {
			current := ""
			if name == cfg.CurrentContext {
				current = "*"
			}
			c := cfg.Contexts[name]
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", current, name, c.Model, c.Root)
		}
		return w.Flush()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a context with defaults applied",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			contextName = args[0]
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		return printResult(cmd, e.ctx)
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.StringVar(&newContext.Model, "model", "", "model name")
	f.StringVar(&newContext.ModelsDir, "models-dir", "", "model config directory")
	f.StringVar(&newContext.Root, "root", "", "workspace root holding benchmark/, baseline/ and build/")
	f.StringVar(&newContext.BenchmarkDir, "benchmark-dir", "", "benchmark directory")
	f.StringVar(&newContext.BaselineDir, "baseline-dir", "", "baseline directory")
	f.StringVar(&newContext.BuildDir, "build-dir", "", "build directory")
	f.StringVar(&newContext.JournalDir, "journal-dir", "", "run journal directory")
	f.IntVar(&newContext.MaxTokens, "max-tokens", 0, "context token budget")
	f.IntVar(&newContext.MaxIterations, "max-iters", 0, "iteration limit")
	f.StringVar(&newContext.Tokenizer, "tokenizer", "", "tokenizer encoding")
	f.StringVar(&newContext.artifacts, "artifacts", "", "artifact store: local or s3")
	f.StringVar(&newContext.s3.Bucket, "s3-bucket", "", "S3 bucket")
	f.StringVar(&newContext.s3.Prefix, "s3-prefix", "", "S3 key prefix")
	f.StringVar(&newContext.s3.Region, "s3-region", "", "S3 region")
	f.StringVar(&newContext.s3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	f.BoolVar(&newContext.s3.PathStyle, "s3-path-style", false, "use path-style S3 addressing")

	configCmd.AddCommand(
		configAddContextCmd,
		configUseContextCmd,
		configDeleteContextCmd,
		configListCmd,
		configShowCmd,
	)
	rootCmd.AddCommand(configCmd)
}
