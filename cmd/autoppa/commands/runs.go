package commands

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/autoppa/pkg/cli"
	"github.com/haivivi/autoppa/pkg/journal"
)

var runsShowSource bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect journaled agent runs",
}

var runsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List runs, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()

		runs, err := j.Runs(commandContext(cmd))
		if err != nil {
			return err
		}
		if !tableListing(cmd) {
			return printResult(cmd, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTASK\tMODEL\tITERS\tSTATE\tSTARTED\tDURATION")
		for _, r := range runs {
			state, took := r.State, "-"
			if state == "" {
				state = "RUNNING"
			}
			if r.Finished() {
				took = cli.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%d/%d\t%s\t%s\t%s\n",
				cli.ShortID(r.ID), r.TaskID, r.Model, r.Iterations, r.MaxIterations,
				state, r.StartedAt.Local().Format(time.DateTime), took)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the iterations of a run",
	Long: `Show the iterations of a run. The run id may be abbreviated to any
unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()

		ctx := commandContext(cmd)
		run, err := j.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		iters, err := j.Iterations(ctx, run.ID)
		if err != nil {
			return err
		}
		return printResult(cmd, runDetail{Run: run, Iterations: iters, source: runsShowSource})
	},
}

func init() {
	runsShowCmd.Flags().BoolVar(&runsShowSource, "source", false, "print the generated designs")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func openJournal() (*journal.Journal, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(e.ctx.JournalDir, journal.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

// runDetail is a run together with its iterations.
type runDetail struct {
	Run        journal.Run         `json:"run" yaml:"run"`
	Iterations []journal.Iteration `json:"iterations" yaml:"iterations"`

	source bool
}

func (d runDetail) String() string {
	var sb strings.Builder
	r := d.Run
	fmt.Fprintf(&sb, "Run:        %s\n", r.ID)
	fmt.Fprintf(&sb, "Task:       %d\n", r.TaskID)
	fmt.Fprintf(&sb, "Model:      %s\n", r.Model)
	fmt.Fprintf(&sb, "Limits:     %d iterations, %d tokens\n", r.MaxIterations, r.MaxTokens)
	fmt.Fprintf(&sb, "Started:    %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.Finished() {
		fmt.Fprintf(&sb, "Finished:   %s (%s, %s)\n", r.FinishedAt.Local().Format(time.DateTime),
			r.State, cli.FormatDuration(r.FinishedAt.Sub(r.StartedAt)))
	}
	if r.Override {
		fmt.Fprintln(&sb, "Prompt:     custom")
	}
	for _, it := range d.Iterations {
		fmt.Fprintf(&sb, "\n-------- ITERATION %d (%s) --------\n", it.Iteration, it.Decision)
		fmt.Fprintf(&sb, "tokens: %d in, %d out, %d in context", it.InputTokens, it.OutputTokens, it.ContextTokens)
		if it.Degraded {
			sb.WriteString(", system prompt evicted")
		}
		sb.WriteString("\n\n")
		if d.source {
			sb.WriteString(it.Source)
			sb.WriteString("\n\n")
		}
		sb.WriteString(it.SimReport)
		sb.WriteString("\n\n")
		sb.WriteString(it.SynthReport)
		sb.WriteString("\n")
		for _, a := range it.Artifacts {
			fmt.Fprintf(&sb, "  artifact: %s\n", a)
		}
	}
	return sb.String()
}
