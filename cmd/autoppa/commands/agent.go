package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/autoppa/pkg/agent"
	"github.com/haivivi/autoppa/pkg/cli"
	"github.com/haivivi/autoppa/pkg/eda"
	"github.com/haivivi/autoppa/pkg/genx"
	"github.com/haivivi/autoppa/pkg/genx/modelloader"
	"github.com/haivivi/autoppa/pkg/journal"
	"github.com/haivivi/autoppa/pkg/tokenizer"
)

var (
	agentPromptFile string
	agentMaxIters   int
	agentMaxTokens  int
	agentModel      string
	agentYes        bool
	agentMaxLines   int
)

var agentCmd = &cobra.Command{
	Use:   "agent <task>",
	Short: "Optimize a task design with a language model in the loop",
	Long: `Run the generate, validate, feedback loop on a task.

Each iteration streams a candidate design, simulates it against the task
testbench and synthesizes it. The tool reports become the next prompt.
After every iteration but the last you are asked whether to continue;
--yes runs to the iteration limit. Press Ctrl-C to stop at the next
decision.

Every iteration is recorded in the run journal. Build outputs are archived
when the context configures an artifact store.

Examples:
  autoppa agent 3
  autoppa agent 3 --max-iters 10 --yes
  autoppa agent 3 --prompt my_prompt.txt --model gemini/gemini-2.5-pro`,
	Args: cobra.ExactArgs(1),
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentPromptFile, "prompt", "", "file whose content replaces the system prompt and the task prompt")
	agentCmd.Flags().IntVar(&agentMaxIters, "max-iters", 0, "iteration limit (default from context)")
	agentCmd.Flags().IntVar(&agentMaxTokens, "max-tokens", 0, "context token budget (default from context)")
	agentCmd.Flags().StringVar(&agentModel, "model", "", "model name (default from context)")
	agentCmd.Flags().BoolVarP(&agentYes, "yes", "y", false, "continue without asking")
	agentCmd.Flags().IntVar(&agentMaxLines, "max-lines", 40, "lines shown per prompt or report, 0 for all")

	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	id, err := parseTaskID(args[0])
	if err != nil {
		return err
	}
	store, err := e.tasks()
	if err != nil {
		return err
	}
	t, err := store.Get(id)
	if err != nil {
		return err
	}

	var override string
	if agentPromptFile != "" {
		b, err := os.ReadFile(agentPromptFile)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		if override = strings.TrimSpace(string(b)); override == "" {
			return fmt.Errorf("prompt file %s is empty", agentPromptFile)
		}
	}

	model := firstNonEmpty(agentModel, e.ctx.Model)
	if model == "" {
		return errors.New("no model selected: pass --model or set one in the context")
	}
	ep, err := loadEndpoint(e.ctx.ModelsDir, model)
	if err != nil {
		return err
	}
	tok, err := tokenizer.New(e.ctx.Tokenizer)
	if err != nil {
		return err
	}
	maxIters := firstPositive(agentMaxIters, e.ctx.MaxIterations)
	maxTokens := firstPositive(agentMaxTokens, e.ctx.MaxTokens)

	logger := slog.Default()
	j, err := journal.Open(e.ctx.JournalDir, journal.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open journal (is another run active?): %w", err)
	}
	defer j.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	run, err := j.Start(ctx, journal.Run{
		TaskID:        id,
		Model:         model,
		MaxIterations: maxIters,
		MaxTokens:     maxTokens,
		Override:      override != "",
	})
	if err != nil {
		return err
	}
	logger = logger.With("run", cli.ShortID(run.ID))

	ask := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	decider := agent.AlwaysContinue
	if !agentYes {
		decider = agent.DeciderFunc(func(ctx context.Context, o agent.Outcome) (agent.Decision, error) {
			ok, err := ask.Confirm(ctx, fmt.Sprintf("Continue with iteration %d?", o.Iteration+1))
			if err != nil || !ok {
				return agent.Stop, err
			}
			return agent.Continue, nil
		})
	}

	transcript := cli.NewTranscript(cmd.OutOrStdout())
	transcript.MaxLines = agentMaxLines

	ws := e.workspace()
	opts := []agent.Option{
		agent.WithDecider(decider),
		agent.WithObserver(transcript),
		agent.WithJournal(&runJournal{j: j, runID: run.ID}),
		agent.WithLogger(logger),
	}
	if a := e.ctx.Artifacts; a != nil {
		ar, err := newArchiver(a, logger)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithArchiver(&runArchiver{ar: ar, ws: ws, taskID: id, runID: run.ID}))
	}

	toolOpts := []eda.Option{eda.WithLogger(logger)}
	ag, err := agent.New(agent.Config{
		Task:          t,
		Prompt:        override,
		MaxIterations: maxIters,
		MaxTokens:     maxTokens,
		Tokenizer:     tok,
		Endpoint:      ep,
		Simulator:     eda.NewSimulator(ws, toolOpts...),
		Synthesizer:   eda.NewSynthesizer(ws, toolOpts...),
	}, opts...)
	if err != nil {
		return err
	}

	state, runErr := driveAgent(ctx, ag, ask)
	if err := j.Finish(context.WithoutCancel(ctx), run.ID, state.String()); err != nil {
		logger.Warn("journal finish", "error", err)
	}
	if runErr != nil {
		return runErr
	}
	return printResult(cmd, summarize(run.ID, model, ag))
}

// driveAgent runs ag to a terminal state. Retryable generation errors are
// retried when the user agrees, or once per iteration with --yes.
func driveAgent(ctx context.Context, ag *agent.Agent, ask *prompter) (agent.State, error) {
	retried := -1
	for {
		state, err := ag.Run(ctx)
		if err == nil {
			return state, nil
		}
		if !genx.IsRetryable(err) || ctx.Err() != nil {
			return state, err
		}
		slog.Warn("generation failed", "iteration", ag.Iterations()+1, "error", err)
		if agentYes {
			if retried == ag.Iterations() {
				return state, err
			}
			retried = ag.Iterations()
			continue
		}
		ok, askErr := ask.Confirm(ctx, "Generation failed. Retry?")
		if askErr != nil || !ok {
			return state, err
		}
	}
}

func loadEndpoint(dir, model string) (genx.Endpoint, error) {
	names, err := modelloader.LoadFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load models from %s: %w", dir, err)
	}
	slog.Debug("models loaded", "dir", dir, "count", len(names))
	ep, err := genx.Get(model)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(genx.DefaultMux.Names(), ", "))
	}
	return ep, nil
}

// runSummary is printed when the loop stops.
type runSummary struct {
	Run           string `json:"run" yaml:"run"`
	Model         string `json:"model" yaml:"model"`
	State         string `json:"state" yaml:"state"`
	Iterations    int    `json:"iterations" yaml:"iterations"`
	ContextTokens int    `json:"context_tokens" yaml:"context_tokens"`
	InputTokens   int64  `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens  int64  `json:"output_tokens" yaml:"output_tokens"`
}

func (s runSummary) String() string {
	return fmt.Sprintf("\nrun %s (%s): %s after %d iteration(s), %d context tokens, %d in / %d out\n",
		cli.ShortID(s.Run), s.Model, s.State, s.Iterations, s.ContextTokens, s.InputTokens, s.OutputTokens)
}

func summarize(runID, model string, ag *agent.Agent) runSummary {
	s := runSummary{
		Run:           runID,
		Model:         model,
		State:         ag.State().String(),
		Iterations:    ag.Iterations(),
		ContextTokens: ag.Context().TokenCount(),
	}
	for _, o := range ag.History() {
		s.InputTokens += o.Usage.InputTokens
		s.OutputTokens += o.Usage.OutputTokens
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
