package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/convo"
	"github.com/haivivi/autoppa/pkg/genx"
	"github.com/haivivi/autoppa/pkg/task"
	"github.com/haivivi/autoppa/pkg/tokenizer"
)

// FeedbackPreamble opens every feedback prompt.
const FeedbackPreamble = "Feedback from compilation, simulation, and synthesis tools:"

// ErrStopped is returned by Step once the loop is in a terminal state.
var ErrStopped = errors.New("agent: stopped")

// Config holds the required inputs of an Agent.
type Config struct {
	// Task is the optimization task. It provides the first prompt unless
	// Prompt is set, and its ID is passed to the Simulator.
	Task *task.Task

	// Prompt, if non-empty, replaces the system prompt. The session starts
	// with an empty system prompt and Prompt as the first user turn.
	Prompt string

	// MaxIterations is the iteration limit, at least 1.
	MaxIterations int

	// MaxTokens is the conversation token budget.
	MaxTokens int

	// Tokenizer measures message content.
	Tokenizer tokenizer.Tokenizer

	Endpoint    genx.Endpoint
	Simulator   Simulator
	Synthesizer Synthesizer
}

// Option configures optional collaborators of an Agent.
type Option func(*Agent)

// WithDecider sets the Decider. The default is AlwaysContinue.
func WithDecider(d Decider) Option {
	return func(a *Agent) {
		if d != nil {
			a.decider = d
		}
	}
}

// WithObserver sets the Observer.
func WithObserver(o Observer) Option {
	return func(a *Agent) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithJournal records every decided Outcome. Recording failures are logged.
func WithJournal(j Journal) Option {
	return func(a *Agent) { a.journal = j }
}

// WithArchiver archives artifacts after validation. Failures are logged.
func WithArchiver(ar Archiver) Option {
	return func(a *Agent) { a.archiver = ar }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// Agent drives the generate, validate, feedback loop for one task.
//
// An Agent is not safe for concurrent use.
type Agent struct {
	cfg  Config
	conv *convo.Context
	gen  *genx.Generator

	decider  Decider
	observer Observer
	journal  Journal
	archiver Archiver
	logger   *slog.Logger

	state     State
	iteration int
	prompt    string
	current   Outcome
	history   []Outcome
}

// New validates cfg and returns an Agent in StateInit.
func New(cfg Config, opts ...Option) (*Agent, error) {
	switch {
	case cfg.Task == nil:
		return nil, errors.New("agent: task is required")
	case cfg.MaxIterations < 1:
		return nil, fmt.Errorf("agent: max iterations must be at least 1, got %d", cfg.MaxIterations)
	case cfg.Endpoint == nil:
		return nil, errors.New("agent: endpoint is required")
	case cfg.Simulator == nil || cfg.Synthesizer == nil:
		return nil, errors.New("agent: simulator and synthesizer are required")
	case cfg.Tokenizer == nil:
		return nil, errors.New("agent: tokenizer is required")
	}

	a := &Agent{
		cfg:      cfg,
		decider:  AlwaysContinue,
		observer: NopObserver,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("task", cfg.Task.ID)

	system := task.SystemPrompt
	if cfg.Prompt != "" {
		system = ""
	}
	conv, err := convo.New(system, cfg.MaxTokens, cfg.Tokenizer, convo.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	a.conv = conv
	a.gen = genx.NewGenerator(conv, cfg.Endpoint, genx.WithLogger(a.logger))
	return a, nil
}

// State returns the current state.
func (a *Agent) State() State { return a.state }

// Iterations returns the number of completed iterations.
func (a *Agent) Iterations() int { return a.iteration }

// Context returns the conversation.
func (a *Agent) Context() *convo.Context { return a.conv }

// Prompt returns the prompt the next GENERATE will send.
func (a *Agent) Prompt() string { return a.prompt }

// History returns the decided outcomes in order.
func (a *Agent) History() []Outcome {
	return append([]Outcome(nil), a.history...)
}

// Run steps until a terminal state or an error. A generation error leaves
// the Agent in StateGenerate with the same prompt, so calling Run again
// retries the generation.
func (a *Agent) Run(ctx context.Context) (State, error) {
	for !a.state.Terminal() {
		if _, err := a.Step(ctx); err != nil {
			return a.state, err
		}
	}
	return a.state, nil
}

// Step performs one state transition and returns the new state.
func (a *Agent) Step(ctx context.Context) (State, error) {
	var err error
	switch a.state {
	case StateInit:
		a.init()
	case StateGenerate:
		err = a.generate(ctx)
	case StateValidate:
		a.validate(ctx)
	case StateFeedback:
		a.feedback()
	case StateDecide:
		err = a.decide(ctx)
	default:
		return a.state, ErrStopped
	}
	return a.state, err
}

func (a *Agent) init() {
	if a.cfg.Prompt != "" {
		a.prompt = a.cfg.Prompt
	} else {
		a.prompt = task.Prompt(a.cfg.Task)
	}
	if sys := a.conv.Messages()[0]; sys.Content != "" {
		a.observer.Observe(Event{Kind: EventSystem, Role: chat.RoleSystem, Text: sys.Content})
	}
	a.logger.Info("agent: session started",
		"max_iterations", a.cfg.MaxIterations,
		"max_tokens", a.cfg.MaxTokens,
		"override_prompt", a.cfg.Prompt != "")
	a.state = StateGenerate
}

func (a *Agent) generate(ctx context.Context) error {
	n := a.iteration + 1
	truncations := a.conv.Truncations()

	g := a.gen.Generate(ctx, a.prompt)
	a.observer.Observe(Event{Kind: EventPrompt, Iteration: n, Role: chat.RoleUser, Text: a.prompt})
	a.checkTruncation(n, truncations)
	truncations = a.conv.Truncations()

	var sb strings.Builder
	for frag, err := range g.Fragments() {
		if err != nil {
			a.logger.Error("agent: generation failed", "iteration", n, "error", err)
			return fmt.Errorf("agent: iteration %d: %w", n, err)
		}
		sb.WriteString(frag)
		a.observer.Observe(Event{Kind: EventFragment, Iteration: n, Role: chat.RoleAssistant, Text: frag})
	}
	a.checkTruncation(n, truncations)

	a.current = Outcome{
		Iteration:     n,
		Source:        sb.String(),
		Usage:         g.Usage(),
		ContextTokens: a.conv.TokenCount(),
		Degraded:      a.conv.Degraded(),
		Next:          StateDecide,
	}
	a.observer.Observe(Event{Kind: EventReply, Iteration: n, Role: chat.RoleAssistant, Text: a.current.Source})
	a.logger.Info("agent: candidate generated",
		"iteration", n,
		"output_tokens", a.current.Usage.OutputTokens,
		"context_tokens", a.current.ContextTokens)
	a.state = StateValidate
	return nil
}

func (a *Agent) checkTruncation(iteration, before int) {
	if a.conv.Truncations() == before {
		return
	}
	t := a.conv.LastTruncation()
	if !t.Degenerate {
		return
	}
	a.logger.Warn("agent: context budget degenerate", "iteration", iteration, "truncation", t.String())
	a.observer.Observe(Event{Kind: EventTruncated, Iteration: iteration, Text: t.String(), Truncation: t})
}

func (a *Agent) validate(ctx context.Context) {
	o := &a.current
	o.SimReport = a.cfg.Simulator.Simulate(ctx, o.Source, a.cfg.Task.ID)
	a.observer.Observe(Event{Kind: EventReport, Iteration: o.Iteration, Role: chat.RoleTool, Text: o.SimReport})
	o.SynthReport = a.cfg.Synthesizer.Synthesize(ctx, o.Source)
	a.observer.Observe(Event{Kind: EventReport, Iteration: o.Iteration, Role: chat.RoleTool, Text: o.SynthReport})

	if a.archiver != nil {
		names, err := a.archiver.Archive(ctx, *o)
		if err != nil {
			a.logger.Warn("agent: archive artifacts", "iteration", o.Iteration, "error", err)
		}
		o.Artifacts = names
	}
	a.state = StateFeedback
}

func (a *Agent) feedback() {
	a.prompt = Feedback(a.current.SimReport, a.current.SynthReport)
	a.state = StateDecide
}

// Feedback builds the prompt that reports tool results to the model.
func Feedback(simReport, synthReport string) string {
	return FeedbackPreamble + "\n" + simReport + "\n" + synthReport
}

func (a *Agent) decide(ctx context.Context) error {
	n := a.iteration + 1
	next := StateGenerate
	switch {
	case n >= a.cfg.MaxIterations:
		next = StateStopByLimit
	case ctx.Err() != nil:
		a.logger.Info("agent: cancelled", "iteration", n, "error", ctx.Err())
		next = StateStopByUser
	default:
		d, err := a.decider.Decide(ctx, a.current)
		switch {
		case err != nil && ctx.Err() != nil:
			next = StateStopByUser
		case err != nil:
			return fmt.Errorf("agent: decide: %w", err)
		case d == Stop:
			next = StateStopByUser
		}
	}

	a.iteration = n
	a.current.Next = next
	a.history = append(a.history, a.current)
	if a.journal != nil {
		if err := a.journal.Record(context.WithoutCancel(ctx), a.current); err != nil {
			a.logger.Warn("agent: journal record", "iteration", n, "error", err)
		}
	}
	a.state = next
	if next.Terminal() {
		a.logger.Info("agent: stopped", "state", next.String(), "iterations", n)
		a.observer.Observe(Event{Kind: EventStopped, Iteration: n, Text: next.String()})
	}
	return nil
}
