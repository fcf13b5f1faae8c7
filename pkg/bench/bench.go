// Package bench runs the EDA tool chain on a baseline design of a task.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haivivi/autoppa/pkg/task"
)

// Simulator, Synthesizer and PowerAnalyzer are satisfied by the eda tools.
type (
	Simulator interface {
		Simulate(ctx context.Context, source string, taskID int) string
	}
	Synthesizer interface {
		Synthesize(ctx context.Context, source string) string
	}
	PowerAnalyzer interface {
		AnalyzePower(ctx context.Context, source string, taskID int) (string, error)
	}
)

// Params selects what to benchmark.
type Params struct {
	TaskID   int
	Baseline string
}

// Report is the outcome of one benchmark run.
type Report struct {
	Task     task.Task `json:"task" yaml:"task"`
	Baseline string    `json:"baseline" yaml:"baseline"`
	Sim      string    `json:"sim" yaml:"sim"`
	Synth    string    `json:"synth" yaml:"synth"`
	Power    string    `json:"power,omitempty" yaml:"power,omitempty"`
}

const rule = "=========================================================================="

// String renders the report for a terminal.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, "Task number:", r.Task.ID)
	fmt.Fprintln(&sb, "Description:", r.Task.Description)
	fmt.Fprintln(&sb, "Metric:", r.Task.Metric)
	fmt.Fprintln(&sb, "Reference performance:", r.Task.Baseline, r.Task.Units)
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "\n-------- BASELINE %s --------\n\n", r.Baseline)
	sb.WriteString(r.Sim)
	sb.WriteString("\n\n")
	sb.WriteString(r.Synth)
	if r.Power != "" {
		sb.WriteString("\n\n")
		sb.WriteString(r.Power)
	}
	sb.WriteString("\n")
	return sb.String()
}

// Bench wires a task store to the tool chain.
type Bench struct {
	Tasks       *task.Store
	Simulator   Simulator
	Synthesizer Synthesizer
	Power       PowerAnalyzer
	Logger      *slog.Logger
}

// Run simulates, synthesizes and analyzes the power of a baseline design.
// A power analysis failure is returned together with the partial report.
func (b *Bench) Run(ctx context.Context, p Params) (*Report, error) {
	if b.Tasks == nil || b.Simulator == nil || b.Synthesizer == nil || b.Power == nil {
		return nil, errors.New("bench: incomplete tool chain")
	}
	if err := b.Tasks.ValidateID(p.TaskID); err != nil {
		return nil, err
	}
	if err := task.ValidateBaseline(p.Baseline); err != nil {
		return nil, err
	}
	meta, err := b.Tasks.Metadata(p.TaskID)
	if err != nil {
		return nil, err
	}
	source, err := b.Tasks.Source(p.TaskID, p.Baseline)
	if err != nil {
		return nil, err
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("task", p.TaskID, "baseline", p.Baseline)

	r := &Report{Task: meta, Baseline: p.Baseline}
	r.Sim = b.Simulator.Simulate(ctx, source, p.TaskID)
	logger.Debug("bench: simulated")
	r.Synth = b.Synthesizer.Synthesize(ctx, source)
	logger.Debug("bench: synthesized")
	r.Power, err = b.Power.AnalyzePower(ctx, source, p.TaskID)
	if err != nil {
		return r, fmt.Errorf("bench: power analysis: %w", err)
	}
	logger.Debug("bench: power analyzed")
	return r, nil
}
