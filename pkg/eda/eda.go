// Package eda wraps the open-source EDA tools that judge a candidate design:
// Icarus Verilog for simulation, Yosys for synthesis and OpenSTA for power
// analysis.
//
// Simulation and synthesis never fail with an error. Every failure, from a
// missing module declaration to a tool crash, becomes report text that is
// fed back to the model. Power analysis is a benchmark-only step that needs
// the artifacts of a previous simulation and synthesis; it returns
// ErrResourceMissing when they are absent.
//
// All paths derive from an explicit Workspace. Tools run with their working
// directory set per command, never by changing the process working
// directory.
package eda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrResourceMissing is returned when power analysis runs before the
// simulation or synthesis artifacts exist.
var ErrResourceMissing = errors.New("eda: resource missing")

var moduleRe = regexp.MustCompile(`(?m)^\s*module\s+(\S+)`)

// ExtractModuleName returns the name of the first module declared in source.
func ExtractModuleName(source string) (string, error) {
	m := moduleRe.FindStringSubmatch(source)
	if m == nil {
		return "", errors.New("eda: module name could not be extracted from code")
	}
	// "module foo(", "module foo#(" and "module foo;" all declare foo.
	name := m[1]
	if i := strings.IndexAny(name, "(#;"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", errors.New("eda: module name could not be extracted from code")
	}
	return name, nil
}

// Workspace locates the benchmark inputs and the build outputs.
type Workspace struct {
	// Root is the project root mounted into the OpenSTA container. The
	// build directory must be inside it.
	Root string `json:"root" yaml:"root"`

	// BenchmarkDir holds the testbenches taskN.v and power.tcl.
	BenchmarkDir string `json:"benchmark_dir" yaml:"benchmark_dir"`

	// BuildDir receives all tool outputs.
	BuildDir string `json:"build_dir" yaml:"build_dir"`
}

// NewWorkspace returns the conventional layout under root: benchmark/ and
// build/.
func NewWorkspace(root string) Workspace {
	return Workspace{
		Root:         root,
		BenchmarkDir: filepath.Join(root, "benchmark"),
		BuildDir:     filepath.Join(root, "build"),
	}
}

// SimDir is the simulation directory of a task.
func (ws Workspace) SimDir(taskID int) string {
	return filepath.Join(ws.BuildDir, fmt.Sprintf("task%d", taskID))
}

// SynthDir is the synthesis directory shared by all tasks.
func (ws Workspace) SynthDir() string {
	return filepath.Join(ws.BuildDir, "synth")
}

// Testbench is the path of the testbench of a task.
func (ws Workspace) Testbench(taskID int) string {
	return filepath.Join(ws.BenchmarkDir, fmt.Sprintf("task%d.v", taskID))
}

// VCD is the waveform dump the testbench of a task writes for dut.
func (ws Workspace) VCD(taskID int, dut string) string {
	return filepath.Join(ws.SimDir(taskID), dut+".vcd")
}

// Netlist is the synthesized netlist of dut.
func (ws Workspace) Netlist(dut string) string {
	return filepath.Join(ws.SynthDir(), "synth_"+dut+".v")
}

// Artifacts lists the existing build outputs for dut in a task.
func (ws Workspace) Artifacts(taskID int, dut string) []string {
	candidates := []string{
		filepath.Join(ws.SimDir(taskID), dut+".v"),
		ws.VCD(taskID, dut),
		filepath.Join(ws.SynthDir(), dut+".v"),
		filepath.Join(ws.SynthDir(), dut+".log"),
		ws.Netlist(dut),
	}
	var out []string
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}

// Runner runs an external command in dir and returns its combined stdout
// and stderr. A non-zero exit is reported as an error together with the
// output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir, name string, args ...string) (string, error)

func (f RunnerFunc) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	return f(ctx, dir, name, args...)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Option configures a tool wrapper.
type Option func(*tool)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(t *tool) {
		if r != nil {
			t.run = r
		}
	}
}

// WithLogger sets the logger for command traces.
func WithLogger(l *slog.Logger) Option {
	return func(t *tool) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithImage sets the OpenSTA container image used by PowerAnalyzer.
func WithImage(image string) Option {
	return func(t *tool) {
		if image != "" {
			t.image = image
		}
	}
}

// DefaultImage is the OpenSTA container image.
const DefaultImage = "opensta"

type tool struct {
	ws     Workspace
	run    Runner
	logger *slog.Logger
	image  string
}

func newTool(ws Workspace, opts []Option) tool {
	t := tool{
		ws:     ws,
		run:    ExecRunner{},
		logger: slog.Default(),
		image:  DefaultImage,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func (t *tool) exec(ctx context.Context, dir, name string, args ...string) (string, error) {
	t.logger.Debug("eda: run", "dir", dir, "cmd", name+" "+strings.Join(args, " "))
	out, err := t.run.Run(ctx, dir, name, args...)
	if err != nil {
		t.logger.Debug("eda: command failed", "cmd", name, "error", err)
	}
	return out, err
}

// writeSource writes source as dut.v in dir and returns its path.
func writeSource(dir, dut, source string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, dut+".v")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// describe returns the output of a failed command, falling back to the
// error text when the command printed nothing.
func describe(out string, err error) string {
	if strings.TrimSpace(out) == "" && err != nil {
		return err.Error()
	}
	return out
}
