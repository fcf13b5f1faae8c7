package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/autoppa/pkg/agent"
	"github.com/haivivi/autoppa/pkg/artifact"
	"github.com/haivivi/autoppa/pkg/cli"
	"github.com/haivivi/autoppa/pkg/eda"
	"github.com/haivivi/autoppa/pkg/genx"
	"github.com/haivivi/autoppa/pkg/journal"
	"github.com/haivivi/autoppa/pkg/task"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, contextName = "", ""
	verbose, jsonOutput, noColor = false, false, true
	outputFmt = string(cli.FormatYAML)
	rootCmd.PersistentFlags().Lookup("output").Changed = false
	runsShowSource = false
	benchBaseline, powerImage = task.BaselineReference, eda.DefaultImage
	agentPromptFile, agentModel = "", ""
	newContext.Context = cli.Context{}
	newContext.artifacts = ""
	newContext.s3 = artifact.S3Config{}

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupWorkspace writes a config with one context whose root holds a
// single-task benchmark.
func setupWorkspace(t *testing.T) (cfgPath, root string) {
	t.Helper()
	root = t.TempDir()
	writeFile(t, filepath.Join(root, "benchmark", "metadata.json"),
		`[{"description":"pipelined adder","metric":"Area","baseline":"120","units":"cells"}]`)
	writeFile(t, filepath.Join(root, "benchmark", "task1.v"), "module tb; endmodule\n")
	writeFile(t, filepath.Join(root, "baseline", task.BaselineReference, "task1.v"), "module top; endmodule\n")

	cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := cli.LoadConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.AddContext("lab", &cli.Context{
		Root:       root,
		Model:      "openai/gpt-5-mini",
		JournalDir: filepath.Join(root, "journal"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfgPath, root
}

func TestConfigCommands(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	root := t.TempDir()

	out, err := runCmd(t, "--config", cfgPath, "config", "add-context", "lab",
		"--root", root, "--model", "openai/gpt-5-mini", "--max-iters", "8")
	if err != nil {
		t.Fatalf("add-context: %v", err)
	}
	if !strings.Contains(out, `Context "lab" saved`) {
		t.Errorf("add-context output = %q", out)
	}
	if _, err := runCmd(t, "--config", cfgPath, "config", "add-context", "ci",
		"--artifacts", "s3", "--s3-bucket", "runs", "--s3-path-style"); err != nil {
		t.Fatalf("add-context ci: %v", err)
	}

	out, err = runCmd(t, "--config", cfgPath, "config", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ci") || !strings.Contains(out, "* ") || !strings.Contains(out, "openai/gpt-5-mini") {
		t.Errorf("list output = %q", out)
	}

	out, err = runCmd(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"name: lab",
		"max_iterations: 8",
		"benchmark_dir: " + filepath.Join(root, "benchmark"),
		"tokenizer: o200k_base",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCmd(t, "--config", cfgPath, "config", "use-context", "ci"); err != nil {
		t.Fatal(err)
	}
	out, err = runCmd(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bucket: runs") || !strings.Contains(out, "path_style: true") {
		t.Errorf("show ci output = %q", out)
	}

	if _, err := runCmd(t, "--config", cfgPath, "config", "use-context", "missing"); err == nil {
		t.Error("use-context missing succeeded")
	}
	if _, err := runCmd(t, "--config", cfgPath, "config", "add-context", "bad", "--artifacts", "s3"); err == nil {
		t.Error("s3 context without bucket accepted")
	}
	if _, err := runCmd(t, "--config", cfgPath, "config", "delete-context", "ci"); err != nil {
		t.Fatal(err)
	}
}

func TestToolCommands_Errors(t *testing.T) {
	cfgPath, root := setupWorkspace(t)
	design := filepath.Join(root, "design.v")
	writeFile(t, design, "module top; endmodule\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"task not a number", []string{"sim", "one", design}, "invalid task number"},
		{"unknown task", []string{"sim", "2", design}, "unknown task"},
		{"missing design", []string{"sim", "1", filepath.Join(root, "nope.v")}, "read design"},
		{"power unknown task", []string{"power", "7", design}, "unknown task"},
		{"bench bad baseline", []string{"bench", "1", "--baseline", "golden"}, "invalid baseline"},
		{"synth missing design", []string{"synth", filepath.Join(root, "nope.v")}, "read design"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCmd(t, append([]string{"--config", cfgPath}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAgentCommand_UnknownModel(t *testing.T) {
	cfgPath, _ := setupWorkspace(t)
	cfg, err := cli.LoadConfig(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	lab, _ := cfg.GetContext("lab")
	lab.ModelsDir = t.TempDir()
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	_, err = runCmd(t, "--config", cfgPath, "agent", "1", "--model", "nobody/none")
	if err == nil || !strings.Contains(err.Error(), "endpoint not found for nobody/none") {
		t.Errorf("err = %v", err)
	}
	if _, err := runCmd(t, "--config", cfgPath, "agent", "1", "--prompt", filepath.Join(cfgPath, "nope")); err == nil {
		t.Error("missing prompt file accepted")
	}
}

func TestRunsCommands(t *testing.T) {
	cfgPath, root := setupWorkspace(t)

	ctx := context.Background()
	j, err := journal.Open(filepath.Join(root, "journal"))
	if err != nil {
		t.Fatal(err)
	}
	run, err := j.Start(ctx, journal.Run{TaskID: 1, Model: "openai/gpt-5-mini", MaxIterations: 2, MaxTokens: 1000})
	if err != nil {
		t.Fatal(err)
	}
	err = j.Record(ctx, run.ID, journal.Iteration{
		Iteration:   1,
		Source:      "module top; endmodule",
		SimReport:   "The simulation passed successfully",
		SynthReport: "Area (number of cells) == 90",
		Decision:    "continue",
		Artifacts:   []string{run.ID + "/0001/top.vcd"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Finish(ctx, run.ID, agent.StateStopByLimit.String()); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "--config", cfgPath, "runs", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, cli.ShortID(run.ID)) || !strings.Contains(out, "STOP_BY_LIMIT") || !strings.Contains(out, "1/2") {
		t.Errorf("list output = %q", out)
	}

	out, err = runCmd(t, "--config", cfgPath, "-o", "text", "runs", "show", run.ID[:6], "--source")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Run:        " + run.ID,
		"-------- ITERATION 1 (continue) --------",
		"module top; endmodule",
		"Area (number of cells) == 90",
		"artifact: " + run.ID + "/0001/top.vcd",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := runCmd(t, "--config", cfgPath, "runs", "show", "zzzz"); !errors.Is(err, journal.ErrNotFound) {
		t.Errorf("show unknown run: err = %v", err)
	}
}

func TestIterationRecord(t *testing.T) {
	o := agent.Outcome{
		Iteration:     2,
		Source:        "module top; endmodule",
		SimReport:     "sim",
		SynthReport:   "synth",
		Usage:         genx.Usage{InputTokens: 300, OutputTokens: 40},
		ContextTokens: 512,
		Degraded:      true,
		Artifacts:     []string{"r/0002/top.vcd"},
		Next:          agent.StateGenerate,
	}
	it := iterationRecord(o)
	if it.Iteration != 2 || it.Decision != "continue" || it.InputTokens != 300 || it.OutputTokens != 40 ||
		it.ContextTokens != 512 || !it.Degraded || len(it.Artifacts) != 1 {
		t.Errorf("record = %+v", it)
	}

	o.Next = agent.StateStopByUser
	if got := iterationRecord(o).Decision; got != "STOP_BY_USER" {
		t.Errorf("Decision = %q", got)
	}
}

func TestRunArchiver(t *testing.T) {
	ws := eda.NewWorkspace(t.TempDir())
	writeFile(t, ws.VCD(4, "top"), "$dumpvars")
	writeFile(t, ws.Netlist("top"), "module top(); endmodule")

	store, err := artifact.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ra := &runArchiver{ar: artifact.NewArchiver(store, nil), ws: ws, taskID: 4, runID: "run1"}

	names, err := ra.Archive(context.Background(), agent.Outcome{Iteration: 3, Source: "module top(input a); endmodule"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"run1/0003/top.vcd", "run1/0003/synth_top.v"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", names, want)
	}

	names, err = ra.Archive(context.Background(), agent.Outcome{Iteration: 4, Source: "no verilog here"})
	if err != nil || names != nil {
		t.Errorf("Archive without module = %v, %v", names, err)
	}
}

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"no thanks\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := newPrompter(strings.NewReader(tt.input), &out)
			got, err := p.Confirm(context.Background(), "Continue?")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Confirm(%q) = %t, want %t", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Continue? [Y/n]") {
				t.Errorf("question = %q", out.String())
			}
		})
	}
}

func TestPrompter_ConfirmCancelled(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newPrompter(r, &bytes.Buffer{})
	if _, err := p.Confirm(ctx, "Continue?"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	// The answer typed after the cancelled question goes to the next one.
	if _, err := w.WriteString("n\ny\n"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []bool{false, true} {
		got, err := p.Confirm(context.Background(), "Retry?")
		if err != nil || got != want {
			t.Errorf("Confirm = %t, %v, want %t", got, err, want)
		}
	}
	w.Close()
	if got, err := p.Confirm(context.Background(), "Again?"); got || err != nil {
		t.Errorf("Confirm after end of input = %t, %v", got, err)
	}
}

func TestPrintResult_DefaultsToYAML(t *testing.T) {
	cfgPath, _ := setupWorkspace(t)
	out, err := runCmd(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "name: lab\n") {
		t.Errorf("default output is not YAML:\n%s", out)
	}

	out, err = runCmd(t, "--config", cfgPath, "-o", "json", "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "{") {
		t.Errorf("-o json output = %q", out)
	}

	if _, err := runCmd(t, "--config", cfgPath, "-o", "xml", "config", "show"); err == nil {
		t.Error("-o xml accepted")
	}
}

func TestFirstPositive(t *testing.T) {
	if got := firstPositive(0, -1, 7, 3); got != 7 {
		t.Errorf("firstPositive = %d", got)
	}
	if got := firstNonEmpty("", "b"); got != "b" {
		t.Errorf("firstNonEmpty = %q", got)
	}
}
