package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/autoppa/pkg/bench"
	"github.com/haivivi/autoppa/pkg/eda"
	"github.com/haivivi/autoppa/pkg/task"
)

var (
	benchBaseline string
	powerImage    string
)

// toolResult is the --json shape of a single tool report.
type toolResult struct {
	Task   int    `json:"task,omitempty" yaml:"task,omitempty"`
	File   string `json:"file" yaml:"file"`
	Report string `json:"report" yaml:"report"`
}

func (r toolResult) String() string { return r.Report + "\n" }

var simCmd = &cobra.Command{
	Use:   "sim <task> <file>",
	Short: "Compile and simulate a design against a task testbench",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, id, source, err := loadToolArgs(args[0], args[1])
		if err != nil {
			return err
		}
		sim := eda.NewSimulator(e.workspace(), e.toolOptions()...)
		report := sim.Simulate(commandContext(cmd), source, id)
		return printResult(cmd, toolResult{Task: id, File: args[1], Report: report})
	},
}

var synthCmd = &cobra.Command{
	Use:   "synth <file>",
	Short: "Synthesize a design with yosys and report its area",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		source, err := readSource(args[0])
		if err != nil {
			return err
		}
		synth := eda.NewSynthesizer(e.workspace(), e.toolOptions()...)
		report := synth.Synthesize(commandContext(cmd), source)
		return printResult(cmd, toolResult{File: args[0], Report: report})
	},
}

var powerCmd = &cobra.Command{
	Use:   "power <task> <file>",
	Short: "Estimate total power with OpenSTA",
	Long: `Estimate the total power of a design with OpenSTA running in a container.

The design must have been simulated for the task and synthesized first, so
the waveform dump and the netlist exist in the build directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, id, source, err := loadToolArgs(args[0], args[1])
		if err != nil {
			return err
		}
		opts := append(e.toolOptions(), eda.WithImage(powerImage))
		report, err := eda.NewPowerAnalyzer(e.workspace(), opts...).AnalyzePower(commandContext(cmd), source, id)
		if err != nil {
			return err
		}
		return printResult(cmd, toolResult{Task: id, File: args[1], Report: report})
	},
}

var benchCmd = &cobra.Command{
	Use:   "bench <task>",
	Short: "Simulate, synthesize and analyze a baseline design",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		ws := e.workspace()
		opts := e.toolOptions()
		b := &bench.Bench{
			Tasks:       store,
			Simulator:   eda.NewSimulator(ws, opts...),
			Synthesizer: eda.NewSynthesizer(ws, opts...),
			Power:       eda.NewPowerAnalyzer(ws, append(opts, eda.WithImage(powerImage))...),
		}
		report, runErr := b.Run(commandContext(cmd), bench.Params{TaskID: id, Baseline: benchBaseline})
		if report != nil {
			if err := printResult(cmd, report); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	benchCmd.Flags().StringVar(&benchBaseline, "baseline", task.BaselineReference, "baseline variant (reference or optimized)")
	benchCmd.Flags().StringVar(&powerImage, "image", eda.DefaultImage, "OpenSTA container image")
	powerCmd.Flags().StringVar(&powerImage, "image", eda.DefaultImage, "OpenSTA container image")

	rootCmd.AddCommand(simCmd, synthCmd, powerCmd, benchCmd)
}

func parseTaskID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid task number %q", s)
	}
	return id, nil
}

func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read design: %w", err)
	}
	return string(b), nil
}

// loadToolArgs resolves the environment and checks the task number against
// the benchmark metadata.
func loadToolArgs(taskArg, file string) (*env, int, string, error) {
	e, err := loadEnv()
	if err != nil {
		return nil, 0, "", err
	}
	id, err := parseTaskID(taskArg)
	if err != nil {
		return nil, 0, "", err
	}
	store, err := e.tasks()
	if err != nil {
		return nil, 0, "", err
	}
	if err := store.ValidateID(id); err != nil {
		return nil, 0, "", err
	}
	source, err := readSource(file)
	if err != nil {
		return nil, 0, "", err
	}
	return e, id, source, nil
}
