package eda

import (
	"context"
	"regexp"
	"strings"
)

// Report prefixes of the simulator.
const (
	SimCompileError = "Icarus Verilog gave an error during compilation. Please investigate and fix:\n"
	SimRunError     = "Icarus Verilog simulator gave an error during simulation. Please investigate and fix:\n"
	SimPassed       = "The simulation passed successfully\nExecution time (ns) == "
)

var timeRe = regexp.MustCompile(`TIME:\s*(\d+)`)

// Simulator compiles a design against the task testbench with iverilog and
// runs it with vvp.
type Simulator struct {
	tool
}

// NewSimulator returns a Simulator working in ws.
func NewSimulator(ws Workspace, opts ...Option) *Simulator {
	return &Simulator{tool: newTool(ws, opts)}
}

// Simulate returns the simulation report of source for a task. It reports
// the execution time on success and a diagnostic otherwise.
func (s *Simulator) Simulate(ctx context.Context, source string, taskID int) string {
	dut, err := ExtractModuleName(source)
	if err != nil {
		return SimCompileError + err.Error()
	}
	dir := s.ws.SimDir(taskID)
	if _, err := writeSource(dir, dut, source); err != nil {
		return SimCompileError + err.Error()
	}

	out, err := s.exec(ctx, dir, "iverilog",
		"-o", dut,
		"-DDUT_NAME="+dut,
		dut+".v",
		s.ws.Testbench(taskID),
	)
	if err != nil {
		return SimCompileError + describe(out, err)
	}

	out, err = s.exec(ctx, dir, "vvp", dut)
	if err != nil {
		return SimRunError + describe(out, err)
	}
	return simReport(out)
}

// simReport classifies vvp output. The testbench prints FAILED or PASSED;
// output with neither is a failure.
func simReport(out string) string {
	if strings.Contains(out, "FAILED") || !strings.Contains(out, "PASSED") {
		return SimRunError + out
	}
	m := timeRe.FindStringSubmatch(out)
	if m == nil {
		return SimRunError + "execution time could not be extracted from the simulation output\n" + out
	}
	return SimPassed + m[1]
}
