package eda

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Report prefixes of the power analyzer.
const (
	PowerError  = "OpenSTA gave an error during power analysis. Please investigate and fix:\n"
	PowerPassed = "The power analysis completed successfully\nPower (mW) == "
)

// PowerTemplate is the OpenSTA script template in the benchmark directory.
// {MODULE_NAME} and {TASK_NUM} are substituted before the run.
const PowerTemplate = "power.tcl"

// containerRoot is where Workspace.Root is mounted in the OpenSTA container.
const containerRoot = "/autoppa"

// PowerAnalyzer estimates total power with OpenSTA running in a container.
type PowerAnalyzer struct {
	tool
}

// NewPowerAnalyzer returns a PowerAnalyzer working in ws.
func NewPowerAnalyzer(ws Workspace, opts ...Option) *PowerAnalyzer {
	return &PowerAnalyzer{tool: newTool(ws, opts)}
}

// AnalyzePower returns the power report of source for a task. Simulation
// and synthesis of the same source must have run first; otherwise the
// error wraps ErrResourceMissing. Tool failures are report text.
func (p *PowerAnalyzer) AnalyzePower(ctx context.Context, source string, taskID int) (string, error) {
	dut, err := ExtractModuleName(source)
	if err != nil {
		return "", err
	}
	if !exists(p.ws.VCD(taskID, dut)) {
		return "", fmt.Errorf("%w: simulation must be run before power analysis", ErrResourceMissing)
	}
	if !exists(p.ws.Netlist(dut)) {
		return "", fmt.Errorf("%w: synthesis must be run before power analysis", ErrResourceMissing)
	}

	tpl, err := os.ReadFile(filepath.Join(p.ws.BenchmarkDir, PowerTemplate))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrResourceMissing, err)
		}
		return "", fmt.Errorf("eda: read power template: %w", err)
	}
	script := strings.NewReplacer(
		"{MODULE_NAME}", dut,
		"{TASK_NUM}", strconv.Itoa(taskID),
	).Replace(string(tpl))

	tcl := filepath.Join(p.ws.SimDir(taskID), dut+".tcl")
	if err := os.WriteFile(tcl, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("eda: write power script: %w", err)
	}
	root, err := filepath.Abs(p.ws.Root)
	if err != nil {
		return "", fmt.Errorf("eda: resolve workspace root: %w", err)
	}
	absTcl, err := filepath.Abs(tcl)
	if err != nil {
		return "", fmt.Errorf("eda: resolve power script: %w", err)
	}
	rel, err := filepath.Rel(root, absTcl)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("eda: build dir %s is outside workspace root %s", p.ws.BuildDir, p.ws.Root)
	}

	out, err := p.exec(ctx, root, "docker",
		"run", "--rm",
		"-v", root+":"+containerRoot,
		p.image,
		"-no_init", "-no_splash",
		strings.TrimPrefix(containerRoot, "/")+"/"+filepath.ToSlash(rel),
	)
	if err != nil {
		return PowerError + describe(out, err), nil
	}
	mw, ok := totalPower(out)
	if !ok {
		return PowerError + "total power could not be extracted from the power report\n" + out, nil
	}
	return PowerPassed + mw, nil
}

// totalPower returns the total power of an OpenSTA report_power table in
// milliwatts. The Total row holds internal, switching, leakage and total
// power in watts.
func totalPower(out string) (string, bool) {
	for line := range strings.Lines(out) {
		if !strings.HasPrefix(strings.TrimSpace(line), "Total") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 5 {
			continue
		}
		w, err := strconv.ParseFloat(parts[4], 64)
		if err != nil {
			continue
		}
		return strconv.FormatFloat(w*1000, 'f', 4, 64), true
	}
	return "", false
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
