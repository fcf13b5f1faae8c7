package eda

import (
	"context"
	"path/filepath"
	"regexp"
)

// Report prefixes of the synthesizer.
const (
	SynthError  = "Yosys gave an error during synthesis. Please investigate and fix:\n"
	SynthPassed = "The synthesis completed successfully\nArea (number of cells) == "
)

var cellsRe = regexp.MustCompile(`Number of cells:\s+(\d+)`)

// Synthesizer synthesizes a design with yosys and reports its cell count.
type Synthesizer struct {
	tool
}

// NewSynthesizer returns a Synthesizer working in ws.
func NewSynthesizer(ws Workspace, opts ...Option) *Synthesizer {
	return &Synthesizer{tool: newTool(ws, opts)}
}

// Synthesize returns the synthesis report of source. The synthesized
// netlist is written to Workspace.Netlist for power analysis.
func (s *Synthesizer) Synthesize(ctx context.Context, source string) string {
	dut, err := ExtractModuleName(source)
	if err != nil {
		return SynthError + err.Error()
	}
	dir := s.ws.SynthDir()
	src, err := writeSource(dir, dut, source)
	if err != nil {
		return SynthError + err.Error()
	}

	out, err := s.exec(ctx, dir, "yosys",
		"-p", "read_verilog "+src,
		"-p", "synth",
		"-p", "write_verilog "+s.ws.Netlist(dut),
		"-l", filepath.Join(dir, dut+".log"),
	)
	if err != nil {
		return SynthError + describe(out, err)
	}
	m := cellsRe.FindStringSubmatch(out)
	if m == nil {
		return SynthError + "area could not be extracted from the synthesis report\n" + out
	}
	return SynthPassed + m[1]
}
