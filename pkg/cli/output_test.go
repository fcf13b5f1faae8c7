package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type report struct {
	Task int    `json:"task" yaml:"task"`
	Sim  string `json:"sim" yaml:"sim"`
}

func (r report) String() string { return "task " + r.Sim }

func TestOutput(t *testing.T) {
	data := report{Task: 1, Sim: "passed"}

	var js bytes.Buffer
	if err := Output(data, OutputOptions{Format: FormatJSON, Writer: &js}); err != nil {
		t.Fatal(err)
	}
	var back report
	if err := json.Unmarshal(js.Bytes(), &back); err != nil || back != data {
		t.Errorf("JSON round trip = %+v, %v", back, err)
	}

	for _, f := range []OutputFormat{FormatYAML, ""} {
		var y bytes.Buffer
		if err := Output(data, OutputOptions{Format: f, Writer: &y}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(y.String(), "sim: passed") {
			t.Errorf("format %q output = %q", f, y.String())
		}
	}

	var txt bytes.Buffer
	if err := Output(data, OutputOptions{Format: FormatText, Writer: &txt}); err != nil {
		t.Fatal(err)
	}
	if txt.String() != "task passed" {
		t.Errorf("text output = %q", txt.String())
	}

	txt.Reset()
	if err := Output(map[string]int{"n": 1}, OutputOptions{Format: FormatText, Writer: &txt}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(txt.String(), "n: 1") {
		t.Errorf("text fallback = %q", txt.String())
	}
}

func TestOutput_UnsupportedFormat(t *testing.T) {
	if err := Output(1, OutputOptions{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Error("Output(xml) succeeded")
	}
}

func TestPrintSuccess(t *testing.T) {
	var buf bytes.Buffer
	PrintSuccess(&buf, "switched to %s", "lab")
	if buf.String() != "✓ switched to lab\n" {
		t.Errorf("PrintSuccess = %q", buf.String())
	}
}
