package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"
	// FormatText prints fmt.Stringer results with String and falls back to
	// YAML otherwise.
	FormatText OutputFormat = "text"
)

// OutputOptions configures Output.
type OutputOptions struct {
	Format OutputFormat

	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// Output writes result in the selected format.
func Output(result any, opts OutputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatYAML, "":
		return outputYAML(w, result)
	case FormatText:
		switch v := result.(type) {
		case string:
			_, err := io.WriteString(w, v)
			return err
		case fmt.Stringer:
			_, err := io.WriteString(w, v.String())
			return err
		}
		return outputYAML(w, result)
	default:
		return fmt.Errorf("cli: unsupported output format %q", opts.Format)
	}
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("cli: format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PrintSuccess prints a confirmation line to w.
func PrintSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ "+format+"\n", args...)
}
