// Package task loads optimization tasks from a benchmark directory.
//
// The benchmark directory holds metadata.json, an array with one entry per
// task, and the testbench of task N as taskN.v. The baseline directory holds
// one subdirectory per baseline variant (reference, optimized) with the
// baseline design of task N as taskN.v.
package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTask is returned for an id outside the benchmark.
var ErrUnknownTask = errors.New("task: unknown task")

// Baseline variants shipped with the benchmark.
const (
	BaselineReference = "reference"
	BaselineOptimized = "optimized"
)

// Baselines lists the valid baseline variants.
var Baselines = []string{BaselineReference, BaselineOptimized}

// Metadata file names tried in order in the benchmark directory.
var MetadataFiles = []string{"metadata.json", "metadata.yaml", "metadata.yml"}

// Value is a metadata scalar kept as the text written in the file, whether
// it was written as a number or a string.
type Value string

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("task: baseline must be a number or string: %w", err)
	}
	*v = Value(n.String())
	return nil
}

func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("task: baseline must be a scalar, line %d", n.Line)
	}
	*v = Value(n.Value)
	return nil
}

// Task is one optimization task.
type Task struct {
	ID          int    `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
	Metric      string `json:"metric" yaml:"metric"`
	// Baseline is the metric value of the reference design, kept as written
	// in the metadata.
	Baseline Value  `json:"baseline" yaml:"baseline"`
	Units    string `json:"units" yaml:"units"`

	Reference string `json:"-" yaml:"-"`
	Testbench string `json:"-" yaml:"-"`
}

// Store reads tasks from a benchmark and a baseline directory.
type Store struct {
	benchmarkDir string
	baselineDir  string
	meta         []Task
}

// Open reads the task metadata from benchmarkDir.
func Open(benchmarkDir, baselineDir string) (*Store, error) {
	meta, err := readMetadata(benchmarkDir)
	if err != nil {
		return nil, err
	}
	for i := range meta {
		meta[i].ID = i + 1
	}
	return &Store{
		benchmarkDir: benchmarkDir,
		baselineDir:  baselineDir,
		meta:         meta,
	}, nil
}

func readMetadata(dir string) ([]Task, error) {
	for _, name := range MetadataFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("task: read metadata: %w", err)
		}
		var meta []Task
		if filepath.Ext(name) == ".json" {
			err = json.Unmarshal(data, &meta)
		} else {
			err = yaml.Unmarshal(data, &meta)
		}
		if err != nil {
			return nil, fmt.Errorf("task: decode %s: %w", name, err)
		}
		return meta, nil
	}
	return nil, fmt.Errorf("task: no metadata in %s: %w", dir, fs.ErrNotExist)
}

// Len returns the number of tasks.
func (s *Store) Len() int { return len(s.meta) }

// ValidateID checks that id names a task of the store.
func (s *Store) ValidateID(id int) error {
	return ValidateID(id, len(s.meta))
}

// ValidateID checks that id is in 1..n.
func ValidateID(id, n int) error {
	if id < 1 || id > n {
		return fmt.Errorf("%w %d: valid ids are 1..%d", ErrUnknownTask, id, n)
	}
	return nil
}

// ValidateBaseline checks that b is a known baseline variant.
func ValidateBaseline(b string) error {
	if !slices.Contains(Baselines, b) {
		return fmt.Errorf("task: invalid baseline %q: want one of %s", b, strings.Join(Baselines, ", "))
	}
	return nil
}

// Metadata returns the metadata of task id without reading its sources.
func (s *Store) Metadata(id int) (Task, error) {
	if err := s.ValidateID(id); err != nil {
		return Task{}, err
	}
	return s.meta[id-1], nil
}

// Get returns task id with its reference design and testbench.
func (s *Store) Get(id int) (*Task, error) {
	t, err := s.Metadata(id)
	if err != nil {
		return nil, err
	}
	if t.Reference, err = s.Source(id, BaselineReference); err != nil {
		return nil, err
	}
	tb, err := os.ReadFile(s.TestbenchPath(id))
	if err != nil {
		return nil, fmt.Errorf("task: read testbench: %w", err)
	}
	t.Testbench = string(tb)
	return &t, nil
}

// Source returns the baseline design of task id for the given variant.
func (s *Store) Source(id int, baseline string) (string, error) {
	if err := s.ValidateID(id); err != nil {
		return "", err
	}
	if err := ValidateBaseline(baseline); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(s.baselineDir, baseline, FileName(id)))
	if err != nil {
		return "", fmt.Errorf("task: read %s baseline: %w", baseline, err)
	}
	return string(b), nil
}

// TestbenchPath returns the path of the testbench of task id.
func (s *Store) TestbenchPath(id int) string {
	return filepath.Join(s.benchmarkDir, FileName(id))
}

// FileName returns the per-task source file name, taskN.v.
func FileName(id int) string {
	return fmt.Sprintf("task%d.v", id)
}
