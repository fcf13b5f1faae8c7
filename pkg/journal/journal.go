// Package journal persists agent runs and their iterations.
//
// Key layout:
//
//	run:{id}:meta         → msgpack-encoded Run
//	run:{id}:iter:{NNNNNN} → msgpack-encoded Iteration
//
// Iteration numbers are zero-padded so lexicographic order matches
// iteration order.
package journal

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrAmbiguous is returned by Lookup when a prefix matches several runs.
var ErrAmbiguous = errors.New("journal: ambiguous run id")

// Run describes one agent session.
type Run struct {
	ID            string    `msgpack:"id" json:"id" yaml:"id"`
	TaskID        int       `msgpack:"task" json:"task" yaml:"task"`
	Model         string    `msgpack:"model" json:"model" yaml:"model"`
	MaxIterations int       `msgpack:"max_iters" json:"max_iterations" yaml:"max_iterations"`
	MaxTokens     int       `msgpack:"max_tokens" json:"max_tokens" yaml:"max_tokens"`
	Override      bool      `msgpack:"override,omitempty" json:"override,omitempty" yaml:"override,omitempty"`
	StartedAt     time.Time `msgpack:"started" json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time `msgpack:"finished,omitempty" json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
	State         string    `msgpack:"state,omitempty" json:"state,omitempty" yaml:"state,omitempty"`
	Iterations    int       `msgpack:"iters" json:"iterations" yaml:"iterations"`
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Iteration is the record of one generate/validate pass.
type Iteration struct {
	Iteration     int       `msgpack:"n" json:"iteration" yaml:"iteration"`
	Source        string    `msgpack:"src" json:"source" yaml:"source"`
	SimReport     string    `msgpack:"sim" json:"sim_report" yaml:"sim_report"`
	SynthReport   string    `msgpack:"synth" json:"synth_report" yaml:"synth_report"`
	Decision      string    `msgpack:"decision" json:"decision" yaml:"decision"`
	InputTokens   int64     `msgpack:"in" json:"input_tokens" yaml:"input_tokens"`
	OutputTokens  int64     `msgpack:"out" json:"output_tokens" yaml:"output_tokens"`
	ContextTokens int       `msgpack:"ctx" json:"context_tokens" yaml:"context_tokens"`
	Degraded      bool      `msgpack:"degraded,omitempty" json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Artifacts     []string  `msgpack:"artifacts,omitempty" json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	RecordedAt    time.Time `msgpack:"at" json:"recorded_at" yaml:"recorded_at"`
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// Journal records runs in a Store.
type Journal struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Journal over store. The Journal owns store; Close closes it.
func New(store Store, opts ...Option) *Journal {
	j := &Journal{store: store, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Open opens a Badger-backed Journal in dir.
func Open(dir string, opts ...Option) (*Journal, error) {
	j := New(nil, opts...)
	s, err := OpenBadger(BadgerOptions{Dir: dir, Logger: j.logger})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dir, err)
	}
	j.store = s
	return j, nil
}

// Close closes the underlying store.
func (j *Journal) Close() error { return j.store.Close() }

func metaKey(id string) Key { return Key{"run", id, "meta"} }

func iterKey(id string, n int) Key {
	return Key{"run", id, "iter", fmt.Sprintf("%06d", n)}
}

// Start stores a new run. An empty ID is replaced by a random UUID and a zero
// StartedAt by the current time.
func (j *Journal) Start(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if strings.Contains(r.ID, ":") {
		return Run{}, fmt.Errorf("journal: invalid run id %q", r.ID)
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = j.now()
	}
	if err := j.putRun(ctx, r); err != nil {
		return Run{}, err
	}
	j.logger.Debug("journal: run started", "run", r.ID, "task", r.TaskID)
	return r, nil
}

// Record stores one iteration of run id.
func (j *Journal) Record(ctx context.Context, id string, it Iteration) error {
	r, err := j.Run(ctx, id)
	if err != nil {
		return err
	}
	if it.RecordedAt.IsZero() {
		it.RecordedAt = j.now()
	}
	data, err := msgpack.Marshal(&it)
	if err != nil {
		return fmt.Errorf("journal: marshal iteration: %w", err)
	}
	r.Iterations = max(r.Iterations, it.Iteration)
	meta, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("journal: marshal run: %w", err)
	}
	return j.store.BatchSet(ctx, []Entry{
		{Key: iterKey(id, it.Iteration), Value: data},
		{Key: metaKey(id), Value: meta},
	})
}

// Finish marks run id as terminated in state.
func (j *Journal) Finish(ctx context.Context, id, state string) error {
	r, err := j.Run(ctx, id)
	if err != nil {
		return err
	}
	r.State = state
	r.FinishedAt = j.now()
	return j.putRun(ctx, r)
}

func (j *Journal) putRun(ctx context.Context, r Run) error {
	data, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("journal: marshal run: %w", err)
	}
	return j.store.Set(ctx, metaKey(r.ID), data)
}

// Run returns the run with exactly id.
func (j *Journal) Run(ctx context.Context, id string) (Run, error) {
	data, err := j.store.Get(ctx, metaKey(id))
	if errors.Is(err, ErrNotFound) {
		return Run{}, fmt.Errorf("journal: run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	var r Run
	if err := msgpack.Unmarshal(data, &r); err != nil {
		return Run{}, fmt.Errorf("journal: decode run %s: %w", id, err)
	}
	return r, nil
}

// Lookup resolves a full run id or a unique prefix of one.
func (j *Journal) Lookup(ctx context.Context, idOrPrefix string) (Run, error) {
	if r, err := j.Run(ctx, idOrPrefix); err == nil || !errors.Is(err, ErrNotFound) {
		return r, err
	}
	runs, err := j.Runs(ctx)
	if err != nil {
		return Run{}, err
	}
	var found []Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, idOrPrefix) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("journal: run %s: %w", idOrPrefix, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("%w: %s matches %d runs", ErrAmbiguous, idOrPrefix, len(found))
	}
}

// Runs returns all runs, most recently started first.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	for e, err := range j.store.List(ctx, Key{"run"}) {
		if err != nil {
			return nil, err
		}
		if len(e.Key) != 3 || e.Key[2] != "meta" {
			continue
		}
		var r Run
		if err := msgpack.Unmarshal(e.Value, &r); err != nil {
			j.logger.Warn("journal: skip undecodable run", "key", e.Key.String(), "error", err)
			continue
		}
		runs = append(runs, r)
	}
	slices.SortStableFunc(runs, func(a, b Run) int {
		return cmp.Or(b.StartedAt.Compare(a.StartedAt), strings.Compare(a.ID, b.ID))
	})
	return runs, nil
}

// Iterations returns the recorded iterations of run id in order.
func (j *Journal) Iterations(ctx context.Context, id string) ([]Iteration, error) {
	var its []Iteration
	for e, err := range j.store.List(ctx, Key{"run", id, "iter"}) {
		if err != nil {
			return nil, err
		}
		if len(e.Key) != 4 {
			continue
		}
		if _, err := strconv.Atoi(e.Key[3]); err != nil {
			continue
		}
		var it Iteration
		if err := msgpack.Unmarshal(e.Value, &it); err != nil {
			return nil, fmt.Errorf("journal: decode %s: %w", e.Key, err)
		}
		its = append(its, it)
	}
	return its, nil
}
