package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/haivivi/autoppa/pkg/agent"
	"github.com/haivivi/autoppa/pkg/artifact"
	"github.com/haivivi/autoppa/pkg/cli"
	"github.com/haivivi/autoppa/pkg/eda"
	"github.com/haivivi/autoppa/pkg/journal"
)

// runJournal records agent outcomes under one journal run.
type runJournal struct {
	j     *journal.Journal
	runID string
}

var _ agent.Journal = (*runJournal)(nil)

func (r *runJournal) Record(ctx context.Context, o agent.Outcome) error {
	return r.j.Record(ctx, r.runID, iterationRecord(o))
}

func iterationRecord(o agent.Outcome) journal.Iteration {
	decision := agent.Continue.String()
	if o.Next.Terminal() {
		decision = o.Next.String()
	}
	return journal.Iteration{
		Iteration:     o.Iteration,
		Source:        o.Source,
		SimReport:     o.SimReport,
		SynthReport:   o.SynthReport,
		Decision:      decision,
		InputTokens:   o.Usage.InputTokens,
		OutputTokens:  o.Usage.OutputTokens,
		ContextTokens: o.ContextTokens,
		Degraded:      o.Degraded,
		Artifacts:     o.Artifacts,
	}
}

// runArchiver archives the build outputs of the design of an outcome.
type runArchiver struct {
	ar     *artifact.Archiver
	ws     eda.Workspace
	taskID int
	runID  string
}

var _ agent.Archiver = (*runArchiver)(nil)

func (r *runArchiver) Archive(ctx context.Context, o agent.Outcome) ([]string, error) {
	dut, err := eda.ExtractModuleName(o.Source)
	if err != nil {
		// Nothing was built.
		return nil, nil
	}
	return r.ar.Archive(ctx, r.runID, o.Iteration, r.ws.Artifacts(r.taskID, dut))
}

func newArchiver(cfg *cli.ArtifactStore, logger *slog.Logger) (*artifact.Archiver, error) {
	var store artifact.Store
	switch cfg.Kind {
	case cli.ArtifactsLocal:
		l, err := artifact.NewLocal(cfg.Dir)
		if err != nil {
			return nil, err
		}
		store = l
	case cli.ArtifactsS3:
		if cfg.S3 == nil {
			return nil, errors.New("s3 artifact store is not configured")
		}
		client, err := artifact.NewS3Client(*cfg.S3)
		if err != nil {
			return nil, err
		}
		store = artifact.NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unknown artifact store kind %q", cfg.Kind)
	}
	return artifact.NewArchiver(store, logger), nil
}

// prompter asks yes/no questions on a terminal. One goroutine owns the
// input and hands lines to Confirm, so a cancelled question leaves no second
// reader behind; the pending line goes to the next question.
type prompter struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan answer
}

type answer struct {
	line string
	err  error
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, out: out}
}

func (p *prompter) read() {
	defer close(p.lines)
	r := bufio.NewReader(p.in)
	for {
		line, err := r.ReadString('\n')
		if line != "" || err != nil {
			p.lines <- answer{line, err}
		}
		if err != nil {
			return
		}
	}
}

// Confirm asks question and reports whether the answer is yes. An empty
// answer is yes; end of input is no.
func (p *prompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.once.Do(func() {
		p.lines = make(chan answer)
		go p.read()
	})
	fmt.Fprintf(p.out, "\n%s [Y/n] ", question)

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a, ok := <-p.lines:
		if !ok || a.err != nil && a.line == "" {
			if !ok || errors.Is(a.err, io.EOF) {
				fmt.Fprintln(p.out)
				return false, nil
			}
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "", "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
