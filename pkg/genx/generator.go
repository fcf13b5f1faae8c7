package genx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/convo"
)

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger of a Generator.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// Generator runs one streaming endpoint call per user turn and commits the
// reply to a conversation. It shares the conversation's single-goroutine
// ownership.
type Generator struct {
	conv   *convo.Context
	ep     Endpoint
	logger *slog.Logger

	inFlight bool
}

// NewGenerator returns a Generator that appends to conv and streams from ep.
func NewGenerator(conv *convo.Context, ep Endpoint, opts ...Option) *Generator {
	g := &Generator{
		conv:   conv,
		ep:     ep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Context returns the conversation the generator appends to.
func (g *Generator) Context() *convo.Context { return g.conv }

// Generate appends userText as a token-counted user turn and returns the
// pending generation. The endpoint call starts when Fragments is ranged over.
//
// Generate must not be called again until the previous generation has been
// drained or abandoned; doing so returns a generation that fails with
// ErrInFlight without touching the conversation.
func (g *Generator) Generate(ctx context.Context, userText string) *Generation {
	if g.inFlight {
		return &Generation{err: ErrInFlight}
	}
	g.inFlight = true
	g.conv.Append(userText, chat.RoleUser, true)
	return &Generation{g: g, ctx: ctx}
}

// Generation is a single in-flight model call.
type Generation struct {
	g   *Generator
	ctx context.Context
	err error

	stream    EventStream
	used      bool
	finished  bool
	abandoned bool

	text      strings.Builder
	usage     Usage
	committed bool
}

// Fragments returns the lazy, single-pass sequence of assistant text
// fragments. A failure is yielded once as a non-nil error with an empty
// fragment, and ends the sequence. Ranging a second time yields ErrConsumed.
//
// Breaking out of the range loop abandons the generation.
func (gn *Generation) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if gn.err != nil {
			yield("", gn.err)
			return
		}
		if gn.used {
			yield("", ErrConsumed)
			return
		}
		gn.used = true
		defer gn.finish()

		stream, err := gn.g.ep.Stream(gn.ctx, gn.g.conv.Messages())
		if err != nil {
			yield("", asInferenceError(err))
			return
		}
		gn.stream = stream

		for {
			ev, err := stream.Next()
			if gn.abandoned {
				return
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = ErrNoCompletion
				}
				yield("", asInferenceError(err))
				return
			}

			switch ev.Kind {
			case EventTextDelta:
				if ev.Text == "" {
					continue
				}
				gn.text.WriteString(ev.Text)
				if !yield(ev.Text, nil) {
					gn.abandoned = true
					return
				}
			case EventCompleted:
				gn.commit(ev.Usage)
				return
			case EventIncomplete:
				gn.g.logger.Warn("genx: output limit exceeded",
					"detail", ev.Detail, "output_tokens", ev.Usage.OutputTokens)
				if ev.Detail != "" {
					err = fmt.Errorf("%w: %s", ErrOutputLimitExceeded, ev.Detail)
				} else {
					err = ErrOutputLimitExceeded
				}
				yield("", err)
				return
			case EventError:
				yield("", &InferenceError{Detail: ev.Detail})
				return
			default:
				yield("", &InferenceError{Detail: fmt.Sprintf("unexpected event kind %d", ev.Kind)})
				return
			}
		}
	}
}

func (gn *Generation) commit(u Usage) {
	gn.usage = u
	// The reply goes in before its usage so a truncation triggered by the
	// usage measures it.
	gn.g.conv.Append(gn.text.String(), chat.RoleAssistant, false)
	gn.g.conv.RecordUsage(int(u.OutputTokens))
	gn.committed = true
	gn.g.logger.Debug("genx: generation committed",
		"input_tokens", u.InputTokens,
		"output_tokens", u.OutputTokens,
		"reasoning_tokens", u.ReasoningTokens,
		"context_tokens", gn.g.conv.TokenCount())
}

func (gn *Generation) finish() {
	if gn.finished {
		return
	}
	gn.finished = true
	if gn.stream != nil {
		if err := gn.stream.Close(); err != nil {
			gn.g.logger.Debug("genx: close stream", "error", err)
		}
	}
	if gn.g != nil {
		gn.g.inFlight = false
	}
}

// Abandon closes the underlying stream. Nothing is committed unless the
// generation had already completed, and usage already recorded stays
// recorded. Abandoning a generation that was never ranged over releases the
// generator without calling the endpoint.
func (gn *Generation) Abandon() {
	if gn.err != nil {
		return
	}
	gn.used = true
	gn.abandoned = true
	gn.finish()
}

// Committed reports whether the assistant reply was appended.
func (gn *Generation) Committed() bool { return gn.committed }

// Usage returns the usage reported by the completion event.
func (gn *Generation) Usage() Usage { return gn.usage }

func asInferenceError(err error) error {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Err: err}
}
