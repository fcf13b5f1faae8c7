package genx

import (
	"context"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/autoppa/pkg/chat"
)

// Endpoint is a streaming model-inference endpoint.
type Endpoint interface {
	// Stream starts a generation over msgs. The first message is the system
	// prompt unless truncation evicted it.
	Stream(ctx context.Context, msgs []chat.Message) (EventStream, error)
}

// EventStream is a single-pass stream of generation events.
type EventStream interface {
	// Next returns the next event, or io.EOF after the terminal event.
	Next() (Event, error)
	// Close abandons the stream. It is safe to call more than once.
	Close() error
}

// EventKind classifies a streamed event.
type EventKind int

const (
	// EventTextDelta carries a fragment of assistant text.
	EventTextDelta EventKind = iota + 1
	// EventCompleted ends a successful generation and carries its usage.
	EventCompleted
	// EventIncomplete ends a generation that hit the output token ceiling.
	EventIncomplete
	// EventError ends a generation the model or provider failed.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTextDelta:
		return "text_delta"
	case EventCompleted:
		return "completed"
	case EventIncomplete:
		return "incomplete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether k ends a stream.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventIncomplete || k == EventError
}

// Event is one item of an EventStream.
type Event struct {
	Kind EventKind

	// Text is the fragment of an EventTextDelta.
	Text string

	// Usage is set on terminal events when the provider reports it.
	Usage Usage

	// Detail is the raw provider detail of an EventError or
	// EventIncomplete, such as a finish reason or refusal.
	Detail string
}

// TextDelta returns an EventTextDelta event.
func TextDelta(s string) Event { return Event{Kind: EventTextDelta, Text: s} }

// Completed returns an EventCompleted event.
func Completed(u Usage) Event { return Event{Kind: EventCompleted, Usage: u} }

// Incomplete returns an EventIncomplete event.
func Incomplete(u Usage, detail string) Event {
	return Event{Kind: EventIncomplete, Usage: u, Detail: detail}
}

// Failed returns an EventError event.
func Failed(detail string) Event { return Event{Kind: EventError, Detail: detail} }

// Usage is the token accounting of one generation.
type Usage struct {
	// InputTokens is the number of prompt tokens, including cached ones.
	InputTokens int64

	// CachedTokens is the part of InputTokens served from a prompt cache.
	CachedTokens int64

	// OutputTokens is the number of generated tokens, including hidden
	// reasoning tokens.
	OutputTokens int64

	// ReasoningTokens is the part of OutputTokens spent on reasoning.
	ReasoningTokens int64
}

func (u Usage) String() string {
	b, _ := yaml.Marshal(map[string]map[string]any{
		"Usage": {
			"Input":     u.InputTokens,
			"Cached":    u.CachedTokens,
			"Output":    u.OutputTokens,
			"Reasoning": u.ReasoningTokens,
		},
	})
	return string(b)
}
