// Package convo keeps the token-budgeted conversation log of one agent
// session.
//
// A Context is an ordered, append-only sequence of chat messages seeded with
// exactly one system message. It tracks a running token count and never lets
// that count exceed the budget: any append or usage record that pushes it over
// triggers a synchronous, deterministic, tail-biased truncation.
//
// A Context is owned by a single agent goroutine and is not safe for
// concurrent use.
package convo

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/tokenizer"
)

// ErrBudgetDegenerate reports that the newest message alone did not fit the
// budget and was cut down to its tail. The context is still valid but may have
// lost its system prompt.
var ErrBudgetDegenerate = errors.New("convo: newest message exceeds token budget")

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for truncation diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

type entry struct {
	msg chat.Message

	// tokens is the token length of msg.Content, valid when known is set.
	// Entries appended without counting are measured lazily.
	tokens int
	known  bool
}

func (e *entry) length(tok tokenizer.Tokenizer) int {
	if !e.known {
		e.tokens = tokenizer.Count(tok, e.msg.Content)
		e.known = true
	}
	return e.tokens
}

// Context is the token-budgeted conversation log.
type Context struct {
	entries []entry
	count   int
	max     int

	tok    tokenizer.Tokenizer
	logger *slog.Logger

	last        Truncation
	truncations int
}

// New creates a Context whose first message is the system prompt. An empty
// system prompt is allowed and marks a fully user-directed session; it still
// occupies the first slot.
func New(systemPrompt string, maxTokens int, tok tokenizer.Tokenizer, opts ...Option) (*Context, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("convo: max tokens must be positive, got %d", maxTokens)
	}
	if tok == nil {
		return nil, errors.New("convo: tokenizer is required")
	}
	c := &Context{
		max:    maxTokens,
		tok:    tok,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.append(chat.System(systemPrompt), true)
	return c, nil
}

// Append adds content as a new message at the tail. When countTokens is set
// the token length of content is added to the running count right away; use
// it for turns whose cost is known up front (user and tool turns). Assistant
// turns are appended uncounted because their cost arrives through RecordUsage.
//
// If the count exceeds the budget afterwards, Append truncates before it
// returns. Appending a system message or an unknown role panics: the system
// prompt is fixed at construction.
func (c *Context) Append(content string, role chat.Role, countTokens bool) {
	switch role {
	case chat.RoleUser, chat.RoleAssistant, chat.RoleTool:
	case chat.RoleSystem:
		panic("convo: the system message is set by New and cannot be appended")
	default:
		panic(fmt.Sprintf("convo: invalid role %q", role))
	}
	c.append(chat.Message{Role: role, Content: content}, countTokens)
}

func (c *Context) append(msg chat.Message, countTokens bool) {
	e := entry{msg: msg}
	if countTokens {
		c.count += e.length(c.tok)
	}
	c.entries = append(c.entries, e)
	if c.count > c.max {
		c.Truncate()
	}
}

// RecordUsage adds n tokens reported by the model after a generation. It
// accounts for cost that cannot be derived from content, such as hidden
// reasoning tokens. Non-positive values are ignored.
func (c *Context) RecordUsage(n int) {
	if n <= 0 {
		return
	}
	c.count += n
	if c.count > c.max {
		c.Truncate()
	}
}

// TokenCount returns the running token count. It is never below the true
// token length of the retained content.
func (c *Context) TokenCount() int { return c.count }

// MaxTokens returns the budget.
func (c *Context) MaxTokens() int { return c.max }

// Len returns the number of retained messages.
func (c *Context) Len() int { return len(c.entries) }

// HasSystem reports whether the system message is still the first message.
func (c *Context) HasSystem() bool {
	return len(c.entries) > 0 && c.entries[0].msg.Role == chat.RoleSystem
}

// Degraded reports whether truncation has evicted the system message.
func (c *Context) Degraded() bool { return !c.HasSystem() }

// LastTruncation describes the most recent truncation, or the zero value if
// none has happened.
func (c *Context) LastTruncation() Truncation { return c.last }

// Truncations returns how many times Truncate has run.
func (c *Context) Truncations() int { return c.truncations }

// Messages returns a copy of the retained messages in turn order.
func (c *Context) Messages() []chat.Message {
	out := make([]chat.Message, len(c.entries))
	for i := range c.entries {
		out[i] = c.entries[i].msg
	}
	return out
}

// All iterates over the retained messages in turn order.
func (c *Context) All() iter.Seq2[int, chat.Message] {
	return func(yield func(int, chat.Message) bool) {
		for i := range c.entries {
			if !yield(i, c.entries[i].msg) {
				return
			}
		}
	}
}
