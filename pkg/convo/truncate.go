package convo

import (
	"fmt"

	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/tokenizer"
)

// Truncation describes one run of Truncate.
type Truncation struct {
	// Dropped is the number of messages removed whole.
	Dropped int
	// Partial reports that the oldest surviving message was cut to its tail.
	Partial bool
	// Degenerate reports that the newest message alone exceeded the budget.
	Degenerate bool
	// Before and After are the token counts around the truncation.
	Before int
	After  int
}

// Err returns ErrBudgetDegenerate for a degenerate truncation and nil
// otherwise.
func (t Truncation) Err() error {
	if t.Degenerate {
		return ErrBudgetDegenerate
	}
	return nil
}

func (t Truncation) String() string {
	return fmt.Sprintf("dropped=%d partial=%t degenerate=%t tokens=%d->%d",
		t.Dropped, t.Partial, t.Degenerate, t.Before, t.After)
}

// Truncate evicts the oldest content until the log fits the budget.
//
// Messages are walked from newest to oldest while their token lengths are
// summed. The first message that would push the sum over the budget is the
// cut point: every older message is dropped, and the cut point keeps only the
// tail of its content that fits in the remaining budget. A cut point with no
// remaining budget keeps nothing and is dropped. A system message at the cut
// point is dropped whole unless it is the only candidate left.
//
// Afterwards the token count equals the retained content length, which is
// exactly the budget whenever a message was cut partially.
func (c *Context) Truncate() {
	t := Truncation{Before: c.count}

	total := 0
	start := 0
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := &c.entries[i]
		n := e.length(c.tok)
		if total+n <= c.max {
			total += n
			continue
		}

		newest := i == len(c.entries)-1
		t.Degenerate = newest
		start = i + 1

		remaining := c.max - total
		if remaining > 0 && (e.msg.Role != chat.RoleSystem || newest) {
			if tail, kept := tokenizer.Tail(c.tok, e.msg.Content, remaining); kept > 0 {
				e.msg.Content = tail
				e.tokens = kept
				total += kept
				start = i
				t.Partial = true
			}
		}
		break
	}

	if start > 0 {
		t.Dropped = start
		c.entries = append([]entry(nil), c.entries[start:]...)
	}
	c.count = total
	t.After = total
	c.last = t
	c.truncations++

	switch {
	case t.Degenerate:
		c.logger.Warn("convo: newest message exceeds token budget",
			"max_tokens", c.max, "before", t.Before, "after", t.After, "has_system", c.HasSystem())
	case t.Dropped > 0 || t.Partial:
		c.logger.Debug("convo: truncated",
			"dropped", t.Dropped, "partial", t.Partial, "before", t.Before, "after", t.After)
	}
}
