package convo

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/haivivi/autoppa/pkg/chat"
	"github.com/haivivi/autoppa/pkg/tokenizer"
)

func newContext(t *testing.T, system string, budget int) *Context {
	t.Helper()
	c, err := New(system, budget, tokenizer.Runes{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func contents(c *Context) []string {
	var out []string
	for _, m := range c.Messages() {
		out = append(out, m.Content)
	}
	return out
}

func TestNew(t *testing.T) {
	c := newContext(t, "sys", 10)
	if c.TokenCount() != 3 {
		t.Errorf("TokenCount() = %d, want 3", c.TokenCount())
	}
	if !c.HasSystem() || c.Len() != 1 {
		t.Errorf("HasSystem() = %t, Len() = %d, want true, 1", c.HasSystem(), c.Len())
	}

	if _, err := New("sys", 0, tokenizer.Runes{}); err == nil {
		t.Error("New with zero budget should fail")
	}
	if _, err := New("sys", 10, nil); err == nil {
		t.Error("New without tokenizer should fail")
	}
}

func TestNew_EmptySystemPrompt(t *testing.T) {
	c := newContext(t, "", 10)
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Role != chat.RoleSystem || msgs[0].Content != "" {
		t.Fatalf("Messages() = %v, want one empty system message", msgs)
	}
	if c.TokenCount() != 0 {
		t.Errorf("TokenCount() = %d, want 0", c.TokenCount())
	}
}

func TestAppend_Counting(t *testing.T) {
	c := newContext(t, "s", 100)
	c.Append("hello", chat.RoleUser, true)
	if c.TokenCount() != 6 {
		t.Errorf("after counted append TokenCount() = %d, want 6", c.TokenCount())
	}
	c.Append("world", chat.RoleAssistant, false)
	if c.TokenCount() != 6 {
		t.Errorf("after uncounted append TokenCount() = %d, want 6", c.TokenCount())
	}
	c.RecordUsage(7)
	if c.TokenCount() != 13 {
		t.Errorf("after RecordUsage(7) TokenCount() = %d, want 13", c.TokenCount())
	}
	c.RecordUsage(-3)
	if c.TokenCount() != 13 {
		t.Errorf("negative usage changed TokenCount() to %d", c.TokenCount())
	}
}

func TestAppend_SystemPanics(t *testing.T) {
	c := newContext(t, "s", 10)
	defer func() {
		if recover() == nil {
			t.Error("Append(system) did not panic")
		}
	}()
	c.Append("again", chat.RoleSystem, true)
}

func TestAppend_InvalidRolePanics(t *testing.T) {
	c := newContext(t, "s", 10)
	defer func() {
		if recover() == nil {
			t.Error("Append(invalid role) did not panic")
		}
	}()
	c.Append("x", chat.Role("model"), true)
}

func TestTruncate_DropsSystemWhenNewerTurnsFit(t *testing.T) {
	c := newContext(t, "ssss", 10)
	c.Append("uuuu", chat.RoleUser, true)
	c.Append("vvvvv", chat.RoleUser, true)

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Len() = %d, want 2: %v", len(msgs), msgs)
	}
	if msgs[0] != chat.User("uuuu") || msgs[1] != chat.User("vvvvv") {
		t.Errorf("Messages() = %v", msgs)
	}
	if c.TokenCount() != 9 {
		t.Errorf("TokenCount() = %d, want 9", c.TokenCount())
	}
	if c.HasSystem() {
		t.Error("system message should have been dropped")
	}
	tr := c.LastTruncation()
	if tr.Dropped != 1 || tr.Partial || tr.Degenerate {
		t.Errorf("LastTruncation() = %v", tr)
	}
}

func TestTruncate_PartialKeepsTail(t *testing.T) {
	c := newContext(t, "", 10)
	c.Append("abcdefgh", chat.RoleUser, true)
	c.Append("123456", chat.RoleAssistant, true)

	got := contents(c)
	want := []string{"efgh", "123456"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("contents = %q, want %q", got, want)
	}
	if c.TokenCount() != c.MaxTokens() {
		t.Errorf("TokenCount() = %d, want %d", c.TokenCount(), c.MaxTokens())
	}
	if msgs := c.Messages(); msgs[0].Role != chat.RoleUser {
		t.Errorf("cut point role = %q, want user", msgs[0].Role)
	}
	tr := c.LastTruncation()
	if !tr.Partial || tr.Dropped != 1 || tr.Before != 14 || tr.After != 10 {
		t.Errorf("LastTruncation() = %v", tr)
	}
}

func TestTruncate_ZeroRemainingKeepsNothing(t *testing.T) {
	c := newContext(t, "", 6)
	c.Append("abc", chat.RoleUser, true)
	c.Append("def", chat.RoleAssistant, true)
	c.Append("ghi", chat.RoleUser, true)

	got := strings.Join(contents(c), "|")
	if got != "def|ghi" {
		t.Errorf("contents = %q, want def|ghi", got)
	}
	if c.TokenCount() != 6 {
		t.Errorf("TokenCount() = %d, want 6", c.TokenCount())
	}
	if c.LastTruncation().Partial {
		t.Error("zero remaining budget must not produce a partial message")
	}
}

func TestTruncate_Degenerate(t *testing.T) {
	c := newContext(t, "sys", 5)
	c.Append("0123456789", chat.RoleUser, true)

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0] != chat.User("56789") {
		t.Fatalf("Messages() = %v, want [user 56789]", msgs)
	}
	if c.TokenCount() != 5 {
		t.Errorf("TokenCount() = %d, want 5", c.TokenCount())
	}
	if !c.Degraded() {
		t.Error("Degraded() = false, want true")
	}
	if err := c.LastTruncation().Err(); !errors.Is(err, ErrBudgetDegenerate) {
		t.Errorf("LastTruncation().Err() = %v, want ErrBudgetDegenerate", err)
	}

	// The loop keeps going with the reduced context.
	c.Append("ab", chat.RoleTool, true)
	if got := strings.Join(contents(c), "|"); got != "789|ab" {
		t.Errorf("contents = %q, want 789|ab", got)
	}
}

func TestTruncate_SystemAloneOverBudget(t *testing.T) {
	c := newContext(t, "0123456789", 4)
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0] != chat.System("6789") {
		t.Fatalf("Messages() = %v, want [system 6789]", msgs)
	}
	if !c.HasSystem() {
		t.Error("a lone system message is truncated, not dropped")
	}
}

func TestRecordUsage_TriggersTruncation(t *testing.T) {
	c := newContext(t, "s", 20)
	c.Append("hello", chat.RoleUser, true)
	c.Append("world", chat.RoleAssistant, false)
	c.RecordUsage(100)

	// All content fits; the reported overhead is forgotten and the count
	// falls back to the content length.
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if c.TokenCount() != 11 {
		t.Errorf("TokenCount() = %d, want 11", c.TokenCount())
	}
	if c.Truncations() != 1 {
		t.Errorf("Truncations() = %d, want 1", c.Truncations())
	}
}

func TestRecordUsage_MeasuresUncountedMessages(t *testing.T) {
	c := newContext(t, "s", 8)
	c.Append("ab", chat.RoleUser, true)
	c.Append("abcdef", chat.RoleAssistant, false)
	c.RecordUsage(6)

	// The assistant message is measured during truncation even though its
	// append did not count it.
	got := strings.Join(contents(c), "|")
	if got != "ab|abcdef" {
		t.Errorf("contents = %q, want ab|abcdef", got)
	}
	if c.TokenCount() != 8 {
		t.Errorf("TokenCount() = %d, want 8", c.TokenCount())
	}
}

func TestMessages_ReturnsCopy(t *testing.T) {
	c := newContext(t, "s", 10)
	c.Append("u", chat.RoleUser, true)
	msgs := c.Messages()
	msgs[1].Content = "changed"
	if got := c.Messages()[1].Content; got != "u" {
		t.Errorf("context mutated through copy: %q", got)
	}
}

func TestAll(t *testing.T) {
	c := newContext(t, "s", 10)
	c.Append("a", chat.RoleUser, true)
	c.Append("b", chat.RoleAssistant, true)
	var roles []chat.Role
	for i, m := range c.All() {
		if i == 2 {
			break
		}
		roles = append(roles, m.Role)
	}
	if len(roles) != 2 || roles[0] != chat.RoleSystem || roles[1] != chat.RoleUser {
		t.Errorf("All() roles = %v", roles)
	}
}

func trueCount(c *Context) int {
	n := 0
	for _, m := range c.Messages() {
		n += tokenizer.Count(tokenizer.Runes{}, m.Content)
	}
	return n
}

func TestBudgetAndOrderInvariants(t *testing.T) {
	roles := []chat.Role{chat.RoleUser, chat.RoleAssistant, chat.RoleTool}
	for seed := uint64(1); seed <= 50; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			r := rand.New(rand.NewPCG(seed, seed*7))
			budget := 5 + r.IntN(60)
			c := newContext(t, strings.Repeat("s", r.IntN(10)), budget)
			log := c.Messages()

			for op := 0; op < 200; op++ {
				if r.IntN(4) == 0 {
					c.RecordUsage(r.IntN(20))
				} else {
					content := fmt.Sprintf("<%d>", op) + strings.Repeat("x", r.IntN(30))
					role := roles[r.IntN(len(roles))]
					counted := role != chat.RoleAssistant
					c.Append(content, role, counted)
					log = append(log, chat.Message{Role: role, Content: content})
					if !counted {
						// A reply is followed by its usage, which covers at
						// least its content plus hidden reasoning.
						c.RecordUsage(len(content) + r.IntN(10))
					}
				}

				if c.TokenCount() > c.MaxTokens() {
					t.Fatalf("op %d: TokenCount() = %d > MaxTokens() = %d", op, c.TokenCount(), c.MaxTokens())
				}
				if counted := trueCount(c); c.TokenCount() < counted {
					t.Fatalf("op %d: TokenCount() = %d below content length %d", op, c.TokenCount(), counted)
				}

				msgs := c.Messages()
				if len(msgs) == 0 {
					t.Fatalf("op %d: context emptied", op)
				}
				// Survivors are a contiguous tail of the log; only the oldest
				// survivor may have lost its head.
				tail := log[len(log)-len(msgs):]
				for i := 1; i < len(msgs); i++ {
					if msgs[i] != tail[i] {
						t.Fatalf("op %d: message %d = %v, want %v", op, i, msgs[i], tail[i])
					}
				}
				if msgs[0].Role != tail[0].Role || !strings.HasSuffix(tail[0].Content, msgs[0].Content) {
					t.Fatalf("op %d: oldest survivor %v is not a tail of %v", op, msgs[0], tail[0])
				}
			}
		})
	}
}
