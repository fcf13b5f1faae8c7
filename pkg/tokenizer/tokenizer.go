// Package tokenizer converts text to model tokens and back.
//
// The conversation log needs both directions: Encode to measure a message and
// Decode to keep the tail of a message that only partly fits the budget.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// Tokenizer encodes text into token ids and decodes token ids into text.
// Decode(Encode(s)) must equal s, and decoding any suffix of Encode(s) must
// yield a suffix of s.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// Count returns the number of tokens in text.
func Count(tok Tokenizer, text string) int {
	if text == "" {
		return 0
	}
	return len(tok.Encode(text))
}

// Tail returns the suffix of text made of its last n tokens, and the token
// length of that suffix. n <= 0 keeps nothing.
//
// BPE merges can make a decoded suffix re-encode to more tokens than were cut;
// Tail shortens the suffix until its measured length is at most n. A suffix
// never starts inside a multi-byte character.
func Tail(tok Tokenizer, text string, n int) (string, int) {
	if n <= 0 || text == "" {
		return "", 0
	}
	tokens := tok.Encode(text)
	if n >= len(tokens) {
		return text, len(tokens)
	}
	for k := n; k > 0; k-- {
		s := trimPartialRune(tok.Decode(tokens[len(tokens)-k:]))
		if m := Count(tok, s); m <= n {
			return s, m
		}
	}
	return "", 0
}

// trimPartialRune drops continuation bytes left at the start of s by a token
// boundary inside a character.
func trimPartialRune(s string) string {
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}

// Runes treats every Unicode code point as one token. It is exact, needs no
// vocabulary and is the tokenizer used by tests.
type Runes struct{}

func (Runes) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

func (Runes) Decode(tokens []int) string {
	var sb strings.Builder
	sb.Grow(len(tokens))
	for _, t := range tokens {
		sb.WriteRune(rune(t))
	}
	return sb.String()
}

// NameRunes selects the Runes tokenizer in configuration.
const NameRunes = "runes"

// DefaultEncoding is the BPE encoding used by current OpenAI chat models.
const DefaultEncoding = "o200k_base"

var (
	cacheMu sync.Mutex
	cache   = map[string]Tokenizer{}
)

// New returns the tokenizer for the given name: "runes" or a tiktoken
// encoding name such as "o200k_base" or "cl100k_base". An empty name selects
// DefaultEncoding. BPE tokenizers are loaded once per process.
func New(name string) (Tokenizer, error) {
	if name == "" {
		name = DefaultEncoding
	}
	if name == NameRunes {
		return Runes{}, nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if tok, ok := cache[name]; ok {
		return tok, nil
	}
	tok, err := NewTikToken(name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", name, err)
	}
	cache[name] = tok
	return tok, nil
}
