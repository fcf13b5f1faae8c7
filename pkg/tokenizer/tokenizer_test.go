package tokenizer

import (
	"testing"
	"unicode/utf8"
)

func TestRunes_RoundTrip(t *testing.T) {
	for _, s := range []string{"", "module foo();", "åäö ünïcode", "a\nb\tc"} {
		got := Runes{}.Decode(Runes{}.Encode(s))
		if got != s {
			t.Errorf("Decode(Encode(%q)) = %q", s, got)
		}
	}
}

func TestCount(t *testing.T) {
	if n := Count(Runes{}, ""); n != 0 {
		t.Errorf("Count(empty) = %d, want 0", n)
	}
	if n := Count(Runes{}, "wire"); n != 4 {
		t.Errorf("Count(wire) = %d, want 4", n)
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		n        int
		want     string
		wantKept int
	}{
		{"suffix", "abcdef", 2, "ef", 2},
		{"whole", "abc", 3, "abc", 3},
		{"more than length", "abc", 10, "abc", 3},
		{"zero keeps nothing", "abc", 0, "", 0},
		{"negative keeps nothing", "abc", -1, "", 0},
		{"empty text", "", 4, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, kept := Tail(Runes{}, tt.text, tt.n)
			if got != tt.want || kept != tt.wantKept {
				t.Errorf("Tail(%q, %d) = (%q, %d), want (%q, %d)", tt.text, tt.n, got, kept, tt.want, tt.wantKept)
			}
		})
	}
}

// byteTokens encodes every byte as one token, so token boundaries can fall
// inside a multi-byte character the way BPE boundaries do.
type byteTokens struct{}

func (byteTokens) Encode(text string) []int {
	out := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = int(text[i])
	}
	return out
}

func (byteTokens) Decode(tokens []int) string {
	b := make([]byte, len(tokens))
	for i, t := range tokens {
		b[i] = byte(t)
	}
	return string(b)
}

func TestTail_MultiByte(t *testing.T) {
	// "héllo" is h, 0xC3 0xA9, l, l, o.
	tests := []struct {
		n        int
		want     string
		wantKept int
	}{
		{5, "éllo", 5},
		{4, "llo", 3},
		{1, "o", 1},
	}
	for _, tt := range tests {
		got, kept := Tail(byteTokens{}, "héllo", tt.n)
		if got != tt.want || kept != tt.wantKept {
			t.Errorf("Tail(héllo, %d) = (%q, %d), want (%q, %d)", tt.n, got, kept, tt.want, tt.wantKept)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Tail(héllo, %d) = %q is not valid UTF-8", tt.n, got)
		}
	}

	got, kept := Tail(byteTokens{}, "日本", 2)
	if got != "" || kept != 0 {
		t.Errorf("Tail(日本, 2) = (%q, %d), want nothing kept", got, kept)
	}
}

func TestNew_Runes(t *testing.T) {
	tok, err := New(NameRunes)
	if err != nil {
		t.Fatalf("New(runes): %v", err)
	}
	if _, ok := tok.(Runes); !ok {
		t.Errorf("New(runes) = %T, want Runes", tok)
	}
}
