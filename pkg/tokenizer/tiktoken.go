package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

var _ Tokenizer = (*TikToken)(nil)

// TikToken wraps a tiktoken BPE encoding. The vocabulary is fetched on first
// use and cached under $TIKTOKEN_CACHE_DIR.
type TikToken struct {
	enc *tiktoken.Tiktoken
}

// NewTikToken loads the named encoding.
func NewTikToken(encoding string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TikToken{enc: enc}, nil
}

// Encode treats special-token text as ordinary text. Model output may contain
// strings like "<|endoftext|>" and they must be counted, not rejected.
func (t *TikToken) Encode(text string) []int {
	return t.enc.EncodeOrdinary(text)
}

func (t *TikToken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
