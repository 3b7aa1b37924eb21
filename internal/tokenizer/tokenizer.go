package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const (
	DefaultEncoding = "cl100k_base"
	RunesEncoding   = "runes"
)

// Tokenizer maps text to an ordered sequence of token ids and back.
// A run must use a single Tokenizer for every document.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// New returns the tokenizer registered under encoding. An empty name selects
// DefaultEncoding.
func New(encoding string) (Tokenizer, error) {
	switch encoding {
	case "":
		return NewTiktoken(DefaultEncoding)
	case RunesEncoding:
		return Runes{}, nil
	default:
		return NewTiktoken(encoding)
	}
}

// Tiktoken wraps a BPE encoding from tiktoken-go.
type Tiktoken struct {
	name string
	enc  *tiktoken.Tiktoken
}

func NewTiktoken(encoding string) (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Tiktoken{name: encoding, enc: enc}, nil
}

// Encode treats special-token text as ordinary text, so it never fails.
func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

func (t *Tiktoken) Name() string { return t.name }

// Runes is a character-level tokenizer: one token per Unicode code point.
// It needs no vocabulary download and decodes losslessly.
type Runes struct{}

func (Runes) Encode(text string) []int {
	out := make([]int, 0, len(text))
	for _, r := range text {
		out = append(out, int(r))
	}
	return out
}

func (Runes) Decode(tokens []int) string {
	rs := make([]rune, len(tokens))
	for i, t := range tokens {
		rs[i] = rune(t)
	}
	return string(rs)
}
