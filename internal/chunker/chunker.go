package chunker

import (
	"errors"
	"iter"
	"slices"

	"document-indexer/internal/tokenizer"
)

// DefaultMaxTokens is the per-chunk token budget used when none is configured.
const DefaultMaxTokens = 1000

var ErrInvalidMaxTokens = errors.New("max tokens must be positive")

// Boundary is a half-open token interval [Start, End).
type Boundary struct {
	Start int
	End   int
}

// Len returns the number of tokens covered by the boundary.
func (b Boundary) Len() int { return b.End - b.Start }

// Chunker splits text into windows of at most maxTokens tokens.
type Chunker struct {
	tok       tokenizer.Tokenizer
	maxTokens int
}

func New(tok tokenizer.Tokenizer, maxTokens int) (*Chunker, error) {
	if tok == nil {
		return nil, errors.New("tokenizer is required")
	}
	if maxTokens <= 0 {
		return nil, ErrInvalidMaxTokens
	}
	return &Chunker{tok: tok, maxTokens: maxTokens}, nil
}

func (c *Chunker) MaxTokens() int { return c.maxTokens }

// Chunks lazily yields the chunks of text.
//
// Text that already fits the budget is yielded unchanged. Longer text is cut
// into consecutive windows of exactly maxTokens tokens (the last may be
// shorter) and every window is decoded on its own, so sub-word tokens that
// straddle a cut are not stitched back together.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		tokens := c.tok.Encode(text)
		if len(tokens) <= c.maxTokens {
			yield(text)
			return
		}
		for _, b := range Boundaries(len(tokens), c.maxTokens) {
			if !yield(c.tok.Decode(tokens[b.Start:b.End])) {
				return
			}
		}
	}
}

// Chunk returns all chunks of text in order. It never returns an empty slice.
func (c *Chunker) Chunk(text string) []string {
	return slices.Collect(c.Chunks(text))
}

// Boundaries partitions n tokens into consecutive windows of size maxTokens.
// The windows cover [0, n) with no gaps or overlap.
func Boundaries(n, maxTokens int) []Boundary {
	if n <= 0 || maxTokens <= 0 {
		return nil
	}
	out := make([]Boundary, 0, (n+maxTokens-1)/maxTokens)
	for start := 0; start < n; start += maxTokens {
		out = append(out, Boundary{Start: start, End: min(start+maxTokens, n)})
	}
	return out
}
