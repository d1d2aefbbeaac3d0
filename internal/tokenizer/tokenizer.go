// Package tokenizer provides token counting for chunking and context
// budgeting. The default counter uses the tiktoken BPE vocabulary; a
// character-based heuristic serves as fallback when the encoding cannot be
// loaded (tiktoken fetches vocabulary files on first use).
package tokenizer

import (
	"log"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// CountFunc counts the tokens of a text. The chunker and the context
// assembler take a CountFunc so tests can substitute fixed-cost counters.
type CountFunc func(text string) int

// Estimate approximates token count as one token per four characters,
// rounding up. Good enough for budget enforcement when no real tokenizer
// is available.
func Estimate(text string) int {
	return (len(text) + 3) / 4
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// NewCounter returns a CountFunc backed by the cl100k_base tiktoken
// encoding. When the encoding cannot be initialized the returned counter
// falls back to Estimate and logs once.
func NewCounter() CountFunc {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("tokenizer: cl100k_base unavailable, falling back to estimate: %v", err)
			return
		}
		encoding = enc
	})

	if encoding == nil {
		return Estimate
	}
	enc := encoding
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
}
