package engine

import (
	"fmt"

	"github.com/kgfoundry/graphrag/internal/tokenizer"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// Context is the token-bounded evidence window assembled for answer
// generation.
type Context struct {
	// Text is the rendered context: evidence blocks followed by a graph
	// facts section when any fit the budget.
	Text string

	// Refs lists the candidate refs included, in rank order.
	Refs []string

	// Tokens is the token count of Text, separators and the facts header
	// included.
	Tokens int

	// Truncated is true when the first candidate alone exceeded the budget
	// and was cut down rather than dropped.
	Truncated bool
}

// Assembler greedily packs ranked candidates into a token budget.
type Assembler struct {
	countTokens tokenizer.CountFunc
}

// NewAssembler creates an assembler using the given token counter
// (tokenizer.Estimate when nil).
func NewAssembler(count tokenizer.CountFunc) *Assembler {
	if count == nil {
		count = tokenizer.Estimate
	}
	return &Assembler{countTokens: count}
}

// Assemble includes candidates in the given order until the next one would
// exceed maxTokens, then appends graph fact lines while budget remains.
// The budget bounds the rendered text: block separators and the facts
// section header count toward it, so the returned Context.Text never
// exceeds maxTokens. Candidates sharing a ref are deduplicated. If the very
// first candidate alone exceeds the budget it is truncated to fit instead
// of dropped, so a non-empty input never produces an empty context.
func (a *Assembler) Assemble(candidates []types.RetrievalCandidate, facts []string, maxTokens int) (*Context, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: maxTokens must be positive", ErrInvalidArgument)
	}

	out := &Context{}
	seen := make(map[string]bool)
	var text string

	for _, candidate := range candidates {
		if seen[candidate.Ref] || candidate.Text == "" {
			continue
		}

		next := candidate.Text
		if text != "" {
			next = text + "\n\n" + candidate.Text
		}
		if a.countTokens(next) > maxTokens {
			if text != "" {
				break // budget exhausted, keep the greedy prefix
			}
			text = a.truncate(candidate.Text, maxTokens)
			seen[candidate.Ref] = true
			out.Refs = append(out.Refs, candidate.Ref)
			out.Truncated = true
			break
		}

		seen[candidate.Ref] = true
		text = next
		out.Refs = append(out.Refs, candidate.Ref)
	}

	var section string
	for _, fact := range facts {
		trial := section + "\n" + fact
		if section == "" {
			trial = "Relationships:\n" + fact
		}
		next := trial
		if text != "" {
			next = text + "\n\n" + trial
		}
		if a.countTokens(next) > maxTokens {
			break
		}
		section = trial
	}
	if section != "" {
		if text != "" {
			text += "\n\n"
		}
		text += section
	}

	out.Text = text
	out.Tokens = a.countTokens(text)
	return out, nil
}

// truncate cuts text down to at most budget tokens via binary search over
// rune prefixes.
func (a *Assembler) truncate(text string, budget int) string {
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if a.countTokens(string(runes[:mid])) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
