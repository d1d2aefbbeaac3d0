package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityResponse is a single entity in an extraction response.
type EntityResponse struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// entityExtractionResponse is the complete entity extraction envelope.
type entityExtractionResponse struct {
	Entities []EntityResponse `json:"entities"`
}

// RelationResponse is a single relation in an extraction response.
type RelationResponse struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// relationExtractionResponse is the complete relation extraction envelope.
type relationExtractionResponse struct {
	Relations []RelationResponse `json:"relations"`
}

// ParseEntityResponse parses an entity extraction response. Entries with an
// empty name are dropped; confidence values outside [0,1] are clamped.
// Vocabulary validation is the extractor's job, not the parser's.
// Returns an error only when no parseable JSON object is present.
func ParseEntityResponse(raw string) ([]EntityResponse, error) {
	var resp entityExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parsing entity extraction response: %w", err)
	}

	out := resp.Entities[:0]
	for _, e := range resp.Entities {
		e.Name = strings.TrimSpace(e.Name)
		e.Type = strings.TrimSpace(e.Type)
		if e.Name == "" || e.Type == "" {
			continue
		}
		e.Confidence = clampConfidence(e.Confidence)
		out = append(out, e)
	}
	return out, nil
}

// ParseRelationResponse parses a relation extraction response. Entries with
// empty endpoints or type are dropped; confidence values are clamped.
// Returns an error only when no parseable JSON object is present.
func ParseRelationResponse(raw string) ([]RelationResponse, error) {
	var resp relationExtractionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parsing relation extraction response: %w", err)
	}

	out := resp.Relations[:0]
	for _, r := range resp.Relations {
		r.From = strings.TrimSpace(r.From)
		r.To = strings.TrimSpace(r.To)
		r.Type = strings.TrimSpace(r.Type)
		if r.From == "" || r.To == "" || r.Type == "" {
			continue
		}
		r.Confidence = clampConfidence(r.Confidence)
		out = append(out, r)
	}
	return out, nil
}

// clampConfidence forces a confidence score into [0,1]. Zero (missing in the
// JSON) is promoted to a neutral 0.5 so absent scores don't rank last.
func clampConfidence(c float64) float64 {
	switch {
	case c == 0:
		return 0.5
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// extractJSON extracts the first balanced JSON object from text that may
// contain extra prose or markdown fences around it. LLMs add chatter despite
// instructions; the parser has to cope.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text // no JSON object, let the caller's parser fail
	}

	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{':
			braceCount++
		case '}':
			braceCount--
			if braceCount == 0 {
				return text[start : i+1]
			}
		}
	}
	return text // unbalanced, let the caller's parser fail
}
