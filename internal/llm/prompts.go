// Package llm provides LLM integration for entity and relation extraction
// and answer generation. It includes strict JSON-only prompt templates and
// response parsers that work with Ollama and OpenAI models.
package llm

import (
	"fmt"
	"strings"

	"github.com/kgfoundry/graphrag/pkg/types"
)

// EntityExtractionPrompt builds a strict JSON-only prompt for entity
// extraction, restricted to the configured entity type vocabulary. The
// prompt instructs the model to respond with a single JSON object holding
// an "entities" array.
func EntityExtractionPrompt(text string, entityTypes *types.Vocabulary) string {
	return fmt.Sprintf(`TASK: Extract named entities from the text below.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanations.

ALLOWED ENTITY TYPES (use exactly these values, nothing else):
%s

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{"entities": [{"name": "entity name", "type": "one of the allowed types", "description": "one short sentence", "confidence": 0.9}]}

RULES:
- Only include entities clearly supported by the text.
- Use the most specific allowed type; skip entities that fit no allowed type.
- Confidence is a number between 0.0 and 1.0.
- If there are no entities, return {"entities": []}.

TEXT:
%s`, formatLabelList(entityTypes), text)
}

// RelationExtractionPrompt builds a strict JSON-only prompt for relation
// extraction between already-extracted entities, restricted to the
// configured relation type vocabulary. Fixing the entity set first keeps
// this second call simple enough for small models.
func RelationExtractionPrompt(text string, entities []types.Entity, relationTypes *types.Vocabulary) string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = fmt.Sprintf("%q (%s)", e.Name, e.Type)
	}

	return fmt.Sprintf(`TASK: Extract relations between the known entities, based on the text below.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanations.

KNOWN ENTITIES:
%s

ALLOWED RELATION TYPES (use exactly these values, nothing else):
%s

REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{"relations": [{"from": "entity name", "to": "entity name", "type": "one of the allowed types", "confidence": 0.9}]}

RULES:
- "from" and "to" must be names from the KNOWN ENTITIES list.
- Relations are directed: from acts on / points to to.
- Only include relations clearly supported by the text.
- Confidence is a number between 0.0 and 1.0.
- If there are no relations, return {"relations": []}.

TEXT:
%s`, strings.Join(names, ", "), formatLabelList(relationTypes), text)
}

// formatLabelList renders a vocabulary as a bulleted list for prompts.
func formatLabelList(v *types.Vocabulary) string {
	labels := v.Labels()
	lines := make([]string, len(labels))
	for i, label := range labels {
		lines[i] = "- " + label
	}
	return strings.Join(lines, "\n")
}
