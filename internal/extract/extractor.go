// Package extract turns text chunks into typed entities and relations by
// calling the LLM collaborator with vocabulary-constrained prompts.
// Extraction runs in two phases: entities first, then relations over the
// fixed entity set. Labels outside the configured vocabularies are rejected
// and reported, never silently accepted.
package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// SkippedLabel records one extraction that was rejected during validation.
type SkippedLabel struct {
	Kind   string // "entity" or "relation"
	Label  string // the rejected type label (or endpoint name for unknown endpoints)
	Name   string // entity name, or "from -> to" for relations
	Reason string
}

// Result holds everything extracted from a single chunk.
type Result struct {
	Chunk     *types.Chunk
	Entities  []*types.Entity
	Relations []*types.Relation
	Skipped   []SkippedLabel
}

// Extractor pulls entities and typed relations out of chunks.
type Extractor struct {
	generator     llm.TextGenerator
	entityTypes   *types.Vocabulary
	relationTypes *types.Vocabulary
}

// NewExtractor creates an extractor bound to the given generator and
// vocabularies.
func NewExtractor(generator llm.TextGenerator, entityTypes, relationTypes *types.Vocabulary) *Extractor {
	return &Extractor{
		generator:     generator,
		entityTypes:   entityTypes,
		relationTypes: relationTypes,
	}
}

// Extract runs both extraction phases against chunk. A chunk that yields no
// valid entities short-circuits the relation phase (there is nothing to
// relate). The error is non-nil only for collaborator or parse failures;
// vocabulary rejections land in Result.Skipped.
func (x *Extractor) Extract(ctx context.Context, chunk *types.Chunk) (*Result, error) {
	res := &Result{Chunk: chunk}

	raw, err := x.generator.Complete(ctx, llm.EntityExtractionPrompt(chunk.Text, x.entityTypes))
	if err != nil {
		return nil, fmt.Errorf("extract: entity phase for %s: %w", chunk.ID, err)
	}
	parsed, err := llm.ParseEntityResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: entity phase for %s: %w", chunk.ID, err)
	}

	now := time.Now().UTC()
	byName := make(map[string]*types.Entity, len(parsed))
	for _, pe := range parsed {
		canonical, ok := x.entityTypes.Canonical(pe.Type)
		if !ok {
			res.Skipped = append(res.Skipped, SkippedLabel{
				Kind:   "entity",
				Label:  pe.Type,
				Name:   pe.Name,
				Reason: "entity type not in vocabulary",
			})
			continue
		}
		entity := &types.Entity{
			ID:          types.EntityID(pe.Name, canonical),
			Name:        pe.Name,
			Type:        canonical,
			Description: pe.Description,
			ChunkIDs:    []string{chunk.ID},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		key := strings.ToLower(pe.Name)
		if _, dup := byName[key]; dup {
			continue // same name extracted twice from one chunk
		}
		byName[key] = entity
		res.Entities = append(res.Entities, entity)
	}

	if len(res.Entities) == 0 {
		return res, nil
	}

	raw, err = x.generator.Complete(ctx, llm.RelationExtractionPrompt(chunk.Text, deref(res.Entities), x.relationTypes))
	if err != nil {
		return nil, fmt.Errorf("extract: relation phase for %s: %w", chunk.ID, err)
	}
	parsedRels, err := llm.ParseRelationResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: relation phase for %s: %w", chunk.ID, err)
	}

	for _, pr := range parsedRels {
		canonical, ok := x.relationTypes.Canonical(pr.Type)
		if !ok {
			res.Skipped = append(res.Skipped, SkippedLabel{
				Kind:   "relation",
				Label:  pr.Type,
				Name:   pr.From + " -> " + pr.To,
				Reason: "relation type not in vocabulary",
			})
			continue
		}
		from, okFrom := byName[strings.ToLower(pr.From)]
		to, okTo := byName[strings.ToLower(pr.To)]
		if !okFrom || !okTo {
			res.Skipped = append(res.Skipped, SkippedLabel{
				Kind:   "relation",
				Label:  canonical,
				Name:   pr.From + " -> " + pr.To,
				Reason: "endpoint is not a known entity",
			})
			continue
		}
		if from.ID == to.ID {
			continue // self-loops carry no information
		}
		res.Relations = append(res.Relations, &types.Relation{
			ID:         "rel:" + uuid.NewString(),
			FromID:     from.ID,
			ToID:       to.ID,
			Type:       canonical,
			Confidence: pr.Confidence,
			ChunkIDs:   []string{chunk.ID},
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if len(res.Skipped) > 0 {
		log.Printf("extract: chunk %s: %d extractions rejected by vocabulary validation", chunk.ID, len(res.Skipped))
	}
	return res, nil
}

// deref converts a slice of entity pointers into values for prompt building.
func deref(entities []*types.Entity) []types.Entity {
	out := make([]types.Entity, len(entities))
	for i, e := range entities {
		out[i] = *e
	}
	return out
}
