package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityID(t *testing.T) {
	tests := []struct {
		name       string
		entityName string
		entityType string
		want       string
	}{
		{"simple", "Alice", "Person", "ent:person:alice"},
		{"spaces collapse", "Acme  Corp", "Organization", "ent:organization:acme-corp"},
		{"punctuation", "O'Brien & Sons, Ltd.", "Organization", "ent:organization:o-brien-sons-ltd"},
		{"mixed case type", "Berlin", "LOCATION", "ent:location:berlin"},
		{"digits kept", "ISO 9001", "Concept", "ent:concept:iso-9001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntityID(tt.entityName, tt.entityType))
		})
	}
}

func TestEntityIDDeterministic(t *testing.T) {
	// Same logical entity in different casings must map to one ID.
	a := EntityID("Marie Curie", "Person")
	b := EntityID("marie curie", "person")
	assert.Equal(t, a, b)
}

func TestEntityKey(t *testing.T) {
	e1 := &Entity{Name: "Alice", Type: "Person"}
	e2 := &Entity{Name: "ALICE", Type: "person"}
	assert.Equal(t, e1.Key(), e2.Key())

	e3 := &Entity{Name: "Alice", Type: "Organization"}
	assert.NotEqual(t, e1.Key(), e3.Key(), "same name with different type is a different entity")
}

func TestRelationKey(t *testing.T) {
	r1 := &Relation{FromID: "ent:person:alice", ToID: "ent:organization:acme", Type: "WORKS_FOR"}
	r2 := &Relation{FromID: "ent:person:alice", ToID: "ent:organization:acme", Type: "WORKS_FOR"}
	assert.Equal(t, r1.Key(), r2.Key())

	reversed := &Relation{FromID: r1.ToID, ToID: r1.FromID, Type: r1.Type}
	assert.NotEqual(t, r1.Key(), reversed.Key(), "relations are directed")
}

func TestVocabulary(t *testing.T) {
	v := NewVocabulary([]string{"Person", "Organization", "person", "", "  Location "})

	require.Equal(t, 3, v.Len())
	assert.Equal(t, []string{"Person", "Organization", "Location"}, v.Labels())

	canonical, ok := v.Canonical("PERSON")
	require.True(t, ok)
	assert.Equal(t, "Person", canonical)

	assert.True(t, v.Contains("location"))
	assert.False(t, v.Contains("Spaceship"))
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "chunk:doc-1:0", ChunkID("doc-1", 0))
	assert.Equal(t, "chunk:doc-1:12", ChunkID("doc-1", 12))
}

func TestBuildReportMerge(t *testing.T) {
	total := BuildReport{ChunksIngested: 1, EntitiesExtracted: 2}
	total.Merge(BuildReport{ChunksIngested: 3, RelationsExtracted: 4, UpsertFailures: 1})

	assert.Equal(t, 4, total.ChunksIngested)
	assert.Equal(t, 2, total.EntitiesExtracted)
	assert.Equal(t, 4, total.RelationsExtracted)
	assert.Equal(t, 1, total.UpsertFailures)
}
