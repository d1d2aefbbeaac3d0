package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTemplates(t *testing.T) {
	registry := NewTemplateRegistry()
	assert.Equal(t, []string{"chinese", "default", "detailed", "english"}, registry.Names())
}

func TestRegisterValidatesPlaceholders(t *testing.T) {
	registry := NewTemplateRegistry()

	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{"both placeholders", "Q: {query_text}\nC: {context}", false},
		{"missing query", "C: {context}", true},
		{"missing context", "Q: {query_text}", true},
		{"missing both", "no placeholders at all", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Register("custom", tt.template)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTemplate)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	err := registry.Register("", "{query_text} {context}")
	assert.ErrorIs(t, err, ErrTemplate)
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	registry := NewTemplateRegistry()
	require.NoError(t, registry.Register("custom", "Q={query_text};C={context}"))

	prompt, err := registry.Render("custom", "why?", "because.")
	require.NoError(t, err)
	assert.Equal(t, "Q=why?;C=because.", prompt)
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	registry := NewTemplateRegistry()

	_, err := registry.Render("nope", "q", "c")
	assert.ErrorIs(t, err, ErrTemplate)
	assert.False(t, registry.Has("nope"))
	assert.True(t, registry.Has("default"))
}
