package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Template placeholders. Both must appear in every registered template.
const (
	placeholderQuery   = "{query_text}"
	placeholderContext = "{context}"
)

// Built-in answer-generation templates. The default and english variants
// instruct the model to answer strictly from the provided context; chinese
// and detailed are localized and long-form variants.
const (
	defaultTemplate = `Answer the question using only the context below. Do not add information that is not present in the context.

# Question:
{query_text}

# Context:
{context}

# Answer:
`

	chineseTemplate = `根据以下提供的上下文资料，请回答用户的问题。请仅使用上下文中包含的信息，不要添加未在上下文中提及的内容。

# 问题:
{query_text}

# 上下文资料:
{context}

# 回答:
`

	englishTemplate = `Answer the question based on the context provided below. Use only information from the context and do not add information not present in the context.

# Question:
{query_text}

# Context:
{context}

# Answer:
`

	detailedTemplate = `Answer the question using the context below. Analyze the information in detail and give a complete, accurate answer. Use only information explicitly present in the context.

# Question:
{query_text}

# Context:
{context}

# Detailed analysis and answer:
`
)

// TemplateRegistry maps template names to prompt templates. Registration
// validates the placeholders up front so a bad template can never reach
// answer generation. Lookup of an unknown name is an error, not a silent
// fallback to the default.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewTemplateRegistry creates a registry pre-populated with the built-in
// templates: default, chinese, english and detailed.
func NewTemplateRegistry() *TemplateRegistry {
	r := &TemplateRegistry{templates: make(map[string]string)}
	for name, text := range map[string]string{
		"default":  defaultTemplate,
		"chinese":  chineseTemplate,
		"english":  englishTemplate,
		"detailed": detailedTemplate,
	} {
		// Built-ins carry both placeholders; Register cannot fail here.
		if err := r.Register(name, text); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds or replaces a named template. The template must contain
// both the {query_text} and {context} placeholders.
func (r *TemplateRegistry) Register(name, text string) error {
	if name == "" {
		return fmt.Errorf("%w: template name is required", ErrTemplate)
	}
	for _, placeholder := range []string{placeholderQuery, placeholderContext} {
		if !strings.Contains(text, placeholder) {
			return fmt.Errorf("%w: template %q is missing the %s placeholder", ErrTemplate, name, placeholder)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = text
	return nil
}

// Render substitutes the query and context into the named template.
func (r *TemplateRegistry) Render(name, query, context string) (string, error) {
	r.mu.RLock()
	text, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown template %q", ErrTemplate, name)
	}

	prompt := strings.ReplaceAll(text, placeholderQuery, query)
	prompt = strings.ReplaceAll(prompt, placeholderContext, context)
	return prompt, nil
}

// Has reports whether a template with the given name is registered.
func (r *TemplateRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Names returns the registered template names in sorted order.
func (r *TemplateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
