package types

import "strings"

// Vocabulary is an ordered, case-insensitive set of allowed labels.
// It is used for both entity type labels and relation type labels: the
// extractor rejects labels outside the vocabulary instead of accepting
// arbitrary strings silently.
type Vocabulary struct {
	labels []string          // original casing, insertion order
	index  map[string]string // lowercased label -> canonical label
}

// NewVocabulary builds a vocabulary from the given labels. Duplicate labels
// (case-insensitive) keep the first occurrence; empty labels are skipped.
func NewVocabulary(labels []string) *Vocabulary {
	v := &Vocabulary{
		index: make(map[string]string, len(labels)),
	}
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, ok := v.index[key]; ok {
			continue
		}
		v.index[key] = label
		v.labels = append(v.labels, label)
	}
	return v
}

// Canonical returns the canonical casing for label and whether the label is
// part of the vocabulary. Matching is case-insensitive.
func (v *Vocabulary) Canonical(label string) (string, bool) {
	canonical, ok := v.index[strings.ToLower(strings.TrimSpace(label))]
	return canonical, ok
}

// Contains reports whether label is part of the vocabulary (case-insensitive).
func (v *Vocabulary) Contains(label string) bool {
	_, ok := v.Canonical(label)
	return ok
}

// Labels returns the vocabulary labels in insertion order.
// The returned slice is a copy and safe to modify.
func (v *Vocabulary) Labels() []string {
	out := make([]string, len(v.labels))
	copy(out, v.labels)
	return out
}

// Len returns the number of labels in the vocabulary.
func (v *Vocabulary) Len() int {
	return len(v.labels)
}
