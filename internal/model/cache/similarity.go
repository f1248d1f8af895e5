package cache

import "strings"

// tokenize lowercases the prompt and splits it into a word set, stripping
// surrounding punctuation so "cache?" and "cache" compare equal.
func tokenize(prompt string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(prompt)) {
		word := strings.Trim(field, ".,!?;:\"'()[]{}")
		if word != "" {
			tokens[word] = struct{}{}
		}
	}
	return tokens
}

// jaccard computes set overlap: |a ∩ b| / |a ∪ b|. Two empty sets score
// zero, never a division by zero.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
