package markov

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	Entries        int `json:"entries"`         // The number of tokens with at least one successor.
	UniqueBiGrams  int `json:"unique_bigrams"`  // The number of distinct token->successor links.
	TotalBiGrams   int `json:"total_bigrams"`   // The number of adjacent pairs in the corpus.
	TotalTokens    int `json:"total_tokens"`    // The number of tokens in the corpus.
	VocabularySize int `json:"vocabulary_size"` // The number of distinct tokens in the corpus, including dead ends.
	MaxSuccessors  int `json:"max_successors"`  // The largest successor list of any single token.
}

// Stats returns a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{
		Entries:        len(m.data),
		UniqueBiGrams:  m.pairs,
		TotalTokens:    m.tokens,
		VocabularySize: m.vocab,
	}
	if m.tokens > 1 {
		stats.TotalBiGrams = m.tokens - 1
	}
	for _, s := range m.data {
		stats.MaxSuccessors = max(stats.MaxSuccessors, len(s.Next))
	}
	return stats
}
