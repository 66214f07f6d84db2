package markov

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
)

// NextWord is a possible successor of a token together with the probability
// of it following that token.
type NextWord struct {
	Text        string  `json:"text"`
	Probability float64 `json:"probability"`
}

// Successors holds the weighted successor list of a single token. Sum is
// always the sum of the probabilities in Next, accumulated in stored order.
type Successors struct {
	Sum  float64    `json:"sum"`
	Next []NextWord `json:"next"`
}

// add appends an option and updates the running sum in one step.
func (s *Successors) add(option NextWord) {
	s.Next = append(s.Next, option)
	s.Sum += option.Probability
}

// Model is an immutable first-order Markov model mapping each token to its
// weighted successors. It is built once with BuildTable (or BuildModel/Train)
// and is safe for concurrent use by any number of readers.
type Model struct {
	data   map[string]Successors
	tokens int
	vocab  int
	pairs  int
}

// Rand is the source of randomness used for sampling. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	// Float64 returns a pseudo-random number in the half-open interval [0.0,1.0).
	Float64() float64
}

// globalRand draws from the goroutine-safe top-level math/rand/v2 source.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// BuildTable converts raw counts into a Model. Each successor's probability
// is its bigram count divided by the occurrence count of the first token.
// Successors are ordered by descending probability, ties broken by ascending
// token text, so the layout does not depend on map iteration order.
func BuildTable(counts Counts) *Model {
	grouped := make(map[string][]NextWord, len(counts.Occurrences))
	for bigram, count := range counts.BiGrams {
		// Every bigram's first token was counted as an occurrence when the bigram was recorded.
		occurrences := counts.Occurrences[bigram.First]
		grouped[bigram.First] = append(grouped[bigram.First], NextWord{
			Text:        bigram.Second,
			Probability: float64(count) / float64(occurrences),
		})
	}

	data := make(map[string]Successors, len(grouped))
	for first, options := range grouped {
		slices.SortFunc(options, func(a, b NextWord) int {
			if c := cmp.Compare(b.Probability, a.Probability); c != 0 {
				return c
			}
			return cmp.Compare(a.Text, b.Text)
		})
		var successors Successors
		successors.Next = make([]NextWord, 0, len(options))
		for _, option := range options {
			successors.add(option)
		}
		data[first] = successors
	}

	return &Model{
		data:   data,
		tokens: counts.Tokens,
		vocab:  counts.Vocabulary,
		pairs:  len(counts.BiGrams),
	}
}

// Len returns the number of tokens that have at least one successor.
func (m *Model) Len() int {
	return len(m.data)
}

// Tokens returns every token that has at least one successor, sorted.
func (m *Model) Tokens() []string {
	tokens := make([]string, 0, len(m.data))
	for token := range m.data {
		tokens = append(tokens, token)
	}
	slices.Sort(tokens)
	return tokens
}

// Successors returns a copy of the successor list for token. The boolean is
// false if the token has no entry in the model.
func (m *Model) Successors(token string) (Successors, bool) {
	s, ok := m.data[token]
	if !ok {
		return Successors{}, false
	}
	return Successors{Sum: s.Sum, Next: slices.Clone(s.Next)}, true
}

// SampleNext draws a successor of token with probability proportional to its
// stored weight. It returns an error wrapping ErrUnrecognizedWord if token has
// no entry in the model. A nil rng uses the global math/rand/v2 source.
func (m *Model) SampleNext(token string, rng Rand) (string, error) {
	s, ok := m.data[token]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedWord, token)
	}
	if rng == nil {
		rng = globalRand{}
	}
	return s.pick(rng.Float64() * s.Sum), nil
}

// pick returns the first option whose cumulative upper bound exceeds r.
func (s *Successors) pick(r float64) string {
	var cumulative float64
	for _, option := range s.Next {
		cumulative += option.Probability
		if r < cumulative {
			return option.Text
		}
	}
	// Only reachable when rounding in r lands exactly on Sum.
	return s.Next[len(s.Next)-1].Text
}

// discardLogger is the default logger for library components.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
