package markov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// BiGram is an ordered pair of adjacent tokens, used as a counting key.
type BiGram struct {
	First  string
	Second string
}

// Counts holds the raw frequencies gathered from a token sequence.
type Counts struct {
	// BiGrams maps each adjacent pair to the number of times it occurred.
	BiGrams map[BiGram]uint32
	// Occurrences maps each token to the number of times it was followed by
	// another token. The final token of a corpus is never counted here.
	Occurrences map[string]uint32
	// Tokens is the total number of tokens consumed.
	Tokens int
	// Vocabulary is the number of distinct tokens consumed.
	Vocabulary int
}

// Counter accumulates bigram and occurrence counts over a sliding window of
// two adjacent tokens.
type Counter struct {
	prev        string
	hasPrev     bool
	tokens      int
	bigrams     map[BiGram]uint32
	occurrences map[string]uint32
	vocabulary  map[string]struct{}
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{
		bigrams:     make(map[BiGram]uint32),
		occurrences: make(map[string]uint32),
		vocabulary:  make(map[string]struct{}),
	}
}

// Add feeds the next token of the sequence into the counter.
func (c *Counter) Add(token string) {
	c.tokens++
	c.vocabulary[token] = struct{}{}
	if c.hasPrev {
		c.bigrams[BiGram{First: c.prev, Second: token}]++
		c.occurrences[c.prev]++
	}
	c.prev = token
	c.hasPrev = true
}

// Counts returns the counts gathered so far. The returned maps are owned by
// the caller; the counter must not be used afterwards.
func (c *Counter) Counts() Counts {
	return Counts{
		BiGrams:     c.bigrams,
		Occurrences: c.occurrences,
		Tokens:      c.tokens,
		Vocabulary:  len(c.vocabulary),
	}
}

// Count counts the bigrams and occurrences of a token sequence. Sequences
// shorter than two tokens yield empty maps.
func Count(tokens []Token) Counts {
	c := NewCounter()
	for _, token := range tokens {
		c.Add(token.Text)
	}
	return c.Counts()
}

// BuildModel tokenizes text with the given policy and builds a model from it.
// It fails only when the policy is not supported; an empty or single-token
// text yields a valid model with no entries.
func BuildModel(text string, policy Policy) (*Model, error) {
	tokenizer, err := NewTokenizer(policy)
	if err != nil {
		return nil, err
	}
	return BuildTable(Count(tokenizer.Tokenize(text))), nil
}

// Train processes a stream of text from an io.Reader, tokenizes it, and builds
// a model from the result in a single pass. A nil logger discards all output.
func Train(ctx context.Context, tokenizer Tokenizer, data io.Reader, logger *slog.Logger) (*Model, error) {
	// ctxCheckInterval determines how many tokens are consumed between context checks.
	const ctxCheckInterval = 4096

	if logger == nil {
		logger = discardLogger()
	}

	counter := NewCounter()
	stream := tokenizer.NewStream(data)
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("tokenizer error: %w", err)
		}
		counter.Add(token.Text)

		if counter.tokens%ctxCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	counts := counter.Counts()
	model := BuildTable(counts)

	if model.Len() == 0 {
		logger.WarnContext(ctx, "Corpus produced no transitions, model is empty",
			slog.Int("tokens_processed", counts.Tokens),
		)
	}

	logger.InfoContext(ctx, "Training completed",
		slog.Int("tokens_processed", counts.Tokens),
		slog.Int("vocabulary_size", counts.Vocabulary),
		slog.Int("unique_bigrams", len(counts.BiGrams)),
		slog.Int("model_entries", model.Len()),
	)

	return model, nil
}

// TrainString is a convenience wrapper around Train that uses a string as the corpus.
func TrainString(ctx context.Context, tokenizer Tokenizer, text string, logger *slog.Logger) (*Model, error) {
	return Train(ctx, tokenizer, strings.NewReader(text), logger)
}
