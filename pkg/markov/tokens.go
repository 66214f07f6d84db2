package markov

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrUnrecognizedWord is returned when a word has no entry in a model,
	// i.e. it was never followed by another token in the corpus.
	ErrUnrecognizedWord = errors.New("unrecognized word")
	// ErrInvalidPolicy is returned when a tokenizer is requested for an
	// unsupported tokenization policy.
	ErrInvalidPolicy = errors.New("invalid tokenization policy")
)

// Token represents a single tokenized unit of text. It contains the text itself
// and a boolean flag indicating if it marks the end of a chain (e.g., a sentence).
// EOC is derived from Text, so two tokens are equal exactly when their text is.
type Token struct {
	Text string
	EOC  bool
}

// Policy names a tokenization strategy.
type Policy string

const (
	// PolicyWhitespace splits on Unicode whitespace only. Punctuation stays
	// attached to the neighbouring word.
	PolicyWhitespace Policy = "whitespace_only"
	// PolicyPunctuation splits on Unicode whitespace and then peels a single
	// leading and a single trailing punctuation character off each fragment,
	// emitting it as a token of its own. This is the default policy.
	PolicyPunctuation Policy = "whitespace_plus_punctuation"
)

// ParsePolicy validates a policy name. An empty name selects PolicyPunctuation.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyPunctuation:
		return PolicyPunctuation, nil
	case PolicyWhitespace:
		return PolicyWhitespace, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, name)
	}
}

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. This allows the counting and generation logic to be independent
// of the specific tokenization strategy.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string that should be used to join tokens
	// when building a final generated string, using the previous and current
	// tokens.
	Separator(prev, current string) string
	// EOC reports whether the given token text ends a chain (a sentence).
	EOC(text string) bool
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (*Token, error)
}
