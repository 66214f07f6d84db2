package markov

import (
	"errors"
	"log/slog"
)

// Generator is the main entry point for producing text from a Model.
// It pairs a read-only model with the tokenizer used to build it, which
// decides how tokens are joined and which tokens end a sentence.
// A Generator never modifies its model and is safe for concurrent use.
type Generator struct {
	model     *Model
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewGenerator creates and returns a new Generator for the given model and
// tokenizer.
func NewGenerator(model *Model, tokenizer Tokenizer) (*Generator, error) {
	if model == nil {
		return nil, errors.New("markov: nil model")
	}
	if tokenizer == nil {
		return nil, errors.New("markov: nil tokenizer")
	}
	return &Generator{
		model:     model,
		tokenizer: tokenizer,
		logger:    discardLogger(),
	}, nil
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// Model returns the model the Generator samples from.
func (g *Generator) Model() *Model {
	return g.model
}

// Next samples a single successor of word. A nil rng uses the global source.
func (g *Generator) Next(word string, rng Rand) (Token, error) {
	next, err := g.model.SampleNext(word, rng)
	if err != nil {
		return Token{}, err
	}
	return Token{Text: next, EOC: g.tokenizer.EOC(next)}, nil
}
