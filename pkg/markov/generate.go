package markov

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
)

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	maxLength   int
	canEndEarly bool
	rng         Rand
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in generation functions like Generate and GenerateStream.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of tokens to generate. The generation
// may stop earlier if an EOC token is chosen and WithEarlyTermination is enabled.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithEarlyTermination specifies whether the generation process stops right
// after emitting an End-Of-Chain (EOC) token. With it disabled, exactly
// maxLength tokens are produced unless the chain hits a dead end.
func WithEarlyTermination(canEnd bool) GenerateOption {
	return func(o *generateOptions) { o.canEndEarly = canEnd }
}

// WithRand sets the random source used for every sampling step of one
// generation call. Supplying a seeded source makes the output reproducible.
func WithRand(rng Rand) GenerateOption {
	return func(o *generateOptions) { o.rng = rng }
}

func newGenerateOptions(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		maxLength:   100,
		canEndEarly: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.rng == nil {
		options.rng = globalRand{}
	}
	return options
}

// Sequence returns a lazy, finite sequence of tokens following start. The
// start token itself is not part of the sequence.
//
// If start has no entry in the model, the sequence yields a single error
// wrapping ErrUnrecognizedWord and nothing else. If a generated token turns
// out to have no successors, the tokens produced so far are followed by an
// error naming that token.
func (g *Generator) Sequence(start string, opts ...GenerateOption) iter.Seq2[Token, error] {
	options := newGenerateOptions(opts)

	return func(yield func(Token, error) bool) {
		if _, ok := g.model.data[start]; !ok {
			g.logger.Debug("Generation refused for unknown start token", slog.String("start", start))
			yield(Token{}, fmt.Errorf("%w: %q", ErrUnrecognizedWord, start))
			return
		}

		current := start
		for generatedCount := 0; generatedCount < options.maxLength; generatedCount++ {
			next, err := g.model.SampleNext(current, options.rng)
			if err != nil { // Dead end in chain
				g.logger.Debug("Generation terminated due to dead-end",
					slog.String("last_token", current),
					slog.Int("generated_length", generatedCount),
				)
				yield(Token{}, err)
				return
			}

			token := Token{Text: next, EOC: g.tokenizer.EOC(next)}
			if !yield(token, nil) {
				return
			}
			if token.EOC && options.canEndEarly {
				g.logger.Debug("Generation terminated by EOC token",
					slog.Int("generated_length", generatedCount+1),
				)
				return
			}
			current = next
		}

		g.logger.Debug("Generation terminated by reaching maxLength",
			slog.Int("max_length", options.maxLength),
		)
	}
}

// GenerateTokens collects the sequence produced by Sequence into a slice. On
// a dead end or an unknown start token it returns the tokens generated so far
// together with the error.
func (g *Generator) GenerateTokens(ctx context.Context, start string, opts ...GenerateOption) ([]Token, error) {
	var tokens []Token
	for token, err := range g.Sequence(start, opts...) {
		if err != nil {
			return tokens, err
		}
		if err = ctx.Err(); err != nil {
			return tokens, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// Generate builds a string beginning with start and followed by the generated
// tokens, joined with the tokenizer's separator. On error the partial string
// is returned alongside it; it is empty when start itself is unknown.
func (g *Generator) Generate(ctx context.Context, start string, opts ...GenerateOption) (string, error) {
	tokens, err := g.GenerateTokens(ctx, start, opts...)
	if len(tokens) == 0 && err != nil {
		return "", err
	}
	return g.Join(start, tokens), err
}

// Join renders start followed by tokens using the tokenizer's separator rules.
func (g *Generator) Join(start string, tokens []Token) string {
	var builder strings.Builder
	builder.WriteString(start)
	lastWord := start
	for _, token := range tokens {
		builder.WriteString(g.tokenizer.Separator(lastWord, token.Text))
		builder.WriteString(token.Text)
		lastWord = token.Text
	}
	return builder.String()
}
