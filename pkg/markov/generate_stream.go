package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// GenerateStream starts generation from start and returns a read-only channel
// of Tokens. This allows for processing the generated text token-by-token, which
// is useful for real-time applications. The channel will be closed once generation
// is complete, hits a dead end, or the context is cancelled.
//
// An error wrapping ErrUnrecognizedWord is returned up front if start has no
// entry in the model.
func (g *Generator) GenerateStream(ctx context.Context, start string, opts ...GenerateOption) (<-chan Token, error) {
	if _, ok := g.model.data[start]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedWord, start)
	}

	tokenChan := make(chan Token)

	go func() {
		defer close(tokenChan)

		for token, err := range g.Sequence(start, opts...) {
			if err != nil {
				g.logger.DebugContext(ctx, "Generation stream stopped early", slog.Any("error", err))
				return
			}
			select {
			case <-ctx.Done():
				g.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			case tokenChan <- token:
			}
		}
	}()

	return tokenChan, nil
}
