package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/CTAG07/bigram/pkg/markov"
	"github.com/dustin/go-humanize"
)

// app bundles everything a command needs once the model is built.
type app struct {
	config *Config
	logger *slog.Logger
	gen    *markov.Generator
}

// newApp loads the configuration, applies flag overrides and builds the
// model from the given files. Any file error is fatal: no app is returned
// with a partial model.
func newApp(ctx context.Context, flags *cliFlags, paths []string) (*app, error) {
	config, err := LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	flags.apply(config)
	if err = config.validate(); err != nil {
		return nil, err
	}

	logger := newLogger(config.Server)

	var tokOpts []markov.Option
	if config.Model.PrettyJoin {
		tokOpts = append(tokOpts, markov.WithSeparatorExcRegex(`^[.,!?;:)\]]`))
	}
	tokenizer, err := markov.NewTokenizer(markov.Policy(config.Model.Tokenizer), tokOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	c, err := openCorpus(paths)
	if err != nil {
		return nil, err
	}
	defer func(c *corpus) {
		_ = c.Close()
	}(c)

	start := time.Now()
	model, err := markov.Train(ctx, tokenizer, c, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}
	logger.Info("Model built",
		slog.Int("files", len(paths)),
		slog.String("corpus_size", humanize.Bytes(uint64(c.size))),
		slog.Int("entries", model.Len()),
		slog.Duration("took", time.Since(start)),
	)

	gen, err := markov.NewGenerator(model, tokenizer)
	if err != nil {
		return nil, err
	}
	gen.SetLogger(logger)

	return &app{config: config, logger: logger, gen: gen}, nil
}

// newRand returns a seeded source, or nil for the shared global source.
func newRand(seed uint64) markov.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed))
}

// generationOptions maps a generation mode onto generator options.
func generationOptions(mode string, words, maxSentenceLength int, rng markov.Rand) []markov.GenerateOption {
	opts := []markov.GenerateOption{markov.WithRand(rng)}
	switch mode {
	case modeSentence:
		return append(opts, markov.WithMaxLength(maxSentenceLength), markov.WithEarlyTermination(true))
	case modeNext:
		return append(opts, markov.WithMaxLength(1), markov.WithEarlyTermination(false))
	default:
		return append(opts, markov.WithMaxLength(words), markov.WithEarlyTermination(false))
	}
}
