package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/CTAG07/bigram/pkg/markov"
)

const (
	promptText         = "Please enter a word:"
	unknownWordReply   = "Sorry, I don't know that word"
	nextWordReplyFmt   = "Next Word: %s\n"
	stoppedEarlyFormat = "(stopped early: %v)\n"
)

// replOptions controls what the interactive loop prints for each word.
type replOptions struct {
	mode              string
	words             int
	maxSentenceLength int
	rng               markov.Rand
}

// runREPL prompts for a start word on in and writes the generated text to
// out until in is exhausted or ctx is cancelled. stats may be nil.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, gen *markov.Generator, stats *StatsStore, opts replOptions, logger *slog.Logger) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := readLines(readCtx, in)
	for {
		if _, err := fmt.Fprint(out, promptText); err != nil {
			return err
		}

		var line readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line = <-lines:
		}
		if line.err != nil && !errors.Is(line.err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", line.err)
		}
		if line.err != nil && line.text == "" {
			_, _ = fmt.Fprintln(out)
			return nil
		}
		word := strings.TrimSuffix(strings.TrimSuffix(line.text, "\n"), "\r")

		start := time.Now()
		known, err := respond(ctx, out, gen, word, opts)
		if err != nil {
			return err
		}
		logger.Debug("Generating response took", "word", word, "known", known, "took", time.Since(start))

		if stats != nil {
			if err = stats.Record(ctx, word, known); err != nil {
				logger.Warn("Failed to record word usage", "word", word, "error", err)
			}
		}
		if line.err != nil {
			return nil
		}
	}
}

type readResult struct {
	text string
	err  error
}

// readLines reads in line by line on its own goroutine so that a blocked
// read never delays cancellation. The goroutine stops sending once ctx is
// done. The last result carries a non-nil error.
func readLines(ctx context.Context, in io.Reader) <-chan readResult {
	lines := make(chan readResult)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(in)
		for {
			text, err := reader.ReadString('\n')
			select {
			case lines <- readResult{text: text, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// respond writes the reply for a single word and reports whether the model
// knew it. Only write failures and cancellation are returned as errors.
func respond(ctx context.Context, out io.Writer, gen *markov.Generator, word string, opts replOptions) (bool, error) {
	if opts.mode == modeNext {
		token, err := gen.Next(word, opts.rng)
		if err != nil {
			_, err = fmt.Fprintln(out, unknownWordReply)
			return false, err
		}
		_, err = fmt.Fprintf(out, nextWordReplyFmt, token.Text)
		return true, err
	}

	if _, known := gen.Model().Successors(word); !known {
		_, err := fmt.Fprintln(out, unknownWordReply)
		return false, err
	}

	tokens, genErr := gen.GenerateTokens(ctx, word, generationOptions(opts.mode, opts.words, opts.maxSentenceLength, opts.rng)...)
	if genErr != nil && !errors.Is(genErr, markov.ErrUnrecognizedWord) {
		return true, genErr
	}
	if _, err := fmt.Fprintln(out, gen.Join(word, tokens)); err != nil {
		return true, err
	}
	if genErr != nil {
		_, err := fmt.Fprintf(out, stoppedEarlyFormat, genErr)
		return true, err
	}
	return true, nil
}
