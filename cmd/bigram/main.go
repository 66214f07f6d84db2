package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/bigram/pkg/markov"
	"github.com/spf13/cobra"
)

// cliFlags holds the command line flags. Each one overrides its config
// counterpart only when set explicitly.
type cliFlags struct {
	configPath  string
	mode        string
	words       int
	seed        uint64
	tokenizer   string
	logLevel    string
	addr        string
	word        string
	recordStats bool
	scopes      []string

	changed func(name string) bool
}

// apply copies explicitly set flags over the loaded configuration.
func (f *cliFlags) apply(config *Config) {
	if f.changed == nil {
		return
	}
	if f.changed("mode") {
		config.Generation.Mode = f.mode
	}
	if f.changed("words") {
		config.Generation.Words = f.words
	}
	if f.changed("seed") {
		config.Generation.Seed = f.seed
	}
	if f.changed("tokenizer") {
		config.Model.Tokenizer = f.tokenizer
	}
	if f.changed("log-level") {
		config.Server.LogLevel = f.logLevel
	}
	if f.changed("addr") {
		config.Server.ApiAddr = f.addr
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree reading prompts from in and writing
// generated text to out.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "bigram [flags] FILE...",
		Short: "Generate text from a bigram model of the given files",
		Long: `
Build a first order Markov model of word succession from one or more
text files and generate text from it interactively. Each line read is
used as a start word; the reply depends on --mode.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		Version:      Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.changed = cmd.Flags().Changed
			return runInteractive(cmd.Context(), flags, args, in, out)
		},
	}
	root.SetIn(in)
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "./config.json", "path of the JSON configuration file")
	pf.StringVar(&flags.tokenizer, "tokenizer", string(markov.PolicyPunctuation), "tokenization policy (whitespace_only or whitespace_plus_punctuation)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.Uint64Var(&flags.seed, "seed", 0, "seed for reproducible generation, 0 for random")
	pf.StringVar(&flags.mode, "mode", modeWords, "generation mode (words, sentence or next)")
	pf.IntVar(&flags.words, "words", 7, "number of words generated in words mode")

	root.Flags().BoolVar(&flags.recordStats, "record-stats", false, "record requested words in the stats database")

	serveCmd := &cobra.Command{
		Use:   "serve FILE...",
		Short: "Serve the generator over an HTTP API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.changed = cmd.Flags().Changed
			return runServe(cmd.Context(), flags, args)
		},
	}
	serveCmd.Flags().StringVar(&flags.addr, "addr", "127.0.0.1:7278", "listen address of the API server")

	inspectCmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Print the successors of a word, or model statistics, as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.changed = cmd.Flags().Changed
			return runInspect(cmd.Context(), flags, args, out)
		},
	}
	inspectCmd.Flags().StringVar(&flags.word, "word", "", "word whose successor table is printed")

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an API key and print it with the hash to put in api_keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(flags, out)
		},
	}
	keygenCmd.Flags().StringSliceVar(&flags.scopes, "scope", []string{scopeServerControl}, "scopes granted to the key")

	root.AddCommand(serveCmd, inspectCmd, keygenCmd)
	return root
}

func runInteractive(ctx context.Context, flags *cliFlags, paths []string, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, flags, paths)
	if err != nil {
		return err
	}

	var stats *StatsStore
	if flags.recordStats {
		stats, err = openStatsStore(a.config.Server.DataDir, a.config.Server.StatsDatabasePath)
		if err != nil {
			return err
		}
		defer func(stats *StatsStore) {
			_ = stats.Close()
		}(stats)
	}

	opts := replOptions{
		mode:              a.config.Generation.Mode,
		words:             a.config.Generation.Words,
		maxSentenceLength: a.config.Generation.MaxSentenceLength,
		rng:               newRand(a.config.Generation.Seed),
	}
	err = runREPL(ctx, in, out, a.gen, stats, opts, a.logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runServe hosts the API until a shutdown is requested through the API or
// ctx is cancelled by a signal.
func runServe(ctx context.Context, flags *cliFlags, paths []string) error {
	a, err := newApp(ctx, flags, paths)
	if err != nil {
		return err
	}
	logger := a.logger

	var stats *StatsStore
	if a.config.Server.StatsDatabasePath != "" {
		stats, err = openStatsStore(a.config.Server.DataDir, a.config.Server.StatsDatabasePath)
		if err != nil {
			logger.Error("Usage statistics disabled", "error", err)
			stats = nil
		}
	}

	actionChan := make(chan string, 1)
	server, err := NewServer(a.config, logger, a.gen, stats, actionChan)
	if err != nil {
		return fmt.Errorf("failed to create server object: %w", err)
	}

	apiHttpServer := &http.Server{
		Addr:              a.config.Server.ApiAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case action := <-actionChan:
		logger.Info("Stopping server for " + action + "...")
	case <-ctx.Done():
		logger.Info("OS signal received, initiating shutdown.")
	case err = <-serveErr:
		logger.Error("Api server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := apiHttpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("Api server shutdown failed", "error", shutdownErr)
	}
	logger.Info("HTTP server stopped.")

	if stats != nil {
		logger.Info("Closing stats database.")
		if closeErr := stats.Close(); closeErr != nil {
			logger.Error("Failed to close database", "error", closeErr)
		}
	}
	return err
}

func runInspect(ctx context.Context, flags *cliFlags, paths []string, out io.Writer) error {
	a, err := newApp(ctx, flags, paths)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	model := a.gen.Model()
	if flags.word == "" {
		return encoder.Encode(model.Stats())
	}
	successors, ok := model.Successors(flags.word)
	if !ok {
		return fmt.Errorf("%s: %q", unknownWordReply, flags.word)
	}
	return encoder.Encode(WordResponse{Word: flags.word, Successors: successors})
}

// KeygenResponse is printed by the keygen command. Only KeyHash belongs in
// the configuration file.
type KeygenResponse struct {
	RawKey string `json:"raw_key"`
	APIKey
}

func runKeygen(flags *cliFlags, out io.Writer) error {
	if len(flags.scopes) == 0 {
		return errors.New("at least one --scope is required")
	}
	rawKey, err := generateAPIKey()
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(KeygenResponse{
		RawKey: rawKey,
		APIKey: APIKey{
			KeyHash: hashAPIKey(rawKey),
			Scopes:  flags.scopes,
		},
	})
}
