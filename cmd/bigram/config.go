package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/bigram/pkg/markov"
	"github.com/natefinch/atomic"
)

const (
	modeWords    = "words"
	modeSentence = "sentence"
	modeNext     = "next"
)

// ServerConfig holds the configuration for logging, storage and the HTTP API.
type ServerConfig struct {
	ApiAddr           string `json:"api_addr"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
	DataDir           string `json:"data_dir"`
	StatsDatabasePath string `json:"stats_database_path"`
	// ApiKeys guard the server control endpoints. With none configured
	// those endpoints refuse every request.
	ApiKeys []APIKey `json:"api_keys"`
}

// ModelConfig holds settings used when building the model.
type ModelConfig struct {
	Tokenizer string `json:"tokenizer"`
	// PrettyJoin drops the separator before punctuation when joining output.
	PrettyJoin bool `json:"pretty_join"`
}

// GenerationConfig holds settings for generating responses.
type GenerationConfig struct {
	Mode              string `json:"mode"`
	Words             int    `json:"words"`
	MaxSentenceLength int    `json:"max_sentence_length"`
	// Seed makes generation reproducible when non-zero.
	Seed uint64 `json:"seed"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig     `json:"server_config"`
	Model      *ModelConfig      `json:"model_config"`
	Generation *GenerationConfig `json:"generation_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:           "127.0.0.1:7278",
		LogLevel:          "info",
		LogFormat:         "text",
		DataDir:           "./data",
		StatsDatabasePath: "./data/bigram_stats.db",
		ApiKeys:           []APIKey{},
	}
}

// DefaultModelConfig creates a model configuration with default values.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		Tokenizer:  string(markov.PolicyPunctuation),
		PrettyJoin: false,
	}
}

// DefaultGenerationConfig creates a generation configuration with default values.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		Mode:              modeWords,
		Words:             7,
		MaxSentenceLength: 100,
		Seed:              0,
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := &Config{
		Server:     DefaultServerConfig(),
		Model:      DefaultModelConfig(),
		Generation: DefaultGenerationConfig(),
	}

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the program can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the JSON from the file into the config struct.
	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, config.validate()
}

// validate fills sections missing from the file and rejects unusable values.
func (c *Config) validate() error {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	if c.Model == nil {
		c.Model = DefaultModelConfig()
	}
	if c.Generation == nil {
		c.Generation = DefaultGenerationConfig()
	}

	for i, key := range c.Server.ApiKeys {
		if decoded, err := hex.DecodeString(key.KeyHash); err != nil || len(decoded) != sha256.Size {
			return fmt.Errorf("server_config.api_keys[%d].key_hash must be a hex SHA-256 digest", i)
		}
		if len(key.Scopes) == 0 {
			return fmt.Errorf("server_config.api_keys[%d] has no scopes", i)
		}
	}
	if _, err := markov.ParsePolicy(c.Model.Tokenizer); err != nil {
		return fmt.Errorf("invalid model_config.tokenizer: %w", err)
	}
	switch c.Generation.Mode {
	case modeWords, modeSentence, modeNext:
	default:
		return fmt.Errorf("invalid generation_config.mode %q (want %s, %s or %s)", c.Generation.Mode, modeWords, modeSentence, modeNext)
	}
	if c.Generation.Words < 0 {
		return fmt.Errorf("generation_config.words must not be negative, got %d", c.Generation.Words)
	}
	if c.Generation.MaxSentenceLength <= 0 {
		return fmt.Errorf("generation_config.max_sentence_length must be positive, got %d", c.Generation.MaxSentenceLength)
	}
	return nil
}

// newLogger builds the application logger from the server configuration.
func newLogger(conf *ServerConfig) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(conf.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}

	// Logs go to stderr, stdout carries generated text.
	if strings.ToLower(conf.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
