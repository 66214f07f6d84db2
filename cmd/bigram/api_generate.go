package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/bigram/pkg/markov"
)

// maxRequestTokens caps the n parameter of a single generate request.
const maxRequestTokens = 1000

const unknownWordMessage = "I don't know that word"

// GenerateAPI holds the dependencies for the generation API handlers.
type GenerateAPI struct {
	gen    *markov.Generator
	stats  *StatsStore
	conf   *GenerationConfig
	logger *slog.Logger
}

// NewGenerateAPI creates a new instance of the GenerateAPI.
func NewGenerateAPI(gen *markov.Generator, stats *StatsStore, conf *GenerationConfig, logger *slog.Logger) *GenerateAPI {
	return &GenerateAPI{
		gen:    gen,
		stats:  stats,
		conf:   conf,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for the generation and model endpoints.
func (g *GenerateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/generate", g.handleGenerate)
	mux.HandleFunc("/api/next", g.handleNext)
	mux.HandleFunc("/api/words/", g.handleWord)
	mux.HandleFunc("/api/model/stats", g.handleModelStats)
}

// GenerateResponse is the JSON response of /api/generate.
type GenerateResponse struct {
	RequestID    string   `json:"request_id"`
	Start        string   `json:"start"`
	Tokens       []string `json:"tokens"`
	Text         string   `json:"text"`
	StoppedEarly bool     `json:"stopped_early"`
}

// NextResponse is the JSON response of /api/next.
type NextResponse struct {
	Word string `json:"word"`
	Next string `json:"next"`
	EOC  bool   `json:"eoc"`
}

// WordResponse is the JSON response of /api/words/{word}.
type WordResponse struct {
	Word string `json:"word"`
	markov.Successors
}

func (g *GenerateAPI) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	query := r.URL.Query()
	word := query.Get("word")
	if word == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'word' query parameter")
		return
	}

	mode := g.conf.Mode
	if raw := query.Get("mode"); raw != "" {
		mode = raw
	}
	n := g.conf.Words
	switch mode {
	case modeWords:
	case modeSentence:
		n = g.conf.MaxSentenceLength
	case modeNext:
		n = 1
	default:
		respondWithError(w, http.StatusBadRequest, "mode must be one of words, sentence or next")
		return
	}
	if raw := query.Get("n"); raw != "" && mode != modeNext {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > maxRequestTokens {
			respondWithError(w, http.StatusBadRequest, "n must be an integer between 0 and "+strconv.Itoa(maxRequestTokens))
			return
		}
		n = parsed
	}
	rng, ok := g.requestRand(w, r)
	if !ok {
		return
	}

	_, known := g.gen.Model().Successors(word)
	g.record(r.Context(), word, known)
	if !known {
		respondWithError(w, http.StatusNotFound, unknownWordMessage)
		return
	}

	start := time.Now()
	tokens, err := g.gen.GenerateTokens(r.Context(), word, generationOptions(mode, n, n, rng)...)
	stoppedEarly := false
	if err != nil {
		if !errors.Is(err, markov.ErrUnrecognizedWord) {
			g.logger.Warn("Generation aborted", "request_id", requestID(r), "error", err)
			respondWithError(w, http.StatusServiceUnavailable, "Generation aborted")
			return
		}
		stoppedEarly = true
	}

	resp := GenerateResponse{
		RequestID:    requestID(r),
		Start:        word,
		Tokens:       make([]string, 0, len(tokens)),
		Text:         g.gen.Join(word, tokens),
		StoppedEarly: stoppedEarly,
	}
	for _, token := range tokens {
		resp.Tokens = append(resp.Tokens, token.Text)
	}
	g.logger.Debug("Generated response",
		"request_id", resp.RequestID,
		"mode", mode,
		"tokens", len(tokens),
		"took", time.Since(start),
	)
	respondWithJSON(w, http.StatusOK, resp)
}

func (g *GenerateAPI) handleNext(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	word := r.URL.Query().Get("word")
	if word == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'word' query parameter")
		return
	}
	rng, ok := g.requestRand(w, r)
	if !ok {
		return
	}

	token, err := g.gen.Next(word, rng)
	g.record(r.Context(), word, err == nil)
	if err != nil {
		respondWithError(w, http.StatusNotFound, unknownWordMessage)
		return
	}
	respondWithJSON(w, http.StatusOK, NextResponse{Word: word, Next: token.Text, EOC: token.EOC})
}

// handleWord returns the successor table of the word named in the path.
func (g *GenerateAPI) handleWord(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	word := strings.TrimPrefix(r.URL.Path, "/api/words/")
	if word == "" {
		respondWithError(w, http.StatusBadRequest, "Missing word in path")
		return
	}
	successors, ok := g.gen.Model().Successors(word)
	if !ok {
		respondWithError(w, http.StatusNotFound, unknownWordMessage)
		return
	}
	respondWithJSON(w, http.StatusOK, WordResponse{Word: word, Successors: successors})
}

func (g *GenerateAPI) handleModelStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	respondWithJSON(w, http.StatusOK, g.gen.Model().Stats())
}

// requestRand honours an optional seed parameter, falling back to the
// configured seed.
func (g *GenerateAPI) requestRand(w http.ResponseWriter, r *http.Request) (markov.Rand, bool) {
	seed := g.conf.Seed
	if raw := r.URL.Query().Get("seed"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "seed must be an unsigned integer")
			return nil, false
		}
		seed = parsed
	}
	return newRand(seed), true
}

// record stores the request in the usage stats. Failures are logged only.
func (g *GenerateAPI) record(ctx context.Context, word string, known bool) {
	if g.stats == nil {
		return
	}
	if err := g.stats.Record(ctx, word, known); err != nil {
		g.logger.Warn("Failed to record word usage", "word", word, "error", err)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}
