package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/CTAG07/bigram/pkg/markov"
	"github.com/google/uuid"
)

type contextKey string

const contextKeyRequestID = contextKey("request_id")

// Server owns the API mux and every handler group registered on it.
type Server struct {
	config      *Config
	logger      *slog.Logger
	gen         *markov.Generator
	stats       *StatsStore
	authAPI     *AuthAPI
	generateAPI *GenerateAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	apiMux      *http.ServeMux
	rootMux     *http.ServeMux
}

// NewServer wires the API handlers. stats may be nil, in which case usage
// is not recorded and the stats endpoints answer 503.
func NewServer(config *Config, logger *slog.Logger, gen *markov.Generator, stats *StatsStore, actionChan chan string) (*Server, error) {
	if gen == nil {
		return nil, errors.New("server requires a generator")
	}

	var keys []APIKey
	if config.Server != nil {
		keys = config.Server.ApiKeys
	}

	server := &Server{
		config:      config,
		logger:      logger,
		gen:         gen,
		stats:       stats,
		authAPI:     NewAuthAPI(keys, logger),
		generateAPI: NewGenerateAPI(gen, stats, config.Generation, logger),
		statsAPI:    NewStatsAPI(stats, logger),
		serverAPI:   NewServerAPI(actionChan, logger),
		apiMux:      http.NewServeMux(),
		rootMux:     http.NewServeMux(),
	}

	server.authAPI.RegisterRoutes(server.apiMux)
	server.generateAPI.RegisterRoutes(server.apiMux)
	server.statsAPI.RegisterRoutes(server.apiMux)
	server.serverAPI.RegisterRoutes(server.apiMux)

	// The health check stays outside authentication, as liveness checks carry no key.
	server.rootMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.rootMux.Handle("/", server.authAPI.Authenticate(server.apiMux))

	return server, nil
}

// Handler returns the API handler wrapped in the request ID middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.rootMux)
}

// withRequestID tags every request with a fresh ID, echoed back in the
// X-Request-Id header and available to handlers through requestID.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		s.logger.Debug("API request", "request_id", id, "method", r.Method, "path", r.URL.Path)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestID returns the ID assigned by withRequestID, or "" outside it.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(contextKeyRequestID).(string)
	return id
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		err := json.NewEncoder(w).Encode(payload)
		if err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
