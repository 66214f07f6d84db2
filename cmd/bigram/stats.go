package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_word (
    word          TEXT    PRIMARY KEY,
    total_hits    INTEGER NOT NULL DEFAULT 1,
    unknown_hits  INTEGER NOT NULL DEFAULT 0,
    first_seen    INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL
);
`

// WordStats is the usage record of a single requested start word.
type WordStats struct {
	Word        string    `json:"word"`
	TotalHits   int64     `json:"total_hits"`
	UnknownHits int64     `json:"unknown_hits"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// StatsSummary provides a high-level overview of all collected stats.
type StatsSummary struct {
	TotalRequests   int64 `json:"total_requests"`
	UnknownRequests int64 `json:"unknown_requests"`
	UniqueWords     int64 `json:"unique_words"`
}

// StatsStore records which start words are requested from the generator.
// It stores usage only, never the model itself.
type StatsStore struct {
	db *sql.DB
}

// openStatsStore opens (creating if needed) the SQLite usage database.
func openStatsStore(dataDir, dataSource string) (*StatsStore, error) {
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create data dir: %w", err)
		}
	}
	db, err := initDB(dataSource)
	if err != nil {
		return nil, fmt.Errorf("could not open stats database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA busy_timeout=5000;"} {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not configure stats database: %w", err)
		}
	}
	if _, err = db.Exec(statsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create stats schema: %w", err)
	}
	return &StatsStore{db: db}, nil
}

// Close closes the underlying database.
func (s *StatsStore) Close() error {
	return s.db.Close()
}

// Record logs one request for word. known reports whether the model could
// generate from it.
func (s *StatsStore) Record(ctx context.Context, word string, known bool) error {
	var unknown int
	if !known {
		unknown = 1
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats_word (word, unknown_hits, first_seen, last_seen) VALUES (?, ?, ?, ?)
        ON CONFLICT(word) DO UPDATE SET
            total_hits = total_hits + 1,
            unknown_hits = unknown_hits + excluded.unknown_hits,
            last_seen = excluded.last_seen
    `, word, unknown, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_word: %w", err)
	}
	return nil
}

// Summary returns aggregate counts over all recorded words.
func (s *StatsStore) Summary(ctx context.Context) (StatsSummary, error) {
	var summary StatsSummary
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(total_hits), 0), COALESCE(SUM(unknown_hits), 0), COUNT(*) FROM stats_word",
	).Scan(&summary.TotalRequests, &summary.UnknownRequests, &summary.UniqueWords)
	if err != nil {
		return StatsSummary{}, fmt.Errorf("failed to query stats summary: %w", err)
	}
	return summary, nil
}

// TopWords returns the most requested words, most frequent first.
func (s *StatsStore) TopWords(ctx context.Context, limit int) ([]WordStats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT word, total_hits, unknown_hits, first_seen, last_seen FROM stats_word ORDER BY total_hits DESC, word ASC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top words: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := make([]WordStats, 0)
	for rows.Next() {
		var ws WordStats
		var first, last int64
		if err = rows.Scan(&ws.Word, &ws.TotalHits, &ws.UnknownHits, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan top words: %w", err)
		}
		ws.FirstSeen = time.Unix(first, 0).UTC()
		ws.LastSeen = time.Unix(last, 0).UTC()
		results = append(results, ws)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *StatsStore
	logger *slog.Logger
}

func NewStatsAPI(store *StatsStore, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  store,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/top_words", s.handleTopWords)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	summary, err := s.store.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to get stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleTopWords(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w, r) {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	results, err := s.store.TopWords(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query top words", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, results)
}

// ready rejects the request unless it is a GET and a store is configured.
func (s *StatsAPI) ready(w http.ResponseWriter, r *http.Request) bool {
	if !allowGet(w, r) {
		return false
	}
	if s.store == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Usage statistics are disabled")
		return false
	}
	return true
}
