package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CTAG07/bigram/pkg/markov"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler    http.Handler
	stats      *StatsStore
	actionChan chan string
}

func setupTestServer(t *testing.T, withStats bool) *testServer {
	t.Helper()
	return setupTestServerWithKeys(t, withStats, nil)
}

func setupTestServerWithKeys(t *testing.T, withStats bool, keys []APIKey) *testServer {
	t.Helper()
	config := &Config{
		Server:     DefaultServerConfig(),
		Model:      DefaultModelConfig(),
		Generation: DefaultGenerationConfig(),
	}
	config.Server.ApiKeys = keys
	var stats *StatsStore
	if withStats {
		stats = setupStatsStore(t)
	}
	actionChan := make(chan string, 1)
	server, err := NewServer(config, testLogger(), setupTestGenerator(t), stats, actionChan)
	require.NoError(t, err)
	return &testServer{handler: server.Handler(), stats: stats, actionChan: actionChan}
}

func (s *testServer) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithKey(t, method, target, "")
}

// doWithKey sends the request with a bearer key, or anonymously when key is empty.
func (s *testServer) doWithKey(t *testing.T, method, target, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServerRequiresGenerator(t *testing.T) {
	_, err := NewServer(&Config{Generation: DefaultGenerationConfig()}, testLogger(), nil, nil, nil)
	assert.Error(t, err)
}

func TestGenerateEndpoint(t *testing.T) {
	s := setupTestServer(t, true)

	t.Run("words mode", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/generate?word=the&n=6&seed=42")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		resp := decodeJSON[GenerateResponse](t, rec)
		assert.Equal(t, "the", resp.Start)
		assert.Len(t, resp.Tokens, 6)
		assert.False(t, resp.StoppedEarly)
		assert.Equal(t, rec.Header().Get("X-Request-Id"), resp.RequestID)
		_, err := uuid.Parse(resp.RequestID)
		assert.NoError(t, err)

		want := "the"
		for _, token := range resp.Tokens {
			want += " " + token
		}
		assert.Equal(t, want, resp.Text)
	})

	t.Run("seed is reproducible", func(t *testing.T) {
		first := decodeJSON[GenerateResponse](t, s.do(t, http.MethodGet, "/api/generate?word=the&n=10&seed=7"))
		second := decodeJSON[GenerateResponse](t, s.do(t, http.MethodGet, "/api/generate?word=the&n=10&seed=7"))
		assert.Equal(t, first.Tokens, second.Tokens)
		assert.NotEqual(t, first.RequestID, second.RequestID)
	})

	t.Run("sentence mode ends on a terminal", func(t *testing.T) {
		resp := decodeJSON[GenerateResponse](t, s.do(t, http.MethodGet, "/api/generate?word=the&mode=sentence&seed=3"))
		require.NotEmpty(t, resp.Tokens)
		assert.Equal(t, ".", resp.Tokens[len(resp.Tokens)-1])
	})

	t.Run("unknown word", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/generate?word=zebra")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, map[string]string{"error": unknownWordMessage}, decodeJSON[map[string]string](t, rec))
	})

	badRequests := []string{
		"/api/generate",
		"/api/generate?word=the&n=-1",
		"/api/generate?word=the&n=lots",
		"/api/generate?word=the&n=100000",
		"/api/generate?word=the&mode=poem",
		"/api/generate?word=the&seed=-5",
	}
	for _, target := range badRequests {
		t.Run("bad request "+target, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, target).Code)
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/generate?word=the")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Equal(t, "GET", rec.Header().Get("Allow"))
	})
}

func TestGenerateEndpointDeadEnd(t *testing.T) {
	model, err := markov.BuildModel("a b c", markov.PolicyWhitespace)
	require.NoError(t, err)
	gen, err := markov.NewGenerator(model, markov.NewDefaultTokenizer())
	require.NoError(t, err)
	server, err := NewServer(&Config{Generation: DefaultGenerationConfig()}, testLogger(), gen, nil, make(chan string, 1))
	require.NoError(t, err)
	s := &testServer{handler: server.Handler()}

	resp := decodeJSON[GenerateResponse](t, s.do(t, http.MethodGet, "/api/generate?word=a&n=5"))
	assert.Equal(t, []string{"b", "c"}, resp.Tokens)
	assert.Equal(t, "a b c", resp.Text)
	assert.True(t, resp.StoppedEarly)
}

func TestNextEndpoint(t *testing.T) {
	s := setupTestServer(t, false)

	resp := decodeJSON[NextResponse](t, s.do(t, http.MethodGet, "/api/next?word=sat"))
	assert.Equal(t, NextResponse{Word: "sat", Next: "on"}, resp)

	resp = decodeJSON[NextResponse](t, s.do(t, http.MethodGet, "/api/next?word=mat"))
	assert.Equal(t, NextResponse{Word: "mat", Next: ".", EOC: true}, resp)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/next?word=zebra").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/next").Code)
}

func TestWordEndpoint(t *testing.T) {
	s := setupTestServer(t, false)

	rec := s.do(t, http.MethodGet, "/api/words/the")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[WordResponse](t, rec)
	assert.Equal(t, "the", resp.Word)
	assert.InDelta(t, 1.0, resp.Sum, 1e-9)
	texts := make([]string, 0, len(resp.Next))
	for _, next := range resp.Next {
		texts = append(texts, next.Text)
		assert.InDelta(t, 0.25, next.Probability, 1e-9)
	}
	assert.Equal(t, []string{"cat", "dog", "mat", "rug"}, texts)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/words/zebra").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/words/").Code)
}

func TestModelStatsEndpoint(t *testing.T) {
	s := setupTestServer(t, false)

	stats := decodeJSON[markov.ModelStats](t, s.do(t, http.MethodGet, "/api/model/stats"))
	assert.Equal(t, markov.ModelStats{
		Entries:        8,
		UniqueBiGrams:  11,
		TotalBiGrams:   13,
		TotalTokens:    14,
		VocabularySize: 8,
		MaxSuccessors:  4,
	}, stats)
}

func TestStatsEndpoints(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := setupTestServer(t, false)
		assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/api/stats/summary").Code)
		assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/api/stats/top_words").Code)
	})

	t.Run("requests are recorded", func(t *testing.T) {
		s := setupTestServer(t, true)
		s.do(t, http.MethodGet, "/api/generate?word=the")
		s.do(t, http.MethodGet, "/api/next?word=the")
		s.do(t, http.MethodGet, "/api/generate?word=zebra")

		summary := decodeJSON[StatsSummary](t, s.do(t, http.MethodGet, "/api/stats/summary"))
		assert.Equal(t, StatsSummary{TotalRequests: 3, UnknownRequests: 1, UniqueWords: 2}, summary)

		top := decodeJSON[[]WordStats](t, s.do(t, http.MethodGet, "/api/stats/top_words?limit=1"))
		require.Len(t, top, 1)
		assert.Equal(t, "the", top[0].Word)
		assert.Equal(t, int64(2), top[0].TotalHits)

		assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/stats/top_words?limit=0").Code)
	})
}

func TestServerEndpoints(t *testing.T) {
	s := setupTestServer(t, false)

	t.Run("health", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/health").Code)
	})

	t.Run("health ignores bad keys", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, s.doWithKey(t, http.MethodGet, "/api/health", "not-a-key").Code)
	})

	t.Run("version", func(t *testing.T) {
		info := decodeJSON[VersionInfo](t, s.do(t, http.MethodGet, "/api/server/version"))
		assert.Equal(t, VersionInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}, info)
	})

	t.Run("shutdown requires POST", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodGet, "/api/server/shutdown").Code)
	})

	t.Run("shutdown refused without configured keys", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/server/shutdown")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, s.actionChan)
	})
}

func TestShutdownAuthentication(t *testing.T) {
	const (
		controlKey = "bigram_control"
		readKey    = "bigram_read"
		masterKey  = "bigram_master"
	)
	keys := []APIKey{
		{KeyHash: hashAPIKey(controlKey), Scopes: []string{scopeServerControl}, Description: "ops"},
		{KeyHash: hashAPIKey(readKey), Scopes: []string{"stats:read"}},
		{KeyHash: hashAPIKey(masterKey), Scopes: []string{scopeMaster}},
	}

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantAction bool
	}{
		{"anonymous", "", http.StatusUnauthorized, false},
		{"unknown key", "bigram_guess", http.StatusUnauthorized, false},
		{"missing scope", readKey, http.StatusForbidden, false},
		{"control scope", controlKey, http.StatusAccepted, true},
		{"master scope", masterKey, http.StatusAccepted, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServerWithKeys(t, false, keys)
			rec := s.doWithKey(t, http.MethodPost, "/api/server/shutdown", tt.key)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantAction {
				require.Len(t, s.actionChan, 1)
				assert.Equal(t, actionShutdown, <-s.actionChan)
			} else {
				assert.Empty(t, s.actionChan)
			}
		})
	}

	t.Run("malformed header", func(t *testing.T) {
		s := setupTestServerWithKeys(t, false, keys)
		req := httptest.NewRequest(http.MethodPost, "/api/server/shutdown", nil)
		req.Header.Set("Authorization", "Basic "+controlKey)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, s.actionChan)
	})

	t.Run("repeated requests do not block", func(t *testing.T) {
		s := setupTestServerWithKeys(t, false, keys)
		for range 5 {
			rec := s.doWithKey(t, http.MethodPost, "/api/server/shutdown", controlKey)
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}
		assert.Len(t, s.actionChan, 1)
	})

	t.Run("open endpoints stay open", func(t *testing.T) {
		s := setupTestServerWithKeys(t, false, keys)
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/next?word=sat").Code)
		assert.Equal(t, http.StatusOK, s.doWithKey(t, http.MethodGet, "/api/next?word=sat", readKey).Code)
	})

	t.Run("whoami", func(t *testing.T) {
		s := setupTestServerWithKeys(t, false, keys)
		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me").Code)

		resp := decodeJSON[map[string]any](t, s.doWithKey(t, http.MethodGet, "/api/auth/me", controlKey))
		assert.Equal(t, "ops", resp["description"])
		assert.Equal(t, []any{scopeServerControl}, resp["scopes"])
	})
}

func TestHashAPIKey(t *testing.T) {
	key, err := generateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "bigram_"))
	assert.Len(t, hashAPIKey(key), 64)
	assert.Equal(t, hashAPIKey(key), hashAPIKey(key))

	other, err := generateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
