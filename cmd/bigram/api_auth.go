package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Scopes understood by the API. "*" grants all of them.
const (
	scopeMaster        = "*"
	scopeServerControl = "server:control"
)

const contextKeyPermissions = contextKey("permissions")

// APIKey is a configured API key. Only the SHA-256 hash of the raw key is
// stored in the configuration.
type APIKey struct {
	KeyHash     string   `json:"key_hash"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// Permissions holds the authentication info for a request.
type Permissions struct {
	Description string
	ScopeSet    map[string]struct{} // A set for O(1) lookups
}

func (p *Permissions) has(scope string) bool {
	if _, isMaster := p.ScopeSet[scopeMaster]; isMaster {
		return true
	}
	_, ok := p.ScopeSet[scope]
	return ok
}

// AuthAPI resolves bearer keys into permissions.
type AuthAPI struct {
	keys   map[string]*Permissions
	logger *slog.Logger
}

// NewAuthAPI indexes the configured keys by hash.
func NewAuthAPI(keys []APIKey, logger *slog.Logger) *AuthAPI {
	index := make(map[string]*Permissions, len(keys))
	for _, key := range keys {
		scopeSet := make(map[string]struct{}, len(key.Scopes))
		for _, s := range key.Scopes {
			scopeSet[s] = struct{}{}
		}
		index[strings.ToLower(key.KeyHash)] = &Permissions{Description: key.Description, ScopeSet: scopeSet}
	}
	return &AuthAPI{
		keys:   index,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
}

// Authenticate checks the "Authorization: Bearer <key>" header. Requests
// without it continue anonymously and only reach the open endpoints; a key
// that matches no configured hash is rejected outright.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || apiKey == "" {
			respondWithError(w, http.StatusUnauthorized, "Malformed Authorization header")
			return
		}
		perms, found := a.keys[hashAPIKey(apiKey)]
		if !found {
			a.logger.Warn("Rejected unknown API key", "request_id", requestID(r))
			respondWithError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyPermissions, perms)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}

	scopes := make([]string, 0, len(perms.ScopeSet))
	for s := range perms.ScopeSet {
		scopes = append(scopes, s)
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"description": perms.Description,
		"scopes":      scopes,
	})
}

// requireScope answers 401 for anonymous requests and 403 for keys lacking
// scope. It reports whether the handler may proceed.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="bigram"`)
		respondWithError(w, http.StatusUnauthorized, fmt.Sprintf("Unauthorized: requires an API key with '%s' scope", scope))
		return false
	}
	if !perms.has(scope) {
		respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
		return false
	}
	return true
}

func generateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "bigram_" + hex.EncodeToString(bytes), nil
}

func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}
