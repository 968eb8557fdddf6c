package rest

import (
	"net/http"
	"strings"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
)

const (
	headerAPIKey       = "X-Api-Key"
	headerEmail        = "X-User-Email"
	headerServiceToken = "X-Service-Token"
)

// AuthMiddleware enforces service-level authentication against a static token
// list. The token grants access to this service; it is unrelated to the AnyDB
// credentials forwarded on the caller's behalf.
func AuthMiddleware(tokens []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		allowed[token] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				token = r.Header.Get(headerServiceToken)
			}
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[token]; !ok {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credentialsMiddleware attaches per-call AnyDB credentials from the request
// headers, falling back to the configured defaults.
func credentialsMiddleware(defaults anydb.Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := defaults
			if key := r.Header.Get(headerAPIKey); key != "" {
				creds.APIKey = key
			}
			if email := r.Header.Get(headerEmail); email != "" {
				creds.Email = email
			}
			ctx := catalog.WithCredentials(r.Context(), creds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
