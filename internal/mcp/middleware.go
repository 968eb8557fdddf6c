package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
)

const (
	headerAPIKey = "X-Api-Key"
	headerEmail  = "X-User-Email"
)

// serviceAuthMiddleware guards access to this service itself with a static
// bearer token. This is separate from the AnyDB credentials forwarded on the
// caller's behalf.
func serviceAuthMiddleware(tokens []string) sdkmcp.Middleware {
	allowed := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		allowed[token] = struct{}{}
	}
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				token = extra.Header.Get("X-Service-Token")
			}
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}
			if _, ok := allowed[token]; !ok {
				return nil, fmt.Errorf("unauthorized: invalid token")
			}

			return next(ctx, method, req)
		}
	}
}

// credentialsMiddleware attaches per-call AnyDB credentials to the context:
// the X-Api-Key / X-User-Email headers when present (HTTP transport), the
// configured defaults otherwise (stdio, single-tenant mode). Presence is not
// enforced here; the gateway fails fast before any network call.
func credentialsMiddleware(defaults anydb.Credentials) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			creds := defaults
			if extra := req.GetExtra(); extra != nil && extra.Header != nil {
				if key := extra.Header.Get(headerAPIKey); key != "" {
					creds.APIKey = key
				}
				if email := extra.Header.Get(headerEmail); email != "" {
					creds.Email = email
				}
			}
			return next(catalog.WithCredentials(ctx, creds), method, req)
		}
	}
}
