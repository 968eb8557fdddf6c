package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
)

// trafficLoggingMiddleware logs protocol traffic at debug level. Only
// argument names are logged; record content and credentials never reach the
// log, and the API key appears in masked form only.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}

			maskedKey := ""
			if creds, ok := catalog.CredentialsFromContext(ctx); ok && creds.APIKey != "" {
				maskedKey = anydb.MaskKey(creds.APIKey)
			}
			logger.Debug("mcp traffic",
				"direction", direction,
				"stage", "request",
				"method", method,
				"session_id", safeSessionID(req),
				"api_key", maskedKey,
				"params", paramSummary(safeParams(req)),
			)

			result, err := next(ctx, method, req)
			if !strings.HasPrefix(method, "notifications/") {
				logger.Debug("mcp traffic",
					"direction", direction,
					"stage", "response",
					"method", method,
					"session_id", safeSessionID(req),
					"error", err,
				)
			}

			return result, err
		}
	}
}

func safeSessionID(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	defer func() { recover() }()
	session := req.GetSession()
	if session == nil {
		return ""
	}
	defer func() { recover() }()
	return session.ID()
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}

// paramSummary renders the top-level field names of a params payload, never
// the values.
func paramSummary(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Sprintf("%T", payload)
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
