package mcp

import (
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
)

// Config contains server configuration.
type Config struct {
	Dispatcher *catalog.Dispatcher
	// DefaultCredentials are used when a call carries no credential headers,
	// the single-tenant fallback mode.
	DefaultCredentials anydb.Credentials
	// AuthTokens guard access to this service itself in HTTP mode. Empty
	// disables service auth.
	AuthTokens    []string
	TransportMode string // "stdio" or "http"
	DocsPath      string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "anydb-mcp",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server, cfg.DocsPath, cfg.Logger)

	// Stdio mode is local-only: no service auth, ever.
	if cfg.TransportMode != "stdio" && len(cfg.AuthTokens) > 0 {
		server.AddReceivingMiddleware(serviceAuthMiddleware(cfg.AuthTokens))
	}
	server.AddReceivingMiddleware(credentialsMiddleware(cfg.DefaultCredentials))
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Dispatcher)

	return server
}
