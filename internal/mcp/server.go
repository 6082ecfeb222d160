package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/telemetry"
)

// SearchService defines search operations needed by MCP.
type SearchService interface {
	Execute(ctx context.Context, q search.Query, opts search.Options) (search.ScopedResponse, error)
}

// ExplorerService defines mailbox explorer operations needed by MCP.
type ExplorerService interface {
	Fetch(ctx context.Context, q explorer.Query) (explorer.Page, error)
}

// ScopeService resolves viewers and loads what check_scope evaluates.
type ScopeService interface {
	ResolveViewer(ctx context.Context, projectID int64, name string) (scope.Viewer, error)
	MessageResult(ctx context.Context, id int64) (mail.SearchResult, error)
	LoadScope(ctx context.Context, viewer scope.Viewer, messageIDs []int64) (scope.Context, error)
}

// StatsSource reports aggregated query timings.
type StatsSource interface {
	Snapshot() []telemetry.QueryStats
}

// Services contains all domain services needed by MCP.
type Services struct {
	Search   SearchService
	Explorer ExplorerService
	Scope    ScopeService
	// Stats is optional; query_stats reports nothing without it.
	Stats StatsSource
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      ViewerResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
	Version       string
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "mailscope",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is local and always runs as the operator.
	auth := operatorMiddleware()
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		auth = authMiddleware(cfg.Resolver)
	}
	// The first middleware runs outermost.
	server.AddReceivingMiddleware(requestIDMiddleware(), auth, trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.Logger)

	return server
}
