// Package testserver runs the full HTTP stack over a temporary database for
// end-to-end tests.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/mcp"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/sqlite"
	"github.com/rpggio/mailscope/internal/telemetry"
)

type TestServer struct {
	Server  *httptest.Server
	DB      *sqlite.DB
	Store   *sqlite.MailStore
	Keys    *sqlite.APIKeyRepository
	Tracker *telemetry.Tracker
}

// Options configure the stack under test.
type Options struct {
	AuthEnabled      bool
	RedactRestricted bool
	Engine           search.Engine
}

func New(t *testing.T, opts Options) *TestServer {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "mailscope.db"), sqlite.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	tracker := telemetry.NewTracker(nil, 0)
	scopeRepo := sqlite.NewScopeRepository(db, opts.RedactRestricted)
	searchSvc := search.NewService(sqlite.NewSearchRepository(db), scopeRepo, tracker, nil, search.Config{Engine: opts.Engine})
	explorerSvc := explorer.NewService(sqlite.NewExplorerRepository(db), tracker, nil)
	keys := sqlite.NewAPIKeyRepository(db)

	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Search:   searchSvc,
			Explorer: explorerSvc,
			Scope:    scopeRepo,
			Stats:    tracker,
		},
		Resolver:      keys,
		AuthEnabled:   opts.AuthEnabled,
		TransportMode: "http",
	})
	httpServer := httptest.NewServer(mcp.NewHTTPHandler(server, mcp.HTTPOptions{}))

	ts := &TestServer{
		Server:  httpServer,
		DB:      db,
		Store:   sqlite.NewMailStore(db),
		Keys:    keys,
		Tracker: tracker,
	}

	t.Cleanup(func() {
		httpServer.Close()
		_ = db.Close()
	})

	return ts
}

// AddAPIKey issues a token for viewer; nil issues an operator token.
func (ts *TestServer) AddAPIKey(t *testing.T, viewer *scope.Viewer) string {
	t.Helper()
	token, err := ts.Keys.CreateAPIKey(context.Background(), viewer, t.Name())
	require.NoError(t, err)
	return token
}

// Connect opens an MCP client session that sends token as a bearer header.
// An empty token sends no header.
func (ts *TestServer) Connect(t *testing.T, token string) *sdkmcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	transport := &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearerTransport{token: token, base: http.DefaultTransport}},
	}
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		session.Close()
		cancel()
	})
	return session
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (b bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if b.token != "" {
		r = r.Clone(r.Context())
		r.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.base.RoundTrip(r)
}
