package testserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/mcp"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/testserver"
)

type world struct {
	ts    *testserver.TestServer
	blue  mail.Agent // alpha
	green mail.Agent // alpha
	gold  mail.Agent // beta
	beta  mail.Project
}

func seed(t *testing.T, opts testserver.Options) world {
	t.Helper()
	ctx := context.Background()
	ts := testserver.New(t, opts)

	alpha, err := ts.Store.EnsureProject(ctx, "alpha", "/work/alpha")
	require.NoError(t, err)
	beta, err := ts.Store.EnsureProject(ctx, "beta", "/work/beta")
	require.NoError(t, err)

	w := world{ts: ts, beta: beta}
	w.blue, err = ts.Store.RegisterAgent(ctx, alpha.ID, "BlueLake", "")
	require.NoError(t, err)
	w.green, err = ts.Store.RegisterAgent(ctx, alpha.ID, "GreenCastle", "")
	require.NoError(t, err)
	w.gold, err = ts.Store.RegisterAgent(ctx, beta.ID, "GoldFinch", "")
	require.NoError(t, err)

	send := func(from, to mail.Agent, subject string) {
		_, err := ts.Store.SendMessage(ctx, mail.Message{
			ProjectID: from.ProjectID,
			SenderID:  from.ID,
			Subject:   subject,
			Body:      subject + " details",
		}, []mail.Recipient{{AgentID: to.ID, Kind: mail.RecipientTo}})
		require.NoError(t, err)
	}
	send(w.blue, w.green, "deploy window tonight")
	send(w.green, w.blue, "deploy checklist")
	send(w.gold, w.gold, "deploy in beta")
	return w
}

func call(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func text(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode[T any](t *testing.T, res *sdkmcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, "tool error: %s", text(res))
	var out T
	require.NoError(t, json.Unmarshal([]byte(text(res)), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})
	resp, err := http.Get(ts.Server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))
}

func TestAuth_RejectsMissingAndUnknownTokens(t *testing.T) {
	w := seed(t, testserver.Options{AuthEnabled: true})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, token := range []string{"", "msk_unknown"} {
		session := w.ts.Connect(t, token)
		_, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "search_messages", Arguments: map[string]any{"query": "deploy"}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unauthorized")
	}
}

func TestSearch_ScopedToKeyViewer(t *testing.T) {
	w := seed(t, testserver.Options{AuthEnabled: true})
	token := w.ts.AddAPIKey(t, &scope.Viewer{ProjectID: w.green.ProjectID, AgentID: w.green.ID})
	session := w.ts.Connect(t, token)

	out := decode[mcp.SearchMessagesOutput](t, call(t, session, "search_messages", map[string]any{"query": "deploy", "explain": true}))
	require.Len(t, out.Results, 2)
	for _, r := range out.Results {
		require.Equal(t, w.green.ProjectID, *r.Result.ProjectID)
	}
	require.Equal(t, 3, out.Audit.TotalBefore)
	require.Equal(t, 1, out.Audit.DeniedCount)
	require.Equal(t, scope.ReasonCrossProjectDenied, out.Audit.Entries[0].Reason)
	require.Equal(t, "legacy_rank", out.Explain.Method)

	res := call(t, session, "search_messages", map[string]any{"query": "deploy", "viewer_agent": "GoldFinch", "viewer_project_id": w.beta.ID})
	require.True(t, res.IsError)
	require.Contains(t, text(res), mcp.CodeUnauthorized)
}

func TestSearch_OperatorKeySeesEverything(t *testing.T) {
	w := seed(t, testserver.Options{AuthEnabled: true})
	session := w.ts.Connect(t, w.ts.AddAPIKey(t, nil))

	out := decode[mcp.SearchMessagesOutput](t, call(t, session, "search_messages", map[string]any{"query": "deploy"}))
	require.Len(t, out.Results, 3)
	require.Nil(t, out.Audit)

	// Operators may evaluate as any agent.
	out = decode[mcp.SearchMessagesOutput](t, call(t, session, "search_messages", map[string]any{
		"query":             "deploy",
		"viewer_agent":      "GoldFinch",
		"viewer_project_id": w.beta.ID,
		"scope_pushdown":    true,
	}))
	require.Len(t, out.Results, 1)
	require.Equal(t, "deploy in beta", out.Results[0].Result.Title)
}

func TestExplore_KeyViewerLimitedToOwnMailbox(t *testing.T) {
	w := seed(t, testserver.Options{AuthEnabled: true})
	token := w.ts.AddAPIKey(t, &scope.Viewer{ProjectID: w.blue.ProjectID, AgentID: w.blue.ID})
	session := w.ts.Connect(t, token)

	page := decode[mcp.ExploreMailboxOutput](t, call(t, session, "explore_mailbox", map[string]any{"agent_name": "BlueLake"}))
	require.Equal(t, 2, page.TotalCount)
	require.Equal(t, 1, page.Stats.InboundCount)
	require.Equal(t, 1, page.Stats.OutboundCount)
	require.Positive(t, page.SnapshotID)

	res := call(t, session, "explore_mailbox", map[string]any{"agent_name": "GreenCastle"})
	require.True(t, res.IsError)
	require.Contains(t, text(res), mcp.CodeUnauthorized)
}

func TestCheckScopeAndStats(t *testing.T) {
	w := seed(t, testserver.Options{})
	session := w.ts.Connect(t, "")

	out := decode[mcp.CheckScopeOutput](t, call(t, session, "check_scope", map[string]any{
		"message_id":        3,
		"viewer_agent":      "BlueLake",
		"viewer_project_id": w.blue.ProjectID,
	}))
	require.Equal(t, scope.Deny, out.Verdict)

	decode[mcp.SearchMessagesOutput](t, call(t, session, "search_messages", map[string]any{"query": "deploy"}))
	decode[mcp.ExploreMailboxOutput](t, call(t, session, "explore_mailbox", map[string]any{"agent_name": "GoldFinch"}))

	stats := decode[mcp.QueryStatsOutput](t, call(t, session, "query_stats", map[string]any{}))
	names := []string{}
	for _, q := range stats.Queries {
		names = append(names, q.Name)
	}
	require.Equal(t, []string{"mail_explorer", "search"}, names)
}
