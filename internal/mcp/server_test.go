package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/mcp"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/telemetry"
)

type fakeSearch struct {
	gotQuery search.Query
	gotOpts  search.Options
	resp     search.ScopedResponse
	err      error
}

func (f *fakeSearch) Execute(_ context.Context, q search.Query, opts search.Options) (search.ScopedResponse, error) {
	f.gotQuery, f.gotOpts = q, opts
	return f.resp, f.err
}

type fakeExplorer struct {
	got  explorer.Query
	page explorer.Page
	err  error
}

func (f *fakeExplorer) Fetch(_ context.Context, q explorer.Query) (explorer.Page, error) {
	f.got = q
	return f.page, f.err
}

type fakeScope struct {
	viewers  map[string]scope.Viewer
	messages map[int64]mail.SearchResult
	ctx      scope.Context
}

func (f *fakeScope) ResolveViewer(_ context.Context, projectID int64, name string) (scope.Viewer, error) {
	v, ok := f.viewers[name]
	if !ok || v.ProjectID != projectID {
		return scope.Viewer{}, repository.ErrNotFound
	}
	return v, nil
}

func (f *fakeScope) MessageResult(_ context.Context, id int64) (mail.SearchResult, error) {
	r, ok := f.messages[id]
	if !ok {
		return mail.SearchResult{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeScope) LoadScope(_ context.Context, viewer scope.Viewer, _ []int64) (scope.Context, error) {
	sc := f.ctx
	sc.Viewer = &viewer
	return sc, nil
}

type harness struct {
	search   *fakeSearch
	explorer *fakeExplorer
	scope    *fakeScope
	tracker  *telemetry.Tracker
	session  *sdkmcp.ClientSession
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pid, sender := int64(2), int64(9)
	h := &harness{
		search:   &fakeSearch{},
		explorer: &fakeExplorer{},
		scope: &fakeScope{
			viewers: map[string]scope.Viewer{"BlueLake": {ProjectID: 1, AgentID: 7}},
			messages: map[int64]mail.SearchResult{
				42: {DocKind: mail.DocMessage, ID: 42, ProjectID: &pid, SenderID: &sender, Title: "elsewhere"},
			},
			ctx: scope.Context{ViewerProjectIDs: []int64{1}},
		},
		tracker: telemetry.NewTracker(nil, 0),
	}
	server := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Search:   h.search,
			Explorer: h.explorer,
			Scope:    h.scope,
			Stats:    h.tracker,
		},
		TransportMode: "stdio",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		session.Close()
		serverSession.Close()
	})
	h.session = session
	return h
}

func (h *harness) call(t *testing.T, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if args == nil {
		args = map[string]any{}
	}
	res, err := h.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func decode[T any](t *testing.T, res *sdkmcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, "tool error: %s", resultText(res))
	var out T
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), &out))
	return out
}

func resultText(res *sdkmcp.CallToolResult) string {
	for _, c := range res.Content {
		if text, ok := c.(*sdkmcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func TestServer_ListTools(t *testing.T) {
	h := newHarness(t)
	tools, err := h.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"ping", "search_messages", "explore_mailbox", "check_scope", "query_stats"} {
		require.True(t, names[want], "missing tool %s", want)
	}

	info := h.session.InitializeResult()
	require.Equal(t, "mailscope", info.ServerInfo.Name)
}

func TestPing_RunsAsOperatorOverStdio(t *testing.T) {
	h := newHarness(t)
	out := decode[mcp.PingOutput](t, h.call(t, "ping", nil))
	require.Equal(t, "pong", out.Status)
	require.Equal(t, "operator", out.Viewer)
}

func TestSearchMessages_BuildsQuery(t *testing.T) {
	h := newHarness(t)
	h.search.resp = search.ScopedResponse{NextCursor: "abc", SQLRowCount: 3}

	out := decode[mcp.SearchMessagesOutput](t, h.call(t, "search_messages", map[string]any{
		"query":             "wal checkpoint",
		"doc_kind":          "MESSAGE",
		"importance":        []string{"High", "urgent"},
		"ranking":           "recency",
		"engine":            "hybrid",
		"limit":             5,
		"scope_pushdown":    true,
		"strict_redaction":  true,
		"viewer_project_id": 1,
		"viewer_agent":      "BlueLake",
	}))
	require.Equal(t, "abc", out.NextCursor)
	require.Equal(t, 3, out.SQLRowCount)
	require.NotNil(t, out.Results)

	q, opts := h.search.gotQuery, h.search.gotOpts
	require.Equal(t, "wal checkpoint", q.Text)
	require.Equal(t, mail.DocMessage, q.DocKind)
	require.Equal(t, []mail.Importance{mail.ImportanceHigh, mail.ImportanceUrgent}, q.Importance)
	require.Equal(t, search.RankingRecency, q.Ranking)
	require.Equal(t, 5, q.Limit)
	require.Equal(t, search.EngineHybrid, opts.Engine)
	require.True(t, opts.ScopePushdown)
	require.True(t, opts.TrackTelemetry)
	require.Equal(t, &scope.Viewer{ProjectID: 1, AgentID: 7}, opts.Viewer)
	require.Equal(t, scope.StrictRedactionPolicy(), *opts.Redaction)
}

func TestSearchMessages_OperatorWithoutViewer(t *testing.T) {
	h := newHarness(t)
	decode[mcp.SearchMessagesOutput](t, h.call(t, "search_messages", map[string]any{"query": "x"}))
	require.Nil(t, h.search.gotOpts.Viewer)
	require.Nil(t, h.search.gotOpts.Redaction)
}

func TestSearchMessages_InputErrors(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"unknown importance", map[string]any{"importance": []string{"critical"}}, mcp.CodeInvalidInput},
		{"unknown kind", map[string]any{"doc_kind": "thread"}, mcp.CodeInvalidInput},
		{"unknown engine", map[string]any{"engine": "vector"}, mcp.CodeInvalidInput},
		{"agent without project", map[string]any{"viewer_agent": "BlueLake"}, mcp.CodeInvalidInput},
		{"unknown viewer", map[string]any{"viewer_agent": "Nobody", "viewer_project_id": 1}, mcp.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.call(t, "search_messages", tt.args)
			require.True(t, res.IsError)
			require.Contains(t, resultText(res), tt.code)
		})
	}
}

func TestSearchMessages_ServiceErrorsMapped(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		err  error
		code string
	}{
		{search.ErrInvalidCursor, mcp.CodeInvalidCursor},
		{repository.ErrPoolTimeout, mcp.CodePoolTimeout},
		{repository.Canceled(context.DeadlineExceeded), mcp.CodeCanceled},
		{search.ErrInvalidQuery, mcp.CodeInvalidInput},
	}
	for _, tt := range tests {
		h.search.err = tt.err
		res := h.call(t, "search_messages", map[string]any{"query": "x"})
		require.True(t, res.IsError)
		require.Contains(t, resultText(res), tt.code)
	}
}

func TestExploreMailbox(t *testing.T) {
	h := newHarness(t)
	h.explorer.page = explorer.Page{
		Entries:    []explorer.Entry{{MessageID: 5, Subject: "hi", Direction: explorer.DirectionInbound}},
		TotalCount: 12,
		Stats:      explorer.Stats{InboundCount: 12},
		SnapshotID: 77,
	}

	out := decode[mcp.ExploreMailboxOutput](t, h.call(t, "explore_mailbox", map[string]any{
		"agent_name":        "BlueLake",
		"direction":         "Inbound",
		"sort":              "IMPORTANCE_DESC",
		"group":             "thread",
		"ack_filter":        "unread",
		"importance_filter": []string{"high"},
		"text_filter":       "100%",
		"limit":             10,
		"offset":            20,
		"snapshot_id":       70,
	}))
	require.Equal(t, 12, out.TotalCount)
	require.Equal(t, int64(77), out.SnapshotID)
	require.Len(t, out.Entries, 1)

	q := h.explorer.got
	require.Equal(t, "BlueLake", q.AgentName)
	require.Nil(t, q.ProjectID)
	require.Equal(t, explorer.DirectionInbound, q.Direction)
	require.Equal(t, explorer.Sort("importance_desc"), q.Sort)
	require.Equal(t, explorer.GroupMode("thread"), q.Group)
	require.Equal(t, explorer.AckFilter("unread"), q.AckFilter)
	require.Equal(t, []string{"high"}, q.ImportanceFilter)
	require.Equal(t, "100%", q.TextFilter)
	require.Equal(t, 20, q.Offset)
	require.Equal(t, int64(70), q.SnapshotID)

	h.explorer.err = explorer.ErrInvalidQuery
	res := h.call(t, "explore_mailbox", map[string]any{"agent_name": "BlueLake"})
	require.True(t, res.IsError)
	require.Contains(t, resultText(res), mcp.CodeInvalidInput)
}

func TestCheckScope(t *testing.T) {
	h := newHarness(t)

	out := decode[mcp.CheckScopeOutput](t, h.call(t, "check_scope", map[string]any{"message_id": 42}))
	require.Equal(t, scope.Allow, out.Verdict)
	require.Equal(t, scope.ReasonOperatorMode, out.Reason)

	out = decode[mcp.CheckScopeOutput](t, h.call(t, "check_scope", map[string]any{
		"message_id":        42,
		"viewer_project_id": 1,
		"viewer_agent":      "BlueLake",
	}))
	require.Equal(t, scope.Deny, out.Verdict)
	require.Equal(t, scope.ReasonCrossProjectDenied, out.Reason)
	require.NotEmpty(t, out.Explanation)

	res := h.call(t, "check_scope", map[string]any{"message_id": 999})
	require.True(t, res.IsError)
	require.Contains(t, resultText(res), mcp.CodeNotFound)
}

func TestQueryStats(t *testing.T) {
	h := newHarness(t)
	h.tracker.RecordQuery("search", 3*time.Millisecond)

	out := decode[mcp.QueryStatsOutput](t, h.call(t, "query_stats", nil))
	require.Len(t, out.Queries, 1)
	require.Equal(t, "search", out.Queries[0].Name)
	require.Equal(t, int64(1), out.Queries[0].Count)
}

func TestDocResources(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	list, err := h.session.ListResources(ctx, nil)
	require.NoError(t, err)
	uris := []string{}
	for _, r := range list.Resources {
		uris = append(uris, r.URI)
	}
	require.ElementsMatch(t, []string{"mailscope://docs/index", "mailscope://docs/scope"}, uris)

	res, err := h.session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "mailscope://docs/scope"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	require.Contains(t, res.Contents[0].Text, "Visibility rules")
}
