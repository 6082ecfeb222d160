package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/telemetry"
)

type toolHandlers struct {
	svc    Services
	logger *slog.Logger
}

func registerTools(server *sdkmcp.Server, svc Services, logger *slog.Logger) {
	h := &toolHandlers{svc: svc, logger: logger}
	readOnly := &sdkmcp.ToolAnnotations{ReadOnlyHint: true}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "ping",
		Description: "Check connectivity and report which identity requests run as.",
		Annotations: readOnly,
	}, h.ping)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name: "search_messages",
		Description: "Search messages, agents or projects. Results pass through visibility rules for the calling agent; " +
			"denied results are dropped and counted in the audit summary. Page with next_cursor.",
		Annotations: readOnly,
	}, h.searchMessages)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name: "explore_mailbox",
		Description: "List an agent's inbound and outbound messages across every project that agent name appears in, " +
			"with exact inbound/outbound counts, page stats and optional grouping. Page with offset and snapshot_id.",
		Annotations: readOnly,
	}, h.exploreMailbox)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "check_scope",
		Description: "Explain whether the calling agent may see one message, and why.",
		Annotations: readOnly,
	}, h.checkScope)

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "query_stats",
		Description: "Report aggregated timings for search and explorer queries served by this process.",
		Annotations: readOnly,
	}, h.queryStats)
}

// callerViewer returns the viewer a request is scoped to, or nil for the
// operator. Operators may name a viewer in tool input.
func (h *toolHandlers) callerViewer(ctx context.Context, projectID *int64, agent string) (*scope.Viewer, error) {
	id := getIdentity(ctx)
	agent = strings.TrimSpace(agent)
	if id.keyBound {
		if agent != "" || projectID != nil {
			return nil, &APIError{Code: CodeUnauthorized, Message: "viewer is fixed by the API key", RecoveryHint: "Omit viewer_agent and viewer_project_id"}
		}
		return id.viewer, nil
	}
	if agent == "" {
		if projectID != nil {
			return nil, &APIError{Code: CodeInvalidInput, Message: "viewer_project_id requires viewer_agent"}
		}
		return id.viewer, nil
	}
	if projectID == nil {
		return nil, &APIError{Code: CodeInvalidInput, Message: "viewer_agent requires viewer_project_id"}
	}
	v, err := h.svc.Scope.ResolveViewer(ctx, *projectID, agent)
	if err != nil {
		return nil, mapError(fmt.Errorf("viewer %q: %w", agent, err))
	}
	return &v, nil
}

func (h *toolHandlers) ping(ctx context.Context, _ *sdkmcp.CallToolRequest, _ PingInput) (*sdkmcp.CallToolResult, PingOutput, error) {
	return nil, PingOutput{Status: "pong", Viewer: describeViewer(getIdentity(ctx))}, nil
}

func (h *toolHandlers) searchMessages(ctx context.Context, _ *sdkmcp.CallToolRequest, in SearchMessagesInput) (*sdkmcp.CallToolResult, SearchMessagesOutput, error) {
	viewer, err := h.callerViewer(ctx, in.ViewerProjectID, in.ViewerAgent)
	if err != nil {
		return nil, SearchMessagesOutput{}, err
	}

	q, opts, err := buildSearch(in)
	if err != nil {
		return nil, SearchMessagesOutput{}, mapError(err)
	}
	opts.Viewer = viewer

	resp, err := h.svc.Search.Execute(ctx, q, opts)
	if err != nil {
		h.logger.Warn("search failed", "request_id", getRequestID(ctx), "error", err)
		return nil, SearchMessagesOutput{}, mapError(err)
	}
	out := SearchMessagesOutput{
		Results:     resp.Results,
		NextCursor:  resp.NextCursor,
		Explain:     resp.Explain,
		Audit:       resp.Audit,
		SQLRowCount: resp.SQLRowCount,
	}
	if out.Results == nil {
		out.Results = []scope.Scoped{}
	}
	return nil, out, nil
}

func buildSearch(in SearchMessagesInput) (search.Query, search.Options, error) {
	kind, ok := mail.ParseDocKind(in.DocKind)
	if !ok {
		return search.Query{}, search.Options{}, fmt.Errorf("%w: unknown doc kind %q", search.ErrInvalidQuery, in.DocKind)
	}
	ranking, err := search.ParseRanking(in.Ranking)
	if err != nil {
		return search.Query{}, search.Options{}, err
	}
	engine, err := search.ParseEngine(in.Engine)
	if err != nil {
		return search.Query{}, search.Options{}, err
	}
	importance := make([]mail.Importance, 0, len(in.Importance))
	for _, s := range in.Importance {
		imp, ok := mail.ParseImportance(s)
		if !ok {
			return search.Query{}, search.Options{}, fmt.Errorf("%w: unknown importance %q", search.ErrInvalidQuery, s)
		}
		importance = append(importance, imp)
	}

	q := search.Query{
		Text:        in.Query,
		DocKind:     kind,
		ProjectID:   in.ProjectID,
		Importance:  importance,
		ThreadID:    in.ThreadID,
		AckRequired: in.AckRequired,
		TimeRange:   search.TimeRange{MinTS: in.MinTS, MaxTS: in.MaxTS},
		Ranking:     ranking,
		Limit:       in.Limit,
		Cursor:      in.Cursor,
		Explain:     in.Explain,
	}
	opts := search.Options{
		TrackTelemetry: true,
		Engine:         engine,
		ScopePushdown:  in.ScopePushdown,
	}
	if in.StrictRedact {
		p := scope.StrictRedactionPolicy()
		opts.Redaction = &p
	}
	return q, opts, nil
}

func (h *toolHandlers) exploreMailbox(ctx context.Context, _ *sdkmcp.CallToolRequest, in ExploreMailboxInput) (*sdkmcp.CallToolResult, ExploreMailboxOutput, error) {
	q := explorer.Query{
		AgentName:        in.AgentName,
		ProjectID:        in.ProjectID,
		Direction:        explorer.Direction(strings.ToLower(in.Direction)),
		Sort:             explorer.Sort(strings.ToLower(in.Sort)),
		Group:            explorer.GroupMode(strings.ToLower(in.Group)),
		AckFilter:        explorer.AckFilter(strings.ToLower(in.AckFilter)),
		ImportanceFilter: in.ImportanceFilter,
		TextFilter:       in.TextFilter,
		Limit:            in.Limit,
		Offset:           in.Offset,
		SnapshotID:       in.SnapshotID,
	}

	// A key-bound viewer may only explore its own mailbox.
	if id := getIdentity(ctx); id.keyBound {
		v, err := h.svc.Scope.ResolveViewer(ctx, id.viewer.ProjectID, strings.TrimSpace(in.AgentName))
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, ExploreMailboxOutput{}, mapError(err)
		}
		if err != nil || v.AgentID != id.viewer.AgentID {
			return nil, ExploreMailboxOutput{}, &APIError{Code: CodeUnauthorized, Message: "API key may only explore its own mailbox"}
		}
		pid := id.viewer.ProjectID
		q.ProjectID = &pid
	}

	page, err := h.svc.Explorer.Fetch(ctx, q)
	if err != nil {
		h.logger.Warn("explore failed", "request_id", getRequestID(ctx), "error", err)
		return nil, ExploreMailboxOutput{}, mapError(err)
	}
	return nil, ExploreMailboxOutput{
		Entries:    page.Entries,
		Groups:     page.Groups,
		TotalCount: page.TotalCount,
		Stats:      page.Stats,
		SnapshotID: page.SnapshotID,
	}, nil
}

func (h *toolHandlers) checkScope(ctx context.Context, _ *sdkmcp.CallToolRequest, in CheckScopeInput) (*sdkmcp.CallToolResult, CheckScopeOutput, error) {
	viewer, err := h.callerViewer(ctx, in.ViewerProjectID, in.ViewerAgent)
	if err != nil {
		return nil, CheckScopeOutput{}, err
	}
	res, err := h.svc.Scope.MessageResult(ctx, in.MessageID)
	if err != nil {
		return nil, CheckScopeOutput{}, mapError(fmt.Errorf("message %d: %w", in.MessageID, err))
	}

	sc := scope.Operator()
	if viewer != nil {
		if sc, err = h.svc.Scope.LoadScope(ctx, *viewer, []int64{res.ID}); err != nil {
			return nil, CheckScopeOutput{}, mapError(err)
		}
	}
	d := scope.Evaluate(res, sc)
	return nil, CheckScopeOutput{
		MessageID:   res.ID,
		Verdict:     d.Verdict,
		Reason:      d.Reason,
		Explanation: d.Explanation(),
	}, nil
}

func (h *toolHandlers) queryStats(ctx context.Context, _ *sdkmcp.CallToolRequest, _ QueryStatsInput) (*sdkmcp.CallToolResult, QueryStatsOutput, error) {
	out := QueryStatsOutput{Queries: []telemetry.QueryStats{}}
	if h.svc.Stats != nil {
		out.Queries = h.svc.Stats.Snapshot()
	}
	return nil, out, nil
}
