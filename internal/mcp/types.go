package mcp

import (
	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/telemetry"
)

type PingInput struct{}

type PingOutput struct {
	Status string `json:"status"`
	Viewer string `json:"viewer"`
}

type SearchMessagesInput struct {
	ViewerProjectID *int64 `json:"viewer_project_id,omitempty" jsonschema:"operator only: project of the agent to evaluate visibility for"`
	ViewerAgent     string `json:"viewer_agent,omitempty" jsonschema:"operator only: agent name to evaluate visibility for"`

	Query         string   `json:"query,omitempty" jsonschema:"free text; empty lists recent messages"`
	DocKind       string   `json:"doc_kind,omitempty" jsonschema:"message (default), agent or project"`
	ProjectID     *int64   `json:"project_id,omitempty" jsonschema:"restrict to one project"`
	Importance    []string `json:"importance,omitempty" jsonschema:"any of low, normal, high, urgent"`
	ThreadID      string   `json:"thread_id,omitempty"`
	AckRequired   *bool    `json:"ack_required,omitempty"`
	MinTS         *int64   `json:"min_ts,omitempty" jsonschema:"lower created_ts bound in microseconds"`
	MaxTS         *int64   `json:"max_ts,omitempty" jsonschema:"upper created_ts bound in microseconds"`
	Ranking       string   `json:"ranking,omitempty" jsonschema:"relevance (default) or recency"`
	Engine        string   `json:"engine,omitempty" jsonschema:"legacy, lexical or hybrid"`
	Limit         int      `json:"limit,omitempty" jsonschema:"page size, default 50, max 1000"`
	Cursor        string   `json:"cursor,omitempty" jsonschema:"next_cursor from the previous page"`
	Explain       bool     `json:"explain,omitempty"`
	ScopePushdown bool     `json:"scope_pushdown,omitempty" jsonschema:"prefilter candidates with the visibility clause"`
	StrictRedact  bool     `json:"strict_redaction,omitempty" jsonschema:"also hide sender and thread of redacted results"`
}

type SearchMessagesOutput struct {
	Results     []scope.Scoped      `json:"results"`
	NextCursor  string              `json:"next_cursor,omitempty"`
	Explain     *search.Explain     `json:"explain,omitempty"`
	Audit       *scope.AuditSummary `json:"audit,omitempty"`
	SQLRowCount int                 `json:"sql_row_count"`
}

type ExploreMailboxInput struct {
	AgentName        string   `json:"agent_name" jsonschema:"agent whose mailbox to list"`
	ProjectID        *int64   `json:"project_id,omitempty" jsonschema:"restrict to one project; omitted means every project with that agent name"`
	Direction        string   `json:"direction,omitempty" jsonschema:"all (default), inbound or outbound"`
	Sort             string   `json:"sort,omitempty" jsonschema:"date_desc (default), date_asc, importance_desc or agent_alpha"`
	Group            string   `json:"group,omitempty" jsonschema:"none (default), project, thread or agent"`
	AckFilter        string   `json:"ack_filter,omitempty" jsonschema:"all (default), pending_ack, acknowledged or unread"`
	ImportanceFilter []string `json:"importance_filter,omitempty"`
	TextFilter       string   `json:"text_filter,omitempty" jsonschema:"substring of subject or body"`
	Limit            int      `json:"limit,omitempty"`
	Offset           int      `json:"offset,omitempty" jsonschema:"rows to skip, at most 100000"`
	SnapshotID       int64    `json:"snapshot_id,omitempty" jsonschema:"snapshot_id from the first page, keeps offsets stable"`
}

type ExploreMailboxOutput struct {
	Entries    []explorer.Entry `json:"entries"`
	Groups     []explorer.Group `json:"groups,omitempty"`
	TotalCount int              `json:"total_count"`
	Stats      explorer.Stats   `json:"stats"`
	SnapshotID int64            `json:"snapshot_id"`
}

type CheckScopeInput struct {
	ViewerProjectID *int64 `json:"viewer_project_id,omitempty" jsonschema:"operator only: project of the agent to evaluate visibility for"`
	ViewerAgent     string `json:"viewer_agent,omitempty" jsonschema:"operator only: agent name to evaluate visibility for"`

	MessageID int64 `json:"message_id"`
}

type CheckScopeOutput struct {
	MessageID   int64         `json:"message_id"`
	Verdict     scope.Verdict `json:"verdict"`
	Reason      scope.Reason  `json:"reason"`
	Explanation string        `json:"explanation"`
}

type QueryStatsInput struct{}

type QueryStatsOutput struct {
	Queries []telemetry.QueryStats `json:"queries"`
}
