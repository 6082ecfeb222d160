package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `mailscope searches and browses agent mail across projects, applying visibility rules per calling agent.

Core concepts:
- Project: a workspace; agents are registered per project, and the same agent name may exist in several projects.
- Message: sent by one agent to recipients (to/cc/bcc) inside a project, optionally threaded.
- Viewer: the agent a request is evaluated for. API keys bind a viewer; operator keys and stdio see everything
  unless a viewer is named with viewer_project_id + viewer_agent.
- Visibility: sender, recipients and approved contacts always see a message; otherwise the sender's contact policy
  (open, auto, contacts_only, block_all) and project membership decide.

Tools:
1) search_messages: ranked full-text search with facets; denied results are dropped and counted in audit.
   Empty query lists recent messages. Keep next_cursor to page; pages are stable under concurrent inserts.
2) explore_mailbox: one agent's inbound/outbound mail across projects with exact counts and grouping.
   Pass snapshot_id from the first page back with later offsets.
3) check_scope: explains the verdict for one message id.
4) query_stats: query timings for this process.

Docs:
- mailscope://docs/index
- mailscope://docs/scope
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "mailscope://docs/index",
		Name:        "docs_index",
		Title:       "mailscope docs index",
		Description: "Entry point: which tool to use for what, paging rules and known limitations.",
		Content: `# mailscope: Agent Docs Index

## Finding messages

- ` + "`search_messages`" + ` with ` + "`query`" + ` ranks by relevance (default) or recency.
  Plain words are OR-joined; write AND / OR / NOT in upper case for explicit boolean queries,
  "quotes" for phrases and a trailing * for prefixes.
- Facets: ` + "`project_id`" + `, ` + "`importance`" + `, ` + "`thread_id`" + `, ` + "`ack_required`" + `, ` + "`min_ts`" + `/` + "`max_ts`" + `.
- ` + "`doc_kind`" + ` agent or project searches names and descriptions instead of messages.
- ` + "`explain: true`" + ` reports the method used (legacy_rank, lexical_bm25, hybrid_rrf, recency,
  filter_only, like_fallback, empty) and the facets applied.

## Paging

- Search: pass ` + "`next_cursor`" + ` back unchanged with the same query. A cursor from a relevance query
  cannot be used for a recency query.
- Explorer: keep ` + "`limit`" + `, advance ` + "`offset`" + `, and pass the first page's ` + "`snapshot_id`" + `.

## Browsing a mailbox

- ` + "`explore_mailbox`" + ` lists one agent name across every project it appears in. Each project's agent is
  queried separately; identities are never merged.
- ` + "`stats.inbound_count`" + ` and ` + "`stats.outbound_count`" + ` are exact. Other stats are computed over the
  rows fetched for the page and are lower bounds when the mailbox is larger than ` + "`offset + limit`" + `.
- ` + "`ack_filter`" + ` pending_ack, acknowledged and unread only match inbound rows.

## Errors

Tool errors start with a code: INVALID_INPUT, INVALID_CURSOR, NOT_FOUND, POOL_TIMEOUT (retry shortly),
CANCELED (retry with a longer deadline), UNAUTHORIZED.

See ` + "`mailscope://docs/scope`" + ` for visibility rules.
`,
	},
	{
		URI:         "mailscope://docs/scope",
		Name:        "docs_scope",
		Title:       "Visibility rules",
		Description: "How search results are allowed, redacted or denied for a viewer.",
		Content: `# Visibility rules

Each message result is evaluated for the viewer in this order; the first rule that applies decides.

1. No viewer (operator): allow.
2. Agent and project results: allow.
3. Viewer is a recipient: allow.
4. Sender unknown: project membership decides.
5. Viewer is the sender: allow.
6. Viewer has an unexpired approved contact with the sender: allow.
7. Sender policy:
   - open: allow inside the viewer's projects, deny across projects.
   - contacts_only / block_all: deny. Servers configured to redact restricted senders redact instead
     when the viewer belongs to the message's project.
8. Otherwise (auto or no policy): allow inside the viewer's projects, deny across projects.

Expired policies count as auto. Expired approvals are ignored.

## Redaction

A redacted result keeps its id and metadata; the body is replaced with a placeholder. With
` + "`strict_redaction`" + ` the sender and thread are hidden too. Every redacted or denied result
appears in ` + "`audit.entries`" + ` with a reason and an explanation, in result order.

## Pushdown

` + "`scope_pushdown`" + ` adds a coarse visibility clause to the database query so fewer rows are ranked. It
never changes which results are returned, only ` + "`sql_row_count`" + `.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
