package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/telemetry"
)

const DefaultCandidateCap = 1000

// Config holds service defaults.
type Config struct {
	Engine       Engine
	DefaultLimit int
	CandidateCap int
}

// Options tune one Execute call.
type Options struct {
	// Scope, when set, is applied to the page as given.
	Scope *scope.Context
	// Viewer, when set without Scope, has its context loaded for the page.
	Viewer    *scope.Viewer
	Redaction *scope.RedactionPolicy
	// TrackTelemetry records the query duration under "search".
	TrackTelemetry bool
	Engine         Engine
	// ScopePushdown adds the scope pre-filter to the candidate read.
	ScopePushdown bool
}

// Explain describes how a query was served.
type Explain struct {
	Method           string   `json:"method"`
	Engine           Engine   `json:"engine,omitempty"`
	NormalizedQuery  string   `json:"normalized_query,omitempty"`
	UsedLikeFallback bool     `json:"used_like_fallback"`
	FacetCount       int      `json:"facet_count"`
	FacetsApplied    []string `json:"facets_applied"`
	CandidateCount   int      `json:"candidate_count"`
	Watermark        int64    `json:"watermark"`
	SQL              string   `json:"sql,omitempty"`
}

// Response is an unscoped page.
type Response struct {
	Results    []mail.SearchResult `json:"results"`
	NextCursor string              `json:"next_cursor,omitempty"`
	Explain    *Explain            `json:"explain,omitempty"`
}

// ScopedResponse is a page after visibility rules.
type ScopedResponse struct {
	Results     []scope.Scoped      `json:"results"`
	NextCursor  string              `json:"next_cursor,omitempty"`
	Explain     *Explain            `json:"explain,omitempty"`
	Audit       *scope.AuditSummary `json:"audit,omitempty"`
	SQLRowCount int                 `json:"sql_row_count"`
}

// Service executes search queries.
type Service struct {
	store    Store
	loader   ScopeLoader
	recorder telemetry.Recorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService creates a search service. loader and recorder may be nil.
func NewService(store Store, loader ScopeLoader, recorder telemetry.Recorder, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineLegacy
	}
	if cfg.CandidateCap <= 0 {
		cfg.CandidateCap = DefaultCandidateCap
	}
	return &Service{store: store, loader: loader, recorder: recorder, logger: logger, cfg: cfg, now: time.Now}
}

// ExecuteSimple runs q on the default engine without visibility rules.
func (s *Service) ExecuteSimple(ctx context.Context, q Query) (Response, error) {
	p, err := s.run(ctx, q, s.cfg.Engine, nil, nil)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Results: p.results, NextCursor: p.next}
	if q.Explain {
		resp.Explain = p.explain
	}
	return resp, nil
}

// Execute runs q with opts. When a scope context or viewer is supplied, the
// page passes through scope.Apply and carries an audit summary.
func (s *Service) Execute(ctx context.Context, q Query, opts Options) (ScopedResponse, error) {
	if opts.TrackTelemetry {
		defer telemetry.Start(s.recorder, "search").Stop()
	}

	engine := opts.Engine
	if engine == "" {
		engine = s.cfg.Engine
	}

	scopeCtx := opts.Scope
	var clauses []string
	var args []any
	if opts.ScopePushdown {
		pre := scopeCtx
		if pre == nil && opts.Viewer != nil {
			pre = &scope.Context{Viewer: opts.Viewer}
			if r, ok := s.loader.(restrictedRedactor); ok {
				pre.RedactRestricted = r.RedactsRestricted()
			}
		}
		// Redactable rows are restricted senders, which the pre-filter drops.
		if pre != nil && !pre.RedactRestricted {
			clauses, args = scope.BuildSQLClauses(*pre, s.now().UnixMicro())
		}
	}

	p, err := s.run(ctx, q, engine, clauses, args)
	if err != nil {
		return ScopedResponse{}, err
	}

	resp := ScopedResponse{NextCursor: p.next, SQLRowCount: len(p.results)}
	if q.Explain {
		resp.Explain = p.explain
	}

	if scopeCtx == nil && opts.Viewer != nil {
		if s.loader == nil {
			return ScopedResponse{}, fmt.Errorf("%w: viewer given without a scope loader", ErrInvalidQuery)
		}
		ids := make([]int64, 0, len(p.results))
		for _, r := range p.results {
			if r.DocKind == mail.DocMessage {
				ids = append(ids, r.ID)
			}
		}
		loaded, err := s.loader.LoadScope(ctx, *opts.Viewer, ids)
		if err != nil {
			return ScopedResponse{}, s.storeErr(ctx, "load scope", err)
		}
		scopeCtx = &loaded
	}

	if scopeCtx == nil {
		resp.Results = make([]scope.Scoped, len(p.results))
		for i, r := range p.results {
			resp.Results[i] = scope.Scoped{Result: r, Decision: scope.Decision{Verdict: scope.Allow, Reason: scope.ReasonOperatorMode}}
		}
		return resp, nil
	}

	policy := scope.DefaultRedactionPolicy()
	if opts.Redaction != nil {
		policy = *opts.Redaction
	}
	visible, audit := scope.Apply(p.results, *scopeCtx, policy)
	resp.Results = visible
	resp.Audit = &audit
	return resp, nil
}

// page is one ranked, cursor-sliced result set before scoping.
type page struct {
	results []mail.SearchResult
	next    string
	explain *Explain
}

func (s *Service) run(ctx context.Context, q Query, engine Engine, clauses []string, args []any) (page, error) {
	if err := q.validate(); err != nil {
		return page{}, err
	}
	if err := repository.CheckContext(ctx); err != nil {
		return page{}, err
	}

	var cur *Cursor
	if q.Cursor != "" {
		c, err := DecodeCursor(q.Cursor)
		if err != nil {
			return page{}, err
		}
		cur = &c
	}

	facets := q.facets()
	if facets == nil {
		facets = []string{}
	}
	explain := &Explain{FacetCount: len(facets), FacetsApplied: facets}
	limit := q.EffectiveLimit()
	if q.Limit <= 0 && s.cfg.DefaultLimit > 0 {
		limit = min(s.cfg.DefaultLimit, MaxLimit)
	}

	text := strings.TrimSpace(q.Text)

	if q.kind() != mail.DocMessage {
		return s.runEntities(ctx, q, text, cur, limit, explain)
	}

	if text == "" {
		return s.runRecent(ctx, q, cur, limit, clauses, args, explain)
	}

	relevance := q.ranking() == RankingRelevance
	if cur != nil && cur.Relevance != relevance {
		return page{}, fmt.Errorf("%w: cursor does not match ranking mode", ErrInvalidCursor)
	}

	req := CandidateRequest{
		Filter:       q.filter(),
		Cap:          s.cfg.CandidateCap,
		ScopeClauses: clauses,
		ScopeArgs:    args,
	}
	if cur != nil {
		req.Watermark = cur.Watermark
	}

	match := SanitizeMatch(text)
	var terms []term
	var set CandidateSet
	var err error
	if match != "" {
		explain.NormalizedQuery = match
		req.Mode = MatchFTS
		req.Match = match
		set, err = s.store.MessageCandidates(ctx, req)
		if errors.Is(err, ErrMatchSyntax) {
			s.logger.Debug("match rejected, falling back to substring search", "query", match, "error", err)
			match = ""
			err = nil
		}
		if err != nil {
			return page{}, s.storeErr(ctx, "search candidates", err)
		}
		terms = parseTerms(match)
	}
	if match == "" {
		like := LikeTerms(text, MaxLikeTerms)
		if len(like) == 0 {
			explain.Method = "empty"
			return page{results: []mail.SearchResult{}, explain: explain}, nil
		}
		explain.UsedLikeFallback = true
		explain.NormalizedQuery = strings.Join(like, " ")
		req.Mode = MatchLike
		req.Match = ""
		req.LikeTerms = like
		set, err = s.store.MessageCandidates(ctx, req)
		if err != nil {
			return page{}, s.storeErr(ctx, "like candidates", err)
		}
		terms = parseTerms(strings.Join(like, " "))
	}
	if err := repository.CheckContext(ctx); err != nil {
		return page{}, err
	}

	explain.CandidateCount = len(set.Rows)
	explain.Watermark = set.Watermark
	explain.SQL = set.SQL

	var ordered []rankedRow
	if relevance {
		explain.Engine = engine
		ranked, method := rank(engine, set.Rows, terms, set.Universe)
		explain.Method = method
		if req.Mode == MatchLike {
			explain.Method = "like_fallback"
		}
		ordered = make([]rankedRow, len(ranked))
		for i, r := range ranked {
			ordered[i] = rankedRow{c: set.Rows[r.idx], score: r.score, scored: true}
		}
	} else {
		explain.Method = "recency"
		if req.Mode == MatchLike {
			explain.Method = "like_fallback"
		}
		ordered = make([]rankedRow, len(set.Rows))
		for i, c := range set.Rows {
			ordered[i] = rankedRow{c: c}
		}
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := ordered[i].c, ordered[j].c
			if a.CreatedTS != b.CreatedTS {
				return a.CreatedTS > b.CreatedTS
			}
			return a.ID > b.ID
		})
	}

	if cur != nil {
		kept := ordered[:0]
		for _, r := range ordered {
			if cur.after(r.score, r.c.CreatedTS, r.c.ID) {
				kept = append(kept, r)
			}
		}
		ordered = kept
	}

	p := page{explain: explain}
	n := min(limit, len(ordered))
	p.results = make([]mail.SearchResult, n)
	for i := 0; i < n; i++ {
		p.results[i] = ordered[i].result()
	}
	if len(ordered) > n && n > 0 {
		last := ordered[n-1]
		p.next = Cursor{
			Watermark: set.Watermark,
			Relevance: relevance,
			Score:     last.score,
			TS:        last.c.CreatedTS,
			ID:        last.c.ID,
		}.Encode()
	}
	return p, nil
}

func (s *Service) runRecent(ctx context.Context, q Query, cur *Cursor, limit int, clauses []string, args []any, explain *Explain) (page, error) {
	if cur != nil && cur.Relevance {
		return page{}, fmt.Errorf("%w: cursor does not match ranking mode", ErrInvalidCursor)
	}
	req := RecentRequest{
		Filter:       q.filter(),
		Limit:        limit + 1,
		ScopeClauses: clauses,
		ScopeArgs:    args,
	}
	if cur != nil {
		ts := cur.TS
		req.Watermark = cur.Watermark
		req.AfterTS = &ts
		req.AfterID = cur.ID
	}
	set, err := s.store.RecentMessages(ctx, req)
	if err != nil {
		return page{}, s.storeErr(ctx, "recent messages", err)
	}
	if err := repository.CheckContext(ctx); err != nil {
		return page{}, err
	}

	explain.Method = "filter_only"
	explain.CandidateCount = len(set.Rows)
	explain.Watermark = set.Watermark
	explain.SQL = set.SQL

	rows := set.Rows
	p := page{explain: explain}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		p.next = Cursor{Watermark: set.Watermark, TS: last.CreatedTS, ID: last.ID}.Encode()
	}
	p.results = make([]mail.SearchResult, len(rows))
	for i, c := range rows {
		p.results[i] = rankedRow{c: c}.result()
	}
	return p, nil
}

func (s *Service) runEntities(ctx context.Context, q Query, text string, cur *Cursor, limit int, explain *Explain) (page, error) {
	if cur != nil && cur.Relevance {
		return page{}, fmt.Errorf("%w: cursor does not match ranking mode", ErrInvalidCursor)
	}
	req := EntityRequest{Kind: q.kind(), ProjectID: q.ProjectID, Limit: limit + 1}
	explain.Method = "filter_only"
	if text != "" {
		req.Terms = LikeTerms(text, MaxLikeTerms)
		if len(req.Terms) == 0 {
			explain.Method = "empty"
			return page{results: []mail.SearchResult{}, explain: explain}, nil
		}
		explain.Method = "like_fallback"
		explain.UsedLikeFallback = true
		explain.NormalizedQuery = strings.Join(req.Terms, " ")
	}
	if cur != nil {
		ts := cur.TS
		req.Watermark = cur.Watermark
		req.AfterTS = &ts
		req.AfterID = cur.ID
	}
	set, err := s.store.Entities(ctx, req)
	if err != nil {
		return page{}, s.storeErr(ctx, "entities", err)
	}
	if err := repository.CheckContext(ctx); err != nil {
		return page{}, err
	}
	explain.CandidateCount = len(set.Rows)
	explain.Watermark = set.Watermark
	explain.SQL = set.SQL

	rows := set.Rows
	p := page{explain: explain}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		var ts int64
		if last.CreatedTS != nil {
			ts = *last.CreatedTS
		}
		p.next = Cursor{Watermark: set.Watermark, TS: ts, ID: last.ID}.Encode()
	}
	p.results = rows
	return p, nil
}

func (s *Service) storeErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !repository.IsCanceled(err) {
		return repository.Canceled(ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rankedRow struct {
	c      Candidate
	score  float64
	scored bool
}

func (r rankedRow) result() mail.SearchResult {
	c := r.c
	pid := c.ProjectID
	sender := c.SenderID
	ack := c.AckRequired
	ts := c.CreatedTS
	out := mail.SearchResult{
		DocKind:     mail.DocMessage,
		ID:          c.ID,
		ProjectID:   &pid,
		Title:       c.Subject,
		Body:        c.Body,
		Importance:  c.Importance,
		AckRequired: &ack,
		CreatedTS:   &ts,
		SenderID:    &sender,
	}
	if c.SenderName != "" {
		name := c.SenderName
		out.FromAgent = &name
	}
	if c.ThreadID != "" {
		thread := c.ThreadID
		out.ThreadID = &thread
	}
	if r.scored {
		score := r.score
		out.Score = &score
	}
	return out
}
