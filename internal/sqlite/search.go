package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/search"
)

// SearchRepository implements search.Store for SQLite
type SearchRepository struct {
	db *DB
}

// NewSearchRepository creates a new SearchRepository
func NewSearchRepository(db *DB) *SearchRepository {
	return &SearchRepository{db: db}
}

const candidateColumns = `
	m.id, m.project_id, m.sender_id, COALESCE(a.name, ''), m.subject, m.body,
	COALESCE(m.thread_id, ''), m.importance, m.ack_required, m.created_ts
FROM messages m
LEFT JOIN agents a ON a.id = m.sender_id`

// placeholders returns n comma-separated bind markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// filterClauses translates facets into predicates over messages aliased m.
func filterClauses(f search.MessageFilter) ([]string, []any) {
	var clauses []string
	var args []any
	if f.ProjectID != nil {
		clauses = append(clauses, "m.project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if len(f.Importance) > 0 {
		clauses = append(clauses, fmt.Sprintf("m.importance IN (%s)", placeholders(len(f.Importance))))
		for _, imp := range f.Importance {
			args = append(args, imp)
		}
	}
	if f.ThreadID != "" {
		clauses = append(clauses, "m.thread_id = ?")
		args = append(args, f.ThreadID)
	}
	if f.AckRequired != nil {
		clauses = append(clauses, "m.ack_required = ?")
		args = append(args, *f.AckRequired)
	}
	if f.MinTS != nil {
		clauses = append(clauses, "m.created_ts >= ?")
		args = append(args, *f.MinTS)
	}
	if f.MaxTS != nil {
		clauses = append(clauses, "m.created_ts <= ?")
		args = append(args, *f.MaxTS)
	}
	return clauses, args
}

func likeClause(columns []string, terms []string) (string, []any) {
	var ors []string
	var args []any
	for _, term := range terms {
		pattern := "%" + search.LikeEscape(term) + "%"
		for _, col := range columns {
			ors = append(ors, col+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
	}
	return "(" + strings.Join(ors, " OR ") + ")", args
}

func watermark(ctx context.Context, conn *sql.Conn, table string, requested int64) (int64, error) {
	if requested > 0 {
		return requested, nil
	}
	var wm int64
	err := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM "+table).Scan(&wm)
	return wm, err
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// MessageCandidates returns up to req.Cap matching messages at or below the
// watermark, newest id first, plus the facet-only universe size.
func (r *SearchRepository) MessageCandidates(ctx context.Context, req search.CandidateRequest) (search.CandidateSet, error) {
	var set search.CandidateSet
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		wm, err := watermark(ctx, conn, "messages", req.Watermark)
		if err != nil {
			return err
		}
		set.Watermark = wm

		clauses, args := filterClauses(req.Filter)
		clauses = append([]string{"m.id <= ?"}, clauses...)
		args = append([]any{wm}, args...)
		clauses = append(clauses, req.ScopeClauses...)
		args = append(args, req.ScopeArgs...)

		countQuery := "SELECT COUNT(*) FROM messages m" + where(clauses)
		if err := conn.QueryRowContext(ctx, countQuery, args...).Scan(&set.Universe); err != nil {
			return err
		}

		switch req.Mode {
		case search.MatchFTS:
			clauses = append(clauses, "m.id IN (SELECT rowid FROM messages_fts WHERE messages_fts MATCH ?)")
			args = append(args, req.Match)
		case search.MatchLike:
			clause, likeArgs := likeClause([]string{"m.subject", "m.body"}, req.LikeTerms)
			clauses = append(clauses, clause)
			args = append(args, likeArgs...)
		}

		query := "SELECT" + candidateColumns + where(clauses) + " ORDER BY m.id DESC"
		if req.Cap > 0 {
			query += " LIMIT ?"
			args = append(args, req.Cap)
		}
		set.SQL = query

		set.Rows, err = scanCandidates(ctx, conn, query, args)
		return err
	})
	if err != nil {
		if req.Mode == search.MatchFTS && ctx.Err() == nil && isMatchSyntax(err) {
			return search.CandidateSet{}, fmt.Errorf("%w: %v", search.ErrMatchSyntax, err)
		}
		return search.CandidateSet{}, storeErr(ctx, "failed to search messages", err)
	}
	return set, nil
}

// RecentMessages pages messages newest first with a (created_ts, id) keyset.
func (r *SearchRepository) RecentMessages(ctx context.Context, req search.RecentRequest) (search.CandidateSet, error) {
	var set search.CandidateSet
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		wm, err := watermark(ctx, conn, "messages", req.Watermark)
		if err != nil {
			return err
		}
		set.Watermark = wm

		clauses, args := filterClauses(req.Filter)
		clauses = append([]string{"m.id <= ?"}, clauses...)
		args = append([]any{wm}, args...)
		clauses = append(clauses, req.ScopeClauses...)
		args = append(args, req.ScopeArgs...)
		if req.AfterTS != nil {
			clauses = append(clauses, "(m.created_ts < ? OR (m.created_ts = ? AND m.id < ?))")
			args = append(args, *req.AfterTS, *req.AfterTS, req.AfterID)
		}

		query := "SELECT" + candidateColumns + where(clauses) + " ORDER BY m.created_ts DESC, m.id DESC LIMIT ?"
		args = append(args, req.Limit)
		set.SQL = query

		set.Rows, err = scanCandidates(ctx, conn, query, args)
		set.Universe = len(set.Rows)
		return err
	})
	if err != nil {
		return search.CandidateSet{}, storeErr(ctx, "failed to list recent messages", err)
	}
	return set, nil
}

func scanCandidates(ctx context.Context, conn *sql.Conn, query string, args []any) ([]search.Candidate, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []search.Candidate
	for rows.Next() {
		var c search.Candidate
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.SenderID, &c.SenderName, &c.Subject, &c.Body,
			&c.ThreadID, &c.Importance, &c.AckRequired, &c.CreatedTS); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Entities searches agents (name, task description) or projects (slug, human
// key) by substring, newest first.
func (r *SearchRepository) Entities(ctx context.Context, req search.EntityRequest) (search.EntitySet, error) {
	var table, alias string
	var columns []string
	switch req.Kind {
	case mail.DocAgent:
		table, alias = "agents", "a"
		columns = []string{"a.name", "a.task_description"}
	case mail.DocProject:
		table, alias = "projects", "p"
		columns = []string{"p.slug", "p.human_key"}
	default:
		return search.EntitySet{}, fmt.Errorf("%w: entity kind %q", search.ErrInvalidQuery, req.Kind)
	}

	var set search.EntitySet
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		wm, err := watermark(ctx, conn, table, req.Watermark)
		if err != nil {
			return err
		}
		set.Watermark = wm

		clauses := []string{alias + ".id <= ?"}
		args := []any{wm}
		if req.ProjectID != nil {
			if req.Kind == mail.DocAgent {
				clauses = append(clauses, "a.project_id = ?")
			} else {
				clauses = append(clauses, "p.id = ?")
			}
			args = append(args, *req.ProjectID)
		}
		if len(req.Terms) > 0 {
			clause, likeArgs := likeClause(columns, req.Terms)
			clauses = append(clauses, clause)
			args = append(args, likeArgs...)
		}
		if req.AfterTS != nil {
			clauses = append(clauses, fmt.Sprintf("(%[1]s.created_ts < ? OR (%[1]s.created_ts = ? AND %[1]s.id < ?))", alias))
			args = append(args, *req.AfterTS, *req.AfterTS, req.AfterID)
		}

		var query string
		if req.Kind == mail.DocAgent {
			query = "SELECT a.id, a.project_id, a.name, a.task_description, a.created_ts FROM agents a"
		} else {
			query = "SELECT p.id, p.id, p.slug, p.human_key, p.created_ts FROM projects p"
		}
		query += where(clauses) + fmt.Sprintf(" ORDER BY %[1]s.created_ts DESC, %[1]s.id DESC LIMIT ?", alias)
		args = append(args, req.Limit)
		set.SQL = query

		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id, pid, ts int64
			var title, body string
			if err := rows.Scan(&id, &pid, &title, &body, &ts); err != nil {
				return fmt.Errorf("failed to scan %s: %w", req.Kind, err)
			}
			set.Rows = append(set.Rows, mail.SearchResult{
				DocKind:   req.Kind,
				ID:        id,
				ProjectID: &pid,
				Title:     title,
				Body:      body,
				CreatedTS: &ts,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return search.EntitySet{}, storeErr(ctx, "failed to search entities", err)
	}
	return set, nil
}
