package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/search"
)

// ExplorerRepository implements explorer.Store for SQLite
type ExplorerRepository struct {
	db *DB
}

// NewExplorerRepository creates a new ExplorerRepository
func NewExplorerRepository(db *DB) *ExplorerRepository {
	return &ExplorerRepository{db: db}
}

// ResolveAgent returns every (project, agent) pair named name.
func (r *ExplorerRepository) ResolveAgent(ctx context.Context, name string, projectID *int64) ([]explorer.AgentRef, error) {
	query := `SELECT project_id, id FROM agents WHERE name = ?`
	args := []any{name}
	if projectID != nil {
		query += ` AND project_id = ?`
		args = append(args, *projectID)
	}
	query += ` ORDER BY project_id, id`

	var refs []explorer.AgentRef
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ref explorer.AgentRef
			if err := rows.Scan(&ref.ProjectID, &ref.AgentID); err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storeErr(ctx, "failed to resolve agent", err)
	}
	return refs, nil
}

// MaxMessageID returns the newest message id, zero when empty.
func (r *ExplorerRepository) MaxMessageID(ctx context.Context) (int64, error) {
	var wm int64
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		wm, err = watermark(ctx, conn, "messages", 0)
		return err
	})
	if err != nil {
		return 0, storeErr(ctx, "failed to read snapshot", err)
	}
	return wm, nil
}

// sideClauses returns the identity and facet predicates for one side.
// Outbound rows carry no recipient state, so recipient-state filters match
// nothing there.
func sideClauses(ref explorer.AgentRef, side explorer.Direction, f explorer.Filter) ([]string, []any) {
	var clauses []string
	var args []any
	if side == explorer.DirectionInbound {
		clauses = append(clauses, "r.agent_id = ?", "m.project_id = ?")
	} else {
		clauses = append(clauses, "m.sender_id = ?", "m.project_id = ?")
	}
	args = append(args, ref.AgentID, ref.ProjectID)

	if f.SnapshotID > 0 {
		clauses = append(clauses, "m.id <= ?")
		args = append(args, f.SnapshotID)
	}
	if len(f.Importance) > 0 {
		clauses = append(clauses, fmt.Sprintf("m.importance IN (%s)", placeholders(len(f.Importance))))
		for _, imp := range f.Importance {
			args = append(args, imp)
		}
	}

	inbound := side == explorer.DirectionInbound
	switch f.Ack {
	case explorer.AckPending:
		clauses = append(clauses, "m.ack_required = 1")
		if inbound {
			clauses = append(clauses, "r.ack_ts IS NULL")
		} else {
			clauses = append(clauses, "0")
		}
	case explorer.AckAcknowledged:
		clauses = append(clauses, "m.ack_required = 1")
		if inbound {
			clauses = append(clauses, "r.ack_ts IS NOT NULL")
		} else {
			clauses = append(clauses, "0")
		}
	case explorer.AckUnread:
		if inbound {
			clauses = append(clauses, "r.read_ts IS NULL")
		} else {
			clauses = append(clauses, "0")
		}
	}

	if f.Text != "" {
		pattern := "%" + search.LikeEscape(f.Text) + "%"
		clauses = append(clauses, `(m.subject LIKE ? ESCAPE '\' OR m.body LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	return clauses, args
}

// Count returns the distinct messages on side for ref under f.
func (r *ExplorerRepository) Count(ctx context.Context, ref explorer.AgentRef, side explorer.Direction, f explorer.Filter) (int, error) {
	clauses, args := sideClauses(ref, side, f)
	from := "messages m"
	if side == explorer.DirectionInbound {
		from = "message_recipients r JOIN messages m ON m.id = r.message_id"
	}
	query := "SELECT COUNT(DISTINCT m.id) FROM " + from + where(clauses)

	var n int
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, storeErr(ctx, "failed to count "+string(side)+" messages", err)
	}
	return n, nil
}

const entryColumns = `
	m.id, m.project_id, p.slug, COALESCE(s.name, ''),
	COALESCE((SELECT GROUP_CONCAT(name, ',') FROM (
		SELECT DISTINCT ra.name FROM message_recipients mr
		JOIN agents ra ON ra.id = mr.agent_id
		WHERE mr.message_id = m.id ORDER BY ra.name
	)), ''),
	m.subject, m.body, m.thread_id, m.importance, m.ack_required, m.created_ts`

// Fetch returns up to limit entries on side for ref, newest first.
func (r *ExplorerRepository) Fetch(ctx context.Context, ref explorer.AgentRef, side explorer.Direction, f explorer.Filter, limit int) ([]explorer.Entry, error) {
	clauses, args := sideClauses(ref, side, f)
	inbound := side == explorer.DirectionInbound

	var b strings.Builder
	b.WriteString("SELECT" + entryColumns)
	if inbound {
		b.WriteString(", r.kind, r.read_ts, r.ack_ts FROM message_recipients r JOIN messages m ON m.id = r.message_id")
	} else {
		b.WriteString(" FROM messages m")
	}
	b.WriteString(" JOIN projects p ON p.id = m.project_id LEFT JOIN agents s ON s.id = m.sender_id")
	b.WriteString(where(clauses))
	b.WriteString(" ORDER BY m.created_ts DESC, m.id DESC LIMIT ?")
	args = append(args, limit)

	var entries []explorer.Entry
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, b.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e := explorer.Entry{Direction: side}
			var thread, kind sql.NullString
			var readTS, ackTS sql.NullInt64
			dest := []any{&e.MessageID, &e.ProjectID, &e.ProjectSlug, &e.SenderName, &e.ToAgents,
				&e.Subject, &e.Body, &thread, &e.Importance, &e.AckRequired, &e.CreatedTS}
			if inbound {
				dest = append(dest, &kind, &readTS, &ackTS)
			}
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("failed to scan explorer row: %w", err)
			}
			if thread.Valid {
				e.ThreadID = &thread.String
			}
			if kind.Valid {
				e.Kind = &kind.String
			}
			if readTS.Valid {
				e.ReadTS = &readTS.Int64
			}
			if ackTS.Valid {
				e.AckTS = &ackTS.Int64
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storeErr(ctx, "failed to fetch "+string(side)+" messages", err)
	}
	return entries, nil
}
