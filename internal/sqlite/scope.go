package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
)

// ScopeRepository builds visibility contexts from stored policies, contacts
// and recipients.
type ScopeRepository struct {
	db               *DB
	redactRestricted bool
}

// NewScopeRepository creates a ScopeRepository. When redactRestricted is set,
// loaded contexts redact restricted same-project messages instead of denying
// them.
func NewScopeRepository(db *DB, redactRestricted bool) *ScopeRepository {
	return &ScopeRepository{db: db, redactRestricted: redactRestricted}
}

// RedactsRestricted reports whether loaded contexts redact restricted rows.
func (r *ScopeRepository) RedactsRestricted() bool {
	return r.redactRestricted
}

// LoadScope returns the context for viewer over messageIDs. Expired policies
// and contacts are ignored.
func (r *ScopeRepository) LoadScope(ctx context.Context, viewer scope.Viewer, messageIDs []int64) (scope.Context, error) {
	v := viewer
	out := scope.Context{
		Viewer:           &v,
		ViewerProjectIDs: []int64{viewer.ProjectID},
		RecipientMap:     map[int64][]int64{},
		RedactRestricted: r.redactRestricted,
	}
	now := r.db.now()

	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT project_id, agent_id FROM approved_contacts
			WHERE viewer_project_id = ? AND viewer_agent_id = ?
			AND (expires_ts IS NULL OR expires_ts > ?)
			ORDER BY project_id, agent_id
		`, viewer.ProjectID, viewer.AgentID, now)
		if err != nil {
			return err
		}
		for rows.Next() {
			var k scope.ContactKey
			if err := rows.Scan(&k.ProjectID, &k.AgentID); err != nil {
				rows.Close()
				return err
			}
			out.ApprovedContacts = append(out.ApprovedContacts, k)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(messageIDs) == 0 {
			return nil
		}
		ids := make([]any, len(messageIDs))
		for i, id := range messageIDs {
			ids[i] = id
		}
		in := placeholders(len(ids))

		args := append([]any{now}, ids...)
		rows, err = conn.QueryContext(ctx, fmt.Sprintf(`
			SELECT cp.project_id, cp.agent_id, cp.policy FROM contact_policies cp
			WHERE (cp.expires_ts IS NULL OR cp.expires_ts > ?)
			AND EXISTS (
				SELECT 1 FROM messages m
				WHERE m.id IN (%s) AND m.project_id = cp.project_id AND m.sender_id = cp.agent_id
			)
			ORDER BY cp.project_id, cp.agent_id
		`, in), args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var sp scope.SenderPolicy
			var policy string
			if err := rows.Scan(&sp.ProjectID, &sp.AgentID, &policy); err != nil {
				rows.Close()
				return err
			}
			sp.Policy = mail.ParseContactPolicy(policy)
			out.SenderPolicies = append(out.SenderPolicies, sp)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		args = append([]any{viewer.AgentID}, ids...)
		rows, err = conn.QueryContext(ctx, fmt.Sprintf(`
			SELECT message_id, agent_id FROM message_recipients
			WHERE agent_id = ? AND message_id IN (%s)
		`, in), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var mid, aid int64
			if err := rows.Scan(&mid, &aid); err != nil {
				return err
			}
			out.RecipientMap[mid] = append(out.RecipientMap[mid], aid)
		}
		return rows.Err()
	})
	if err != nil {
		return scope.Context{}, storeErr(ctx, "failed to load scope", err)
	}
	return out, nil
}

// ResolveViewer finds the agent named name in projectID.
func (r *ScopeRepository) ResolveViewer(ctx context.Context, projectID int64, name string) (scope.Viewer, error) {
	agent, err := NewMailStore(r.db).GetAgent(ctx, projectID, name)
	if err != nil {
		return scope.Viewer{}, err
	}
	return scope.Viewer{ProjectID: agent.ProjectID, AgentID: agent.ID}, nil
}

// MessageResult loads one message as a search result for scope checks.
func (r *ScopeRepository) MessageResult(ctx context.Context, id int64) (mail.SearchResult, error) {
	var c struct {
		id, pid, sender, ts int64
		name, subject, body string
		thread, importance  string
		ack                 bool
	}
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT"+candidateColumns+" WHERE m.id = ?", id).Scan(
			&c.id, &c.pid, &c.sender, &c.name, &c.subject, &c.body, &c.thread, &c.importance, &c.ack, &c.ts)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return mail.SearchResult{}, fmt.Errorf("message %d: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return mail.SearchResult{}, storeErr(ctx, "failed to load message", err)
	}
	res := mail.SearchResult{
		DocKind:     mail.DocMessage,
		ID:          c.id,
		ProjectID:   &c.pid,
		Title:       c.subject,
		Body:        c.body,
		Importance:  c.importance,
		AckRequired: &c.ack,
		CreatedTS:   &c.ts,
		SenderID:    &c.sender,
	}
	if c.name != "" {
		res.FromAgent = &c.name
	}
	if c.thread != "" {
		res.ThreadID = &c.thread
	}
	return res, nil
}
