package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
)

// MailStore writes and reads projects, agents, messages and contact rules.
type MailStore struct {
	db *DB
}

// NewMailStore creates a new MailStore
func NewMailStore(db *DB) *MailStore {
	return &MailStore{db: db}
}

// SendMessage inserts a message and its recipients in one transaction. A zero
// CreatedTS is filled from the store clock.
func (s *MailStore) SendMessage(ctx context.Context, msg mail.Message, recipients []mail.Recipient) (mail.Message, error) {
	if msg.Importance == "" {
		msg.Importance = mail.ImportanceNormal
	}
	if imp, ok := mail.ParseImportance(string(msg.Importance)); ok {
		msg.Importance = imp
	}
	if err := mail.ValidateMessage(msg); err != nil {
		return mail.Message{}, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	if err := mail.ValidateRecipients(recipients); err != nil {
		return mail.Message{}, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	if msg.CreatedTS == 0 {
		msg.CreatedTS = s.db.now()
	}

	var thread any
	if msg.ThreadID != "" {
		thread = msg.ThreadID
	}

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (project_id, sender_id, subject, body, thread_id, importance, ack_required, created_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, msg.ProjectID, msg.SenderID, msg.Subject, msg.Body, thread, string(msg.Importance), msg.AckRequired, msg.CreatedTS)
		if err != nil {
			return err
		}
		if msg.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		for _, r := range recipients {
			kind := r.Kind
			if kind == "" {
				kind = mail.RecipientTo
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO message_recipients (message_id, agent_id, kind) VALUES (?, ?, ?)`,
				msg.ID, r.AgentID, string(kind)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mail.Message{}, storeErr(ctx, "failed to send message", err)
	}
	return msg, nil
}

// GetMessage retrieves a message by ID
func (s *MailStore) GetMessage(ctx context.Context, id int64) (mail.Message, error) {
	var msg mail.Message
	var thread sql.NullString
	var importance string
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `
			SELECT id, project_id, sender_id, subject, body, thread_id, importance, ack_required, created_ts
			FROM messages WHERE id = ?
		`, id).Scan(&msg.ID, &msg.ProjectID, &msg.SenderID, &msg.Subject, &msg.Body, &thread, &importance, &msg.AckRequired, &msg.CreatedTS)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return mail.Message{}, repository.ErrNotFound
	}
	if err != nil {
		return mail.Message{}, storeErr(ctx, "failed to get message", err)
	}
	msg.ThreadID = thread.String
	msg.Importance = mail.Importance(importance)
	return msg, nil
}

// MarkRead stamps read_ts for one recipient if not already set.
func (s *MailStore) MarkRead(ctx context.Context, messageID, agentID int64) error {
	return s.stampRecipient(ctx, "read_ts", messageID, agentID)
}

// Acknowledge stamps ack_ts (and read_ts when unset) for one recipient.
func (s *MailStore) Acknowledge(ctx context.Context, messageID, agentID int64) error {
	if err := s.stampRecipient(ctx, "ack_ts", messageID, agentID); err != nil {
		return err
	}
	return s.stampRecipient(ctx, "read_ts", messageID, agentID)
}

func (s *MailStore) stampRecipient(ctx context.Context, column string, messageID, agentID int64) error {
	query := fmt.Sprintf(`UPDATE message_recipients SET %[1]s = COALESCE(%[1]s, ?) WHERE message_id = ? AND agent_id = ?`, column)
	var affected int64
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, s.db.now(), messageID, agentID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return storeErr(ctx, "failed to update recipient", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetContactPolicy records a sender's visibility policy. expiresTS of zero
// means no expiry.
func (s *MailStore) SetContactPolicy(ctx context.Context, projectID, agentID int64, policy string, expiresTS int64) error {
	var expires any
	if expiresTS > 0 {
		expires = expiresTS
	}
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO contact_policies (project_id, agent_id, policy, expires_ts) VALUES (?, ?, ?, ?)
			ON CONFLICT(project_id, agent_id) DO UPDATE SET policy = excluded.policy, expires_ts = excluded.expires_ts
		`, projectID, agentID, policy, expires)
		return err
	})
	return storeErr(ctx, "failed to set contact policy", err)
}

// ApproveContact lets the viewer agent see messages from the sender agent.
// expiresTS of zero means no expiry.
func (s *MailStore) ApproveContact(ctx context.Context, viewerProjectID, viewerAgentID, senderProjectID, senderAgentID, expiresTS int64) error {
	var expires any
	if expiresTS > 0 {
		expires = expiresTS
	}
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO approved_contacts (viewer_project_id, viewer_agent_id, project_id, agent_id, expires_ts, created_ts)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(viewer_project_id, viewer_agent_id, project_id, agent_id) DO UPDATE SET expires_ts = excluded.expires_ts
		`, viewerProjectID, viewerAgentID, senderProjectID, senderAgentID, expires, s.db.now())
		return err
	})
	return storeErr(ctx, "failed to approve contact", err)
}
