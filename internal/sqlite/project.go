package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
)

// EnsureProject returns the project with slug, creating it when absent.
func (s *MailStore) EnsureProject(ctx context.Context, slug, humanKey string) (mail.Project, error) {
	if err := mail.ValidateName(slug); err != nil {
		return mail.Project{}, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	if humanKey == "" {
		humanKey = slug
	}

	var proj mail.Project
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects (slug, human_key, created_ts) VALUES (?, ?, ?) ON CONFLICT(slug) DO NOTHING`,
			slug, humanKey, s.db.now())
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT id, slug, human_key, created_ts FROM projects WHERE slug = ?`, slug,
		).Scan(&proj.ID, &proj.Slug, &proj.HumanKey, &proj.CreatedTS)
	})
	if err != nil {
		return mail.Project{}, storeErr(ctx, "failed to ensure project", err)
	}
	return proj, nil
}

// GetProject retrieves a project by ID
func (s *MailStore) GetProject(ctx context.Context, id int64) (mail.Project, error) {
	var proj mail.Project
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`SELECT id, slug, human_key, created_ts FROM projects WHERE id = ?`, id,
		).Scan(&proj.ID, &proj.Slug, &proj.HumanKey, &proj.CreatedTS)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return mail.Project{}, repository.ErrNotFound
	}
	if err != nil {
		return mail.Project{}, storeErr(ctx, "failed to get project", err)
	}
	return proj, nil
}

// ListProjects returns all projects, oldest first.
func (s *MailStore) ListProjects(ctx context.Context) ([]mail.Project, error) {
	var projects []mail.Project
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT id, slug, human_key, created_ts FROM projects ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p mail.Project
			if err := rows.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedTS); err != nil {
				return err
			}
			projects = append(projects, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, storeErr(ctx, "failed to list projects", err)
	}
	return projects, nil
}

// RegisterAgent creates an agent in a project, or returns the existing one with
// its task description updated.
func (s *MailStore) RegisterAgent(ctx context.Context, projectID int64, name, taskDescription string) (mail.Agent, error) {
	if err := mail.ValidateName(name); err != nil {
		return mail.Agent{}, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}

	var agent mail.Agent
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (project_id, name, task_description, created_ts)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(project_id, name) DO UPDATE SET task_description = excluded.task_description
		`, projectID, name, taskDescription, s.db.now())
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT id, project_id, name, task_description, created_ts
			FROM agents WHERE project_id = ? AND name = ?
		`, projectID, name).Scan(&agent.ID, &agent.ProjectID, &agent.Name, &agent.TaskDescription, &agent.CreatedTS)
	})
	if err != nil {
		return mail.Agent{}, storeErr(ctx, "failed to register agent", err)
	}
	return agent, nil
}

// GetAgent retrieves an agent by project and name.
func (s *MailStore) GetAgent(ctx context.Context, projectID int64, name string) (mail.Agent, error) {
	var agent mail.Agent
	err := s.db.withConn(ctx, func(conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `
			SELECT id, project_id, name, task_description, created_ts
			FROM agents WHERE project_id = ? AND name = ?
		`, projectID, name).Scan(&agent.ID, &agent.ProjectID, &agent.Name, &agent.TaskDescription, &agent.CreatedTS)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return mail.Agent{}, repository.ErrNotFound
	}
	if err != nil {
		return mail.Agent{}, storeErr(ctx, "failed to get agent", err)
	}
	return agent, nil
}
