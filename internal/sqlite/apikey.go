package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
)

// DefaultTouchInterval is how stale last_used_ts may get before a resolve
// rewrites it.
const DefaultTouchInterval = time.Minute

// APIKeyRepository stores hashed bearer tokens mapped to viewer identities.
type APIKeyRepository struct {
	db *DB
	// touchEvery throttles last_used_ts writes so resolving a key on every
	// request stays a read.
	touchEvery time.Duration
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db, touchEvery: DefaultTouchInterval}
}

// HashToken returns the stored form of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey generates a token for viewer, or an operator token when viewer
// is nil. Only the hash is stored; the token is returned once.
func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, viewer *scope.Viewer, description string) (string, error) {
	token := "msk_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var pid, aid any
	if viewer != nil {
		pid, aid = viewer.ProjectID, viewer.AgentID
	}
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO api_keys (key_hash, project_id, agent_id, description, created_ts)
			VALUES (?, ?, ?, ?, ?)
		`, HashToken(token), pid, aid, description, r.db.now())
		return err
	})
	if err != nil {
		return "", storeErr(ctx, "failed to create api key", err)
	}
	return token, nil
}

// ResolveAPIKey returns the viewer for token; a nil viewer means operator.
// last_used_ts is only rewritten once it is older than the touch interval.
func (r *APIKeyRepository) ResolveAPIKey(ctx context.Context, token string) (*scope.Viewer, error) {
	hash := HashToken(token)
	var pid, aid, lastUsed sql.NullInt64
	err := r.db.withConn(ctx, func(conn *sql.Conn) error {
		if err := conn.QueryRowContext(ctx,
			`SELECT project_id, agent_id, last_used_ts FROM api_keys WHERE key_hash = ?`, hash,
		).Scan(&pid, &aid, &lastUsed); err != nil {
			return err
		}
		now := time.Now().UnixMicro()
		if lastUsed.Valid && now-lastUsed.Int64 < r.touchEvery.Microseconds() {
			return nil
		}
		// The guard keeps concurrent resolves of the same key to one write.
		_, err := conn.ExecContext(ctx, `
			UPDATE api_keys SET last_used_ts = ?
			WHERE key_hash = ? AND (last_used_ts IS NULL OR last_used_ts < ?)
		`, r.db.now(), hash, now-r.touchEvery.Microseconds())
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, storeErr(ctx, "failed to resolve api key", err)
	}
	if !aid.Valid {
		return nil, nil
	}
	return &scope.Viewer{ProjectID: pid.Int64, AgentID: aid.Int64}, nil
}
