package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/stretchr/testify/require"
)

func TestLoadScope(t *testing.T) {
	db := NewTestDB(t)
	f := newFixture(t, db)
	ctx := context.Background()
	green, red, gold := f.agents["alpha/Green"], f.agents["alpha/Red"], f.agents["beta/Gold"]

	require.NoError(t, f.store.SetContactPolicy(ctx, red.ProjectID, red.ID, "BLOCK_ALL", 0))
	require.NoError(t, f.store.SetContactPolicy(ctx, gold.ProjectID, gold.ID, "open", 0))
	past := time.Now().Add(-time.Hour).UnixMicro()
	require.NoError(t, f.store.ApproveContact(ctx, green.ProjectID, green.ID, gold.ProjectID, gold.ID, 0))
	require.NoError(t, f.store.ApproveContact(ctx, green.ProjectID, green.ID, red.ProjectID, red.ID, past))

	toGreen := f.send(t, "alpha/Red", "hello", "", "alpha/Green")
	fromGold := f.send(t, "beta/Gold", "news", "", "beta/Blue")
	unrelated := f.send(t, "alpha/Blue", "team", "", "alpha/Red")

	viewer := scope.Viewer{ProjectID: green.ProjectID, AgentID: green.ID}
	sc, err := NewScopeRepository(db, false).LoadScope(ctx, viewer, []int64{toGreen.ID, fromGold.ID, unrelated.ID})
	require.NoError(t, err)

	require.Equal(t, &viewer, sc.Viewer)
	require.Equal(t, []int64{green.ProjectID}, sc.ViewerProjectIDs)
	require.Equal(t, []scope.ContactKey{{ProjectID: gold.ProjectID, AgentID: gold.ID}}, sc.ApprovedContacts, "expired approvals are ignored")
	require.ElementsMatch(t, []scope.SenderPolicy{
		{ProjectID: red.ProjectID, AgentID: red.ID, Policy: mail.PolicyBlockAll},
		{ProjectID: gold.ProjectID, AgentID: gold.ID, Policy: mail.PolicyOpen},
	}, sc.SenderPolicies)
	require.Equal(t, map[int64][]int64{toGreen.ID: {green.ID}}, sc.RecipientMap)
	require.False(t, sc.RedactRestricted)

	require.Equal(t, scope.Allow, scope.Evaluate(mustResult(t, db, toGreen.ID), sc).Verdict)
	require.Equal(t, scope.ReasonApprovedContact, scope.Evaluate(mustResult(t, db, fromGold.ID), sc).Reason)
	require.Equal(t, scope.ReasonAutoPolicy, scope.Evaluate(mustResult(t, db, unrelated.ID), sc).Reason)
}

func TestLoadScope_ExpiredPolicyCountsAsAuto(t *testing.T) {
	db := NewTestDB(t)
	f := newFixture(t, db)
	ctx := context.Background()
	red := f.agents["alpha/Red"]
	past := time.Now().Add(-time.Minute).UnixMicro()
	require.NoError(t, f.store.SetContactPolicy(ctx, red.ProjectID, red.ID, "contacts_only", past))

	msg := f.send(t, "alpha/Red", "old policy", "", "alpha/Blue")
	green := f.agents["alpha/Green"]
	sc, err := NewScopeRepository(db, false).LoadScope(ctx, scope.Viewer{ProjectID: green.ProjectID, AgentID: green.ID}, []int64{msg.ID})
	require.NoError(t, err)
	require.Empty(t, sc.SenderPolicies)
	require.Equal(t, scope.ReasonAutoPolicy, scope.Evaluate(mustResult(t, db, msg.ID), sc).Reason)
}

func TestResolveViewerAndMessageResult(t *testing.T) {
	db := NewTestDB(t)
	f := newFixture(t, db)
	ctx := context.Background()
	repo := NewScopeRepository(db, true)
	require.True(t, repo.RedactsRestricted())

	v, err := repo.ResolveViewer(ctx, f.beta.ID, "BlueLake")
	require.NoError(t, err)
	require.Equal(t, f.agents["beta/Blue"].ID, v.AgentID)

	_, err = repo.ResolveViewer(ctx, f.beta.ID, "RedHarbor")
	require.ErrorIs(t, err, repository.ErrNotFound)

	msg := f.sendMsg(t, mail.Message{Subject: "s", Body: "b", ThreadID: "T"}, "alpha/Blue", "alpha/Green")
	res := mustResult(t, db, msg.ID)
	require.Equal(t, mail.DocMessage, res.DocKind)
	require.Equal(t, "BlueLake", *res.FromAgent)
	require.Equal(t, "T", *res.ThreadID)

	_, err = repo.MessageResult(ctx, 999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func mustResult(t *testing.T, db *DB, id int64) mail.SearchResult {
	t.Helper()
	res, err := NewScopeRepository(db, false).MessageResult(context.Background(), id)
	require.NoError(t, err)
	return res
}

func TestAPIKeys(t *testing.T) {
	db := NewTestDB(t)
	f := newFixture(t, db)
	ctx := context.Background()
	repo := NewAPIKeyRepository(db)
	green := f.agents["alpha/Green"]

	token, err := repo.CreateAPIKey(ctx, &scope.Viewer{ProjectID: green.ProjectID, AgentID: green.ID}, "green key")
	require.NoError(t, err)
	require.Contains(t, token, "msk_")

	viewer, err := repo.ResolveAPIKey(ctx, token)
	require.NoError(t, err)
	require.Equal(t, &scope.Viewer{ProjectID: green.ProjectID, AgentID: green.ID}, viewer)

	var stored string
	require.NoError(t, db.QueryRow(`SELECT key_hash FROM api_keys`).Scan(&stored))
	require.Equal(t, HashToken(token), stored)
	require.NotContains(t, stored, token)

	opToken, err := repo.CreateAPIKey(ctx, nil, "operator")
	require.NoError(t, err)
	viewer, err = repo.ResolveAPIKey(ctx, opToken)
	require.NoError(t, err)
	require.Nil(t, viewer, "operator keys resolve to no viewer")

	_, err = repo.ResolveAPIKey(ctx, "msk_bogus")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAPIKeys_LastUsedThrottled(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewAPIKeyRepository(db)

	token, err := repo.CreateAPIKey(ctx, nil, "operator")
	require.NoError(t, err)

	lastUsed := func() sql.NullInt64 {
		var ts sql.NullInt64
		require.NoError(t, db.QueryRow(`SELECT last_used_ts FROM api_keys`).Scan(&ts))
		return ts
	}
	require.False(t, lastUsed().Valid)

	_, err = repo.ResolveAPIKey(ctx, token)
	require.NoError(t, err)
	first := lastUsed()
	require.True(t, first.Valid, "first resolve records use")

	for i := 0; i < 5; i++ {
		_, err = repo.ResolveAPIKey(ctx, token)
		require.NoError(t, err)
	}
	require.Equal(t, first, lastUsed(), "resolves within the interval do not write")

	stale := time.Now().Add(-2 * DefaultTouchInterval).UnixMicro()
	_, err = db.Exec(`UPDATE api_keys SET last_used_ts = ?`, stale)
	require.NoError(t, err)
	_, err = repo.ResolveAPIKey(ctx, token)
	require.NoError(t, err)
	require.Greater(t, lastUsed().Int64, stale, "stale timestamps are refreshed")
}
