package sqlite

import (
	"context"
	"testing"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestEnsureProject_Idempotent(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	store := NewMailStore(db)

	first, err := store.EnsureProject(ctx, "alpha", "/work/alpha")
	require.NoError(t, err)
	second, err := store.EnsureProject(ctx, "alpha", "ignored")
	require.NoError(t, err)
	require.Equal(t, first, second)

	got, err := store.GetProject(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "/work/alpha", got.HumanKey)

	_, err = store.GetProject(ctx, 999)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.EnsureProject(ctx, " ", "")
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestListProjects(t *testing.T) {
	db := NewTestDB(t)
	f := newFixture(t, db)

	projects, err := f.store.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, "alpha", projects[0].Slug)
	require.Equal(t, "beta", projects[1].Slug)
}

func TestRegisterAgent_SameNameAcrossProjects(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)

	a := f.agents["alpha/Blue"]
	b := f.agents["beta/Blue"]
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, a.Name, b.Name)

	again, err := f.store.RegisterAgent(ctx, f.alpha.ID, "BlueLake", "new task")
	require.NoError(t, err)
	require.Equal(t, a.ID, again.ID)
	require.Equal(t, "new task", again.TaskDescription)

	_, err = f.store.GetAgent(ctx, f.beta.ID, "GreenCastle")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.store.RegisterAgent(ctx, 999, "Ghost", "")
	require.ErrorIs(t, err, repository.ErrForeignKeyViolation)
}

func TestSendMessage(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)

	msg := f.sendMsg(t, mail.Message{
		Subject:     "Deploy plan",
		Body:        "Rolling out tonight",
		ThreadID:    "T-7",
		Importance:  "HIGH",
		AckRequired: true,
	}, "alpha/Blue", "alpha/Green", "alpha/Red")
	require.NotZero(t, msg.ID)
	require.NotZero(t, msg.CreatedTS)
	require.Equal(t, mail.ImportanceHigh, msg.Importance)

	got, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, msg, got)

	var recipients int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM message_recipients WHERE message_id = ?`, msg.ID).Scan(&recipients))
	require.Equal(t, 2, recipients)

	var indexed int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM messages_fts WHERE messages_fts MATCH 'BlueLake' AND rowid = ?`, msg.ID).Scan(&indexed))
	require.Equal(t, 1, indexed, "sender name is indexed with the message")

	_, err = f.store.GetMessage(ctx, 999)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendMessage_Validation(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)
	blue := f.agents["alpha/Blue"]

	_, err := f.store.SendMessage(ctx, mail.Message{ProjectID: blue.ProjectID, SenderID: blue.ID}, nil)
	require.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = f.store.SendMessage(ctx, mail.Message{ProjectID: blue.ProjectID, SenderID: blue.ID, Subject: "x", Importance: "critical"}, nil)
	require.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = f.store.SendMessage(ctx, mail.Message{ProjectID: blue.ProjectID, SenderID: blue.ID, Subject: "x"},
		[]mail.Recipient{{AgentID: 999, Kind: mail.RecipientTo}})
	require.ErrorIs(t, err, repository.ErrForeignKeyViolation)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count))
	require.Zero(t, count, "failed send must not leave a partial message")
}

func TestMarkReadAndAcknowledge(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db)
	green := f.agents["alpha/Green"]

	msg := f.sendMsg(t, mail.Message{Subject: "ack me", AckRequired: true}, "alpha/Blue", "alpha/Green")

	require.NoError(t, f.store.MarkRead(ctx, msg.ID, green.ID))
	var readTS int64
	require.NoError(t, db.QueryRow(`SELECT read_ts FROM message_recipients WHERE message_id = ? AND agent_id = ?`,
		msg.ID, green.ID).Scan(&readTS))

	require.NoError(t, f.store.Acknowledge(ctx, msg.ID, green.ID))
	var readAgain, ackTS int64
	require.NoError(t, db.QueryRow(`SELECT read_ts, ack_ts FROM message_recipients WHERE message_id = ? AND agent_id = ?`,
		msg.ID, green.ID).Scan(&readAgain, &ackTS))
	require.Equal(t, readTS, readAgain, "first read time is kept")
	require.Greater(t, ackTS, readTS)

	err := f.store.MarkRead(ctx, msg.ID, f.agents["alpha/Red"].ID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
