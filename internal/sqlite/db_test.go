package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/stretchr/testify/require"
)

// NewTestDB creates a migrated file database under t.TempDir so pooled
// connections share it.
func NewTestDB(t *testing.T) *DB {
	t.Helper()
	return newTestDBWithOptions(t, DefaultOptions())
}

func newTestDBWithOptions(t *testing.T, opts Options) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"), opts)
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// fixture is a small mailbox: two projects, a shared agent name across them.
type fixture struct {
	store  *MailStore
	alpha  mail.Project
	beta   mail.Project
	agents map[string]mail.Agent
}

func newFixture(t *testing.T, db *DB) *fixture {
	t.Helper()
	ctx := context.Background()
	store := NewMailStore(db)

	alpha, err := store.EnsureProject(ctx, "alpha", "/work/alpha")
	require.NoError(t, err)
	beta, err := store.EnsureProject(ctx, "beta", "/work/beta")
	require.NoError(t, err)

	f := &fixture{store: store, alpha: alpha, beta: beta, agents: map[string]mail.Agent{}}
	for _, spec := range []struct {
		key     string
		project int64
		name    string
	}{
		{"alpha/Blue", alpha.ID, "BlueLake"},
		{"alpha/Green", alpha.ID, "GreenCastle"},
		{"alpha/Red", alpha.ID, "RedHarbor"},
		{"beta/Blue", beta.ID, "BlueLake"},
		{"beta/Gold", beta.ID, "GoldFinch"},
	} {
		a, err := store.RegisterAgent(ctx, spec.project, spec.name, "works on "+spec.name)
		require.NoError(t, err)
		f.agents[spec.key] = a
	}
	return f
}

func (f *fixture) send(t *testing.T, from, subject, body string, to ...string) mail.Message {
	t.Helper()
	return f.sendMsg(t, mail.Message{Subject: subject, Body: body}, from, to...)
}

func (f *fixture) sendMsg(t *testing.T, msg mail.Message, from string, to ...string) mail.Message {
	t.Helper()
	sender := f.agents[from]
	msg.ProjectID = sender.ProjectID
	msg.SenderID = sender.ID
	var recipients []mail.Recipient
	for _, key := range to {
		recipients = append(recipients, mail.Recipient{AgentID: f.agents[key].ID, Kind: mail.RecipientTo})
	}
	out, err := f.store.SendMessage(context.Background(), msg, recipients)
	require.NoError(t, err)
	return out
}

func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"projects",
		"agents",
		"contact_policies",
		"approved_contacts",
		"messages",
		"message_recipients",
		"messages_fts",
		"api_keys",
	}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}

	require.NoError(t, db.RunMigrations(), "migrations must be idempotent")
}

func TestForeignKeys(t *testing.T) {
	db := NewTestDB(t)

	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	require.NoError(t, err)
	require.Equal(t, 1, enabled, "foreign keys not enabled")
}

func TestJournalModeWAL(t *testing.T) {
	db := NewTestDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestNew_MemoryUsesSingleConnection(t *testing.T) {
	db, err := New(":memory:", Options{MaxOpenConns: 8})
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, 1, db.Options().MaxOpenConns)
}

func TestNow_StrictlyIncreasing(t *testing.T) {
	db := NewTestDB(t)

	var mu sync.Mutex
	seen := map[int64]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				ts := db.now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, 800)
}

func TestAcquire_PoolTimeout(t *testing.T) {
	db := newTestDBWithOptions(t, Options{MaxOpenConns: 3, AcquireTimeout: 100 * time.Millisecond})
	ctx := context.Background()

	held := make([]interface{ Close() error }, 0, 3)
	for i := 0; i < 3; i++ {
		conn, err := db.Acquire(ctx)
		require.NoError(t, err)
		held = append(held, conn)
	}

	start := time.Now()
	_, err := db.Acquire(ctx)
	require.ErrorIs(t, err, repository.ErrPoolTimeout)
	require.False(t, repository.IsCanceled(err))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, held[0].Close())
	conn, err := db.Acquire(ctx)
	require.NoError(t, err, "pool must recover once a connection is released")
	require.NoError(t, conn.Close())

	for _, c := range held[1:] {
		require.NoError(t, c.Close())
	}
	require.Equal(t, 0, db.PoolStats().InUse)
}

func TestAcquire_CallerCancellation(t *testing.T) {
	db := newTestDBWithOptions(t, Options{MaxOpenConns: 1, AcquireTimeout: 5 * time.Second})

	held, err := db.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = db.Acquire(ctx)
	require.ErrorIs(t, err, repository.ErrCanceled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, repository.ErrPoolTimeout)
}

func TestPool_MixedReadersAndWritersOnSmallPool(t *testing.T) {
	db := newTestDBWithOptions(t, Options{MaxOpenConns: 3, AcquireTimeout: 5 * time.Second})
	f := newFixture(t, db)
	f.send(t, "alpha/Blue", "pool check", "body", "alpha/Green")
	svc := search.NewService(NewSearchRepository(db), nil, nil, nil, search.Config{})
	blue, green := f.agents["alpha/Blue"], f.agents["alpha/Green"]
	ctx := context.Background()

	const workers, rounds = 12, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				var err error
				if w%2 == 0 {
					_, err = f.store.SendMessage(ctx, mail.Message{
						ProjectID: blue.ProjectID, SenderID: blue.ID,
						Subject: fmt.Sprintf("poolmix from %d round %d", w, i),
					}, []mail.Recipient{{AgentID: green.ID, Kind: mail.RecipientTo}})
				} else {
					_, err = svc.ExecuteSimple(ctx, search.Query{Text: "poolmix", Limit: 5})
				}
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats := db.PoolStats()
	require.LessOrEqual(t, stats.Open, 3)
	require.Equal(t, 0, stats.InUse)

	resp, err := svc.ExecuteSimple(ctx, search.Query{Text: "poolmix", Limit: 100})
	require.NoError(t, err)
	require.Len(t, resp.Results, workers/2*rounds)

	f.send(t, "alpha/Blue", "zephyr handoff", "written last", "alpha/Green")
	resp, err = svc.ExecuteSimple(ctx, search.Query{Text: "zephyr"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "zephyr handoff", resp.Results[0].Title)
}

func TestOptimize(t *testing.T) {
	db := NewTestDB(t)
	f := newFixture(t, db)
	f.send(t, "alpha/Blue", "index me", "body", "alpha/Green")

	require.NoError(t, db.Optimize(context.Background()))
}
