package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpggio/mailscope/internal/config"
	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/sqlite"
	"github.com/rpggio/mailscope/internal/telemetry"
)

// slowQuery is the duration above which tracked queries are logged at warn.
const slowQuery = 500 * time.Millisecond

// app is the wired stack shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db       *sqlite.DB
	store    *sqlite.MailStore
	scope    *sqlite.ScopeRepository
	keys     *sqlite.APIKeyRepository
	tracker  *telemetry.Tracker
	search   *search.Service
	explorer *explorer.Service

	logFile io.Closer
}

// openApp loads configuration, opens and migrates the database and builds the
// services. Logs go to logOut unless a log file is configured.
func openApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return openAppWith(cfg, logOut)
}

func openAppWith(cfg config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Log.Path != "" {
		w, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			a.logFile = w
			logOut = w
		}
	}
	a.logger = slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path, sqlite.Options{
		MaxOpenConns:   cfg.DB.MaxOpenConns,
		MaxIdleConns:   cfg.DB.MaxIdleConns,
		AcquireTimeout: cfg.DB.AcquireTimeout.Std(),
		BusyTimeout:    cfg.DB.BusyTimeout.Std(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	if err := db.RunMigrations(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	engine, err := search.ParseEngine(cfg.Search.Engine)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store = sqlite.NewMailStore(db)
	a.scope = sqlite.NewScopeRepository(db, false)
	a.keys = sqlite.NewAPIKeyRepository(db)
	a.tracker = telemetry.NewTracker(a.logger, slowQuery)
	a.search = search.NewService(sqlite.NewSearchRepository(db), a.scope, a.tracker, a.logger, search.Config{
		Engine:       engine,
		DefaultLimit: cfg.Search.DefaultLimit,
		CandidateCap: cfg.Search.CandidateCap,
	})
	a.explorer = explorer.NewService(sqlite.NewExplorerRepository(db), a.tracker, a.logger)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
