package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpggio/mailscope/internal/search"
	"github.com/rpggio/mailscope/internal/search/golden"
	"github.com/rpggio/mailscope/internal/sqlite"
)

// errGateFailed is returned when any engine misses a relevance floor.
var errGateFailed = errors.New("relevance gate failed")

func newEvalCmd() *cobra.Command {
	var (
		engines []string
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the golden relevance corpus against the search engines",
		Long: `Seeds the embedded golden corpus into a scratch database and runs
every labeled query. Exits non-zero when an engine misses an aggregate floor.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return runEval(cmd.Context(), cmd.OutOrStdout(), engines, asJSON, logger)
		},
	}

	cmd.Flags().StringSliceVar(&engines, "engine", nil, "engines to evaluate (default all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "force JSON output")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every query")
	return cmd
}

func runEval(ctx context.Context, out io.Writer, names []string, asJSON bool, logger *slog.Logger) error {
	engines := search.Engines
	if len(names) > 0 {
		engines = nil
		for _, n := range names {
			e, err := search.ParseEngine(n)
			if err != nil {
				return err
			}
			if e != "" {
				engines = append(engines, e)
			}
		}
	}

	c, err := golden.Load()
	if err != nil {
		return err
	}
	dir, err := os.MkdirTemp("", "mailscope-eval-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	db, err := sqlite.New(filepath.Join(dir, "golden.db"), sqlite.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open scratch database: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	projectID, err := c.Seed(ctx, sqlite.NewMailStore(db))
	if err != nil {
		return err
	}

	svc := search.NewService(sqlite.NewSearchRepository(db), nil, nil, logger, search.Config{})
	reports := make([]golden.Report, 0, len(engines))
	failed := false
	for _, engine := range engines {
		report, err := c.Run(ctx, svc, projectID, engine, logger)
		if err != nil {
			return fmt.Errorf("engine %s: %w", engine, err)
		}
		if len(report.Failures()) > 0 {
			failed = true
		}
		reports = append(reports, report)
	}

	if wantJSON(out, asJSON) {
		if err := writeJSON(out, reports); err != nil {
			return err
		}
	} else {
		printEval(out, reports)
	}
	if failed {
		return errGateFailed
	}
	return nil
}

func printEval(out io.Writer, reports []golden.Report) {
	w := newTable(out)
	fprintRow(w, "ENGINE", "NDCG@5", "MRR", "P@3", "R@5", "PASS", "STATUS")
	for _, r := range reports {
		status := "ok"
		if f := r.Failures(); len(f) > 0 {
			status = strings.Join(f, "; ")
		}
		fprintRow(w, r.Engine,
			fmt.Sprintf("%.3f", r.MeanNDCG5), fmt.Sprintf("%.3f", r.MeanMRR),
			fmt.Sprintf("%.3f", r.MeanP3), fmt.Sprintf("%.3f", r.MeanR5),
			fmt.Sprintf("%.0f%%", r.PassRate*100), status)
	}
	w.Flush()

	for _, r := range reports {
		for _, q := range r.Queries {
			if !q.Pass {
				fmt.Fprintf(out, "%s %s (%s): %s\n", r.Engine, q.Label, q.Method, strings.Join(q.Failures, ", "))
			}
		}
	}
}
