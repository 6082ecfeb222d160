package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
)

type searchFlags struct {
	project       int64
	viewerProject int64
	viewerAgent   string
	engine        string
	ranking       string
	importance    []string
	thread        string
	limit         int
	cursor        string
	explain       bool
	pushdown      bool
	strict        bool
	json          bool
}

func newSearchCmd() *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Search messages as the operator or as one agent",
		Long: `Runs a search against the configured database. Without --viewer-agent the
operator sees every result; with it, results pass through that agent's
visibility rules and the audit summary is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return runSearch(cmd.Context(), a, cmd.OutOrStdout(), strings.Join(args, " "), f)
		},
	}

	cmd.Flags().Int64Var(&f.project, "project", 0, "restrict to one project id")
	cmd.Flags().Int64Var(&f.viewerProject, "viewer-project", 0, "project id of the viewing agent")
	cmd.Flags().StringVar(&f.viewerAgent, "viewer-agent", "", "agent name to evaluate visibility for")
	cmd.Flags().StringVar(&f.engine, "engine", "", "legacy|lexical|hybrid (default from config)")
	cmd.Flags().StringVar(&f.ranking, "ranking", "", "relevance|recency")
	cmd.Flags().StringSliceVar(&f.importance, "importance", nil, "importance filter (low,normal,high,urgent)")
	cmd.Flags().StringVar(&f.thread, "thread", "", "thread id filter")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "page size")
	cmd.Flags().StringVar(&f.cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "include the query plan")
	cmd.Flags().BoolVar(&f.pushdown, "pushdown", false, "prefilter candidates with the visibility clause")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "strict redaction for restricted results")
	cmd.Flags().BoolVar(&f.json, "json", false, "force JSON output")
	return cmd
}

func runSearch(ctx context.Context, a *app, out io.Writer, text string, f searchFlags) error {
	ranking, err := search.ParseRanking(f.ranking)
	if err != nil {
		return err
	}
	engine, err := search.ParseEngine(f.engine)
	if err != nil {
		return err
	}
	var importance []mail.Importance
	for _, s := range f.importance {
		imp, ok := mail.ParseImportance(s)
		if !ok {
			return fmt.Errorf("%w: unknown importance %q", search.ErrInvalidQuery, s)
		}
		importance = append(importance, imp)
	}

	q := search.Query{
		Text:       text,
		Importance: importance,
		ThreadID:   f.thread,
		Ranking:    ranking,
		Limit:      f.limit,
		Cursor:     f.cursor,
		Explain:    f.explain,
	}
	if f.project > 0 {
		q.ProjectID = &f.project
	}

	opts := search.Options{Engine: engine, ScopePushdown: f.pushdown, TrackTelemetry: true}
	if f.viewerAgent != "" {
		if f.viewerProject <= 0 {
			return fmt.Errorf("%w: --viewer-agent requires --viewer-project", search.ErrInvalidQuery)
		}
		v, err := a.scope.ResolveViewer(ctx, f.viewerProject, f.viewerAgent)
		if err != nil {
			return fmt.Errorf("viewer %s: %w", f.viewerAgent, err)
		}
		opts.Viewer = &v
	}
	if f.strict {
		p := scope.StrictRedactionPolicy()
		opts.Redaction = &p
	}

	resp, err := a.search.Execute(ctx, q, opts)
	if err != nil {
		return err
	}
	if wantJSON(out, f.json) {
		return writeJSON(out, resp)
	}
	printSearch(out, resp)
	return nil
}

func printSearch(out io.Writer, resp search.ScopedResponse) {
	w := newTable(out)
	fprintRow(w, "ID", "PROJECT", "FROM", "IMPORTANCE", "SCORE", "TITLE", "SCOPE")
	for _, r := range resp.Results {
		score := "-"
		if r.Result.Score != nil {
			score = fmt.Sprintf("%.3f", *r.Result.Score)
		}
		fprintRow(w, r.Result.ID, r.Result.ProjectOrZero(), orDash(r.Result.FromAgent), r.Result.Importance,
			score, clip(r.Result.Title, 60), r.Decision.Reason)
	}
	w.Flush()

	if resp.NextCursor != "" {
		fmt.Fprintf(out, "\nnext cursor: %s\n", resp.NextCursor)
	}
	if resp.Audit != nil {
		fmt.Fprintf(out, "\nvisible %d of %d, denied %d, redacted %d\n",
			resp.Audit.VisibleCount, resp.Audit.TotalBefore, resp.Audit.DeniedCount, resp.Audit.RedactedCount)
	}
	if resp.Explain != nil {
		fmt.Fprintf(out, "method %s, engine %s, %d candidates, watermark %d\n",
			resp.Explain.Method, resp.Explain.Engine, resp.Explain.CandidateCount, resp.Explain.Watermark)
	}
}
