package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rpggio/mailscope/internal/explorer"
)

type exploreFlags struct {
	project    int64
	direction  string
	sort       string
	group      string
	ack        string
	importance []string
	text       string
	limit      int
	offset     int
	snapshot   int64
	json       bool
}

func newExploreCmd() *cobra.Command {
	var f exploreFlags

	cmd := &cobra.Command{
		Use:   "explore <agent>",
		Short: "List an agent's inbound and outbound mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return runExplore(cmd.Context(), a, cmd.OutOrStdout(), args[0], f)
		},
	}

	cmd.Flags().Int64Var(&f.project, "project", 0, "restrict to one project id")
	cmd.Flags().StringVar(&f.direction, "direction", "", "all|inbound|outbound")
	cmd.Flags().StringVar(&f.sort, "sort", "", "date_desc|date_asc|importance_desc|agent_alpha")
	cmd.Flags().StringVar(&f.group, "group", "", "none|project|thread|agent")
	cmd.Flags().StringVar(&f.ack, "ack", "", "all|pending_ack|acknowledged|unread")
	cmd.Flags().StringSliceVar(&f.importance, "importance", nil, "importance filter")
	cmd.Flags().StringVar(&f.text, "text", "", "subject or body substring")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "page size")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "page offset")
	cmd.Flags().Int64Var(&f.snapshot, "snapshot", 0, "snapshot id from a previous page")
	cmd.Flags().BoolVar(&f.json, "json", false, "force JSON output")
	return cmd
}

func runExplore(ctx context.Context, a *app, out io.Writer, agent string, f exploreFlags) error {
	q := explorer.Query{
		AgentName:        agent,
		Direction:        explorer.Direction(f.direction),
		Sort:             explorer.Sort(f.sort),
		Group:            explorer.GroupMode(f.group),
		AckFilter:        explorer.AckFilter(f.ack),
		ImportanceFilter: f.importance,
		TextFilter:       f.text,
		Limit:            f.limit,
		Offset:           f.offset,
		SnapshotID:       f.snapshot,
	}
	if f.project > 0 {
		q.ProjectID = &f.project
	}

	page, err := a.explorer.Fetch(ctx, q)
	if err != nil {
		return err
	}
	if wantJSON(out, f.json) {
		return writeJSON(out, page)
	}
	printExplore(out, page)
	return nil
}

func printExplore(out io.Writer, page explorer.Page) {
	w := newTable(out)
	fprintRow(w, "ID", "DIR", "PROJECT", "FROM", "TO", "IMPORTANCE", "CREATED", "SUBJECT")
	for _, e := range page.Entries {
		fprintRow(w, e.MessageID, e.Direction, e.ProjectSlug, e.SenderName, clip(e.ToAgents, 30),
			e.Importance, formatTS(e.CreatedTS), clip(e.Subject, 50))
	}
	w.Flush()

	for _, g := range page.Groups {
		fmt.Fprintf(out, "\n%s: %d\n", g.Label, g.Count)
	}
	s := page.Stats
	fmt.Fprintf(out, "\n%d total (%d in, %d out), %d unread, %d pending ack, snapshot %d\n",
		page.TotalCount, s.InboundCount, s.OutboundCount, s.UnreadCount, s.PendingAck, page.SnapshotID)
}
