// Package explorer pages one agent's mailbox across every project the agent
// name appears in.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/repository"
	"github.com/rpggio/mailscope/internal/telemetry"
)

const noThread = "(no thread)"

// Service answers explorer queries.
type Service struct {
	store    Store
	recorder telemetry.Recorder
	logger   *slog.Logger
}

// NewService creates an explorer service. recorder and logger may be nil.
func NewService(store Store, recorder telemetry.Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	return &Service{store: store, recorder: recorder, logger: logger}
}

// Fetch returns one page of q. Each identity resolved for the agent name is
// counted and fetched on its own; rows are never merged across identities.
func (s *Service) Fetch(ctx context.Context, q Query) (Page, error) {
	defer telemetry.Start(s.recorder, "mail_explorer").Stop()

	q, err := q.normalized()
	if err != nil {
		return Page{}, err
	}
	if err := repository.CheckContext(ctx); err != nil {
		return Page{}, err
	}

	refs, err := s.store.ResolveAgent(ctx, q.AgentName, q.ProjectID)
	if err != nil {
		return Page{}, s.storeErr(ctx, "resolve agent", err)
	}
	if len(refs) == 0 {
		s.logger.Debug("explorer agent not found", "agent", q.AgentName)
		return Page{Entries: []Entry{}, SnapshotID: q.SnapshotID}, nil
	}

	snapshot := q.SnapshotID
	if snapshot == 0 {
		if snapshot, err = s.store.MaxMessageID(ctx); err != nil {
			return Page{}, s.storeErr(ctx, "snapshot", err)
		}
	}
	f := Filter{Importance: q.ImportanceFilter, Ack: q.AckFilter, Text: q.TextFilter, SnapshotID: snapshot}

	var sides []Direction
	if q.Direction != DirectionOutbound {
		sides = append(sides, DirectionInbound)
	}
	if q.Direction != DirectionInbound {
		sides = append(sides, DirectionOutbound)
	}

	counts := map[Direction]int{}
	for _, side := range sides {
		for _, ref := range refs {
			n, err := s.store.Count(ctx, ref, side, f)
			if err != nil {
				return Page{}, s.storeErr(ctx, "count "+string(side), err)
			}
			counts[side] += n
		}
	}

	var entries []Entry
	for _, side := range sides {
		for _, ref := range refs {
			rows, err := s.store.Fetch(ctx, ref, side, f, q.Limit+q.Offset)
			if err != nil {
				return Page{}, s.storeErr(ctx, "fetch "+string(side), err)
			}
			entries = append(entries, rows...)
		}
	}

	stats := computeStats(entries)
	stats.InboundCount = counts[DirectionInbound]
	stats.OutboundCount = counts[DirectionOutbound]

	sortEntries(entries, q.Sort)

	start := min(q.Offset, len(entries))
	end := min(start+q.Limit, len(entries))
	pageEntries := append([]Entry{}, entries[start:end]...)

	p := Page{
		Entries:    pageEntries,
		TotalCount: stats.InboundCount + stats.OutboundCount,
		Stats:      stats,
		SnapshotID: snapshot,
	}
	if q.Group != GroupNone {
		p.Groups = buildGroups(pageEntries, q.Group)
	}

	s.logger.Debug("explorer page",
		"agent", q.AgentName,
		"identities", len(refs),
		"direction", q.Direction,
		"total", p.TotalCount,
		"returned", len(p.Entries),
	)
	return p, nil
}

func (s *Service) storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, repository.ErrCanceled) || errors.Is(err, repository.ErrPoolTimeout) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return repository.Canceled(ctxErr)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func sortEntries(entries []Entry, mode Sort) {
	switch mode {
	case SortDateAsc:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedTS < entries[j].CreatedTS })
	case SortImportanceDesc:
		sort.SliceStable(entries, func(i, j int) bool {
			ri, rj := mail.ImportanceRank(entries[i].Importance), mail.ImportanceRank(entries[j].Importance)
			if ri != rj {
				return ri > rj
			}
			return entries[i].CreatedTS > entries[j].CreatedTS
		})
	case SortAgentAlpha:
		sort.SliceStable(entries, func(i, j int) bool {
			ai := strings.ToLower(entries[i].otherParty())
			aj := strings.ToLower(entries[j].otherParty())
			if ai != aj {
				return ai < aj
			}
			return entries[i].CreatedTS > entries[j].CreatedTS
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedTS > entries[j].CreatedTS })
	}
}

func groupKey(e Entry, mode GroupMode) string {
	switch mode {
	case GroupProject:
		return e.ProjectSlug
	case GroupThread:
		if e.ThreadID == nil || *e.ThreadID == "" {
			return noThread
		}
		return *e.ThreadID
	default:
		return e.otherParty()
	}
}

func groupLabel(key string, mode GroupMode) string {
	switch mode {
	case GroupProject:
		return "Project: " + key
	case GroupThread:
		return "Thread: " + key
	case GroupAgent:
		return "Agent: " + key
	default:
		return key
	}
}

// buildGroups buckets entries by key, keys in lexicographic order and
// entries in page order.
func buildGroups(entries []Entry, mode GroupMode) []Group {
	byKey := map[string][]Entry{}
	for _, e := range entries {
		k := groupKey(e, mode)
		byKey[k] = append(byKey[k], e)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, Group{
			Key:     k,
			Label:   groupLabel(k, mode),
			Count:   len(byKey[k]),
			Entries: byKey[k],
		})
	}
	return groups
}

func computeStats(entries []Entry) Stats {
	var st Stats
	projects := map[int64]struct{}{}
	threads := map[string]struct{}{}
	agents := map[string]struct{}{}

	for _, e := range entries {
		projects[e.ProjectID] = struct{}{}
		if e.ThreadID != nil {
			threads[*e.ThreadID] = struct{}{}
		}
		addNames(agents, e.SenderName)
		addNames(agents, e.ToAgents)

		if e.Direction != DirectionInbound {
			st.OutboundCount++
			continue
		}
		st.InboundCount++
		if e.ReadTS == nil {
			st.UnreadCount++
		}
		if e.AckRequired && e.AckTS == nil {
			st.PendingAck++
		}
	}

	st.UniqueProjects = len(projects)
	st.UniqueThreads = len(threads)
	st.UniqueAgents = len(agents)
	return st
}

func addNames(set map[string]struct{}, csv string) {
	for _, raw := range strings.Split(csv, ",") {
		if name := strings.TrimSpace(raw); name != "" {
			set[name] = struct{}{}
		}
	}
}
