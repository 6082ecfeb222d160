package explorer

import "context"

// AgentRef is one (project, agent) identity carrying the explored name.
type AgentRef struct {
	ProjectID int64
	AgentID   int64
}

// Filter holds the predicates shared by counts and fetches.
type Filter struct {
	Importance []string
	Ack        AckFilter
	Text       string
	SnapshotID int64
}

// Store reads mailbox rows for one agent identity at a time.
type Store interface {
	// ResolveAgent returns every identity named name, optionally within one project.
	ResolveAgent(ctx context.Context, name string, projectID *int64) ([]AgentRef, error)
	// MaxMessageID returns the current snapshot bound.
	MaxMessageID(ctx context.Context) (int64, error)
	// Count returns the number of distinct messages on side for ref.
	Count(ctx context.Context, ref AgentRef, side Direction, f Filter) (int, error)
	// Fetch returns up to limit entries on side for ref, newest first.
	Fetch(ctx context.Context, ref AgentRef, side Direction, f Filter, limit int) ([]Entry, error)
}
