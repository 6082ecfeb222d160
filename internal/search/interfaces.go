package search

import (
	"context"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/scope"
)

// MessageFilter holds the facet predicates shared by every message read.
type MessageFilter struct {
	ProjectID   *int64
	Importance  []string
	ThreadID    string
	AckRequired *bool
	MinTS       *int64
	MaxTS       *int64
}

// MatchMode selects how a candidate read matches text.
type MatchMode int

const (
	MatchNone MatchMode = iota
	MatchFTS
	MatchLike
)

// CandidateRequest asks the store for messages to rank in-process.
type CandidateRequest struct {
	Mode      MatchMode
	Match     string
	LikeTerms []string
	Filter    MessageFilter
	// Watermark bounds ids when non-zero; zero means "current max id".
	Watermark    int64
	Cap          int
	ScopeClauses []string
	ScopeArgs    []any
}

// Candidate is one message row with the fields rankers read.
type Candidate struct {
	ID          int64
	ProjectID   int64
	SenderID    int64
	SenderName  string
	Subject     string
	Body        string
	ThreadID    string
	Importance  string
	AckRequired bool
	CreatedTS   int64
}

// CandidateSet is a store read pinned to a watermark.
type CandidateSet struct {
	Watermark int64
	// Universe counts messages matching the facets, ignoring text.
	Universe int
	Rows     []Candidate
	SQL      string
}

// RecentRequest pages messages in created_ts DESC, id DESC order.
type RecentRequest struct {
	Filter       MessageFilter
	Watermark    int64
	AfterTS      *int64
	AfterID      int64
	Limit        int
	ScopeClauses []string
	ScopeArgs    []any
}

// EntityRequest searches agents or projects by substring.
type EntityRequest struct {
	Kind      mail.DocKind
	Terms     []string
	ProjectID *int64
	Watermark int64
	AfterTS   *int64
	AfterID   int64
	Limit     int
}

// EntitySet is a page of agent or project results.
type EntitySet struct {
	Watermark int64
	Rows      []mail.SearchResult
	SQL       string
}

// Store reads search candidates.
type Store interface {
	MessageCandidates(ctx context.Context, req CandidateRequest) (CandidateSet, error)
	RecentMessages(ctx context.Context, req RecentRequest) (CandidateSet, error)
	Entities(ctx context.Context, req EntityRequest) (EntitySet, error)
}

// ScopeLoader builds a visibility context for a viewer over a set of message ids.
type ScopeLoader interface {
	LoadScope(ctx context.Context, viewer scope.Viewer, messageIDs []int64) (scope.Context, error)
}

// restrictedRedactor is implemented by loaders whose contexts redact
// restricted rows instead of denying them.
type restrictedRedactor interface {
	RedactsRestricted() bool
}
