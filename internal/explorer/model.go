package explorer

import (
	"fmt"
	"strings"

	"github.com/rpggio/mailscope/internal/repository"
)

// ErrInvalidQuery is returned for malformed explorer queries.
var ErrInvalidQuery = fmt.Errorf("invalid explorer query: %w", repository.ErrInvalidInput)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
	// MaxOffset bounds offset paging so Limit+Offset stays a positive fetch
	// bound for every store read.
	MaxOffset = 100_000
)

// Direction selects which side of the mailbox is explored.
type Direction string

const (
	DirectionAll      Direction = "all"
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sort orders merged entries.
type Sort string

const (
	SortDateDesc       Sort = "date_desc"
	SortDateAsc        Sort = "date_asc"
	SortImportanceDesc Sort = "importance_desc"
	SortAgentAlpha     Sort = "agent_alpha"
)

// GroupMode buckets the returned page.
type GroupMode string

const (
	GroupNone    GroupMode = "none"
	GroupProject GroupMode = "project"
	GroupThread  GroupMode = "thread"
	GroupAgent   GroupMode = "agent"
)

// AckFilter restricts entries by read and acknowledgement state.
type AckFilter string

const (
	AckAll          AckFilter = "all"
	AckPending      AckFilter = "pending_ack"
	AckAcknowledged AckFilter = "acknowledged"
	AckUnread       AckFilter = "unread"
)

// ParseDirection parses a direction; empty means all.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DirectionAll, nil
	case DirectionAll, DirectionInbound, DirectionOutbound:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidQuery, s)
	}
}

// ParseSort parses a sort mode; empty means date_desc.
func ParseSort(s string) (Sort, error) {
	switch v := Sort(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return SortDateDesc, nil
	case SortDateDesc, SortDateAsc, SortImportanceDesc, SortAgentAlpha:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown sort %q", ErrInvalidQuery, s)
	}
}

// ParseGroup parses a group mode; empty means none.
func ParseGroup(s string) (GroupMode, error) {
	switch g := GroupMode(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GroupNone, nil
	case GroupNone, GroupProject, GroupThread, GroupAgent:
		return g, nil
	default:
		return "", fmt.Errorf("%w: unknown group %q", ErrInvalidQuery, s)
	}
}

// ParseAckFilter parses an ack filter; empty means all.
func ParseAckFilter(s string) (AckFilter, error) {
	switch f := AckFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return AckAll, nil
	case AckAll, AckPending, AckAcknowledged, AckUnread:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown ack filter %q", ErrInvalidQuery, s)
	}
}

// Query describes one explorer page. Zero values select the defaults.
type Query struct {
	AgentName string
	// ProjectID limits the lookup to one project; nil explores every project
	// the agent name appears in.
	ProjectID        *int64
	Direction        Direction
	Sort             Sort
	Group            GroupMode
	AckFilter        AckFilter
	ImportanceFilter []string
	TextFilter       string
	Limit            int
	Offset           int
	// SnapshotID bounds the page to message ids at or below it. Zero takes a
	// fresh snapshot.
	SnapshotID int64
}

func (q Query) normalized() (Query, error) {
	q.AgentName = strings.TrimSpace(q.AgentName)
	if q.AgentName == "" {
		return q, fmt.Errorf("%w: agent name is required", ErrInvalidQuery)
	}
	var err error
	if q.Direction, err = ParseDirection(string(q.Direction)); err != nil {
		return q, err
	}
	if q.Sort, err = ParseSort(string(q.Sort)); err != nil {
		return q, err
	}
	if q.Group, err = ParseGroup(string(q.Group)); err != nil {
		return q, err
	}
	if q.AckFilter, err = ParseAckFilter(string(q.AckFilter)); err != nil {
		return q, err
	}
	if q.Offset < 0 {
		return q, fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}
	if q.Offset > MaxOffset {
		return q, fmt.Errorf("%w: offset %d exceeds %d", ErrInvalidQuery, q.Offset, MaxOffset)
	}
	if q.SnapshotID < 0 {
		return q, fmt.Errorf("%w: snapshot id must not be negative", ErrInvalidQuery)
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q, nil
}

// Entry is one message as seen from the explored agent.
type Entry struct {
	MessageID   int64   `json:"message_id"`
	ProjectID   int64   `json:"project_id"`
	ProjectSlug string  `json:"project_slug"`
	SenderName  string  `json:"sender_name"`
	ToAgents    string  `json:"to_agents"`
	Subject     string  `json:"subject"`
	Body        string  `json:"body"`
	ThreadID    *string `json:"thread_id,omitempty"`
	Importance  string  `json:"importance"`
	AckRequired bool    `json:"ack_required"`
	CreatedTS   int64   `json:"created_ts"`
	// Kind, ReadTS and AckTS are recipient state and only set on inbound rows.
	Kind      *string   `json:"kind,omitempty"`
	ReadTS    *int64    `json:"read_ts,omitempty"`
	AckTS     *int64    `json:"ack_ts,omitempty"`
	Direction Direction `json:"direction"`
}

// otherParty is the sender for inbound rows and the recipient list otherwise.
func (e Entry) otherParty() string {
	if e.Direction == DirectionInbound {
		return e.SenderName
	}
	return e.ToAgents
}

// Group is a bucket of page entries sharing a key.
type Group struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Entries []Entry `json:"entries"`
}

// Stats summarizes a page. InboundCount and OutboundCount are exact; the
// rest are computed over the fetched rows.
type Stats struct {
	InboundCount   int `json:"inbound_count"`
	OutboundCount  int `json:"outbound_count"`
	UnreadCount    int `json:"unread_count"`
	PendingAck     int `json:"pending_ack_count"`
	UniqueThreads  int `json:"unique_threads"`
	UniqueProjects int `json:"unique_projects"`
	UniqueAgents   int `json:"unique_agents"`
}

// Page is one explorer response.
type Page struct {
	Entries    []Entry `json:"entries"`
	Groups     []Group `json:"groups,omitempty"`
	TotalCount int     `json:"total_count"`
	Stats      Stats   `json:"stats"`
	SnapshotID int64   `json:"snapshot_id"`
}
