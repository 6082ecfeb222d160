package mail

import "strings"

// Importance is a message priority level.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
	ImportanceUrgent Importance = "urgent"
)

// ParseImportance parses an importance level case-insensitively.
func ParseImportance(s string) (Importance, bool) {
	switch Importance(strings.ToLower(strings.TrimSpace(s))) {
	case ImportanceLow:
		return ImportanceLow, true
	case ImportanceNormal:
		return ImportanceNormal, true
	case ImportanceHigh:
		return ImportanceHigh, true
	case ImportanceUrgent:
		return ImportanceUrgent, true
	default:
		return "", false
	}
}

// ImportanceRank orders importance strings: urgent 4, high 3, normal 2, low 1, anything else 0.
func ImportanceRank(s string) int {
	switch Importance(s) {
	case ImportanceUrgent:
		return 4
	case ImportanceHigh:
		return 3
	case ImportanceNormal:
		return 2
	case ImportanceLow:
		return 1
	default:
		return 0
	}
}

// RecipientKind is the addressing kind of a recipient.
type RecipientKind string

const (
	RecipientTo  RecipientKind = "to"
	RecipientCC  RecipientKind = "cc"
	RecipientBCC RecipientKind = "bcc"
)

// Valid reports whether k is a known recipient kind.
func (k RecipientKind) Valid() bool {
	return k == RecipientTo || k == RecipientCC || k == RecipientBCC
}

// DocKind identifies what a search result refers to.
type DocKind string

const (
	DocMessage DocKind = "message"
	DocAgent   DocKind = "agent"
	DocProject DocKind = "project"
)

// ParseDocKind parses a document kind; empty means message.
func ParseDocKind(s string) (DocKind, bool) {
	switch DocKind(strings.ToLower(strings.TrimSpace(s))) {
	case "", DocMessage:
		return DocMessage, true
	case DocAgent:
		return DocAgent, true
	case DocProject:
		return DocProject, true
	default:
		return "", false
	}
}

// Project groups agents and their messages.
type Project struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	HumanKey  string `json:"human_key"`
	CreatedTS int64  `json:"created_ts"`
}

// Agent is a named participant inside one project. Names are unique per project only.
type Agent struct {
	ID              int64  `json:"id"`
	ProjectID       int64  `json:"project_id"`
	Name            string `json:"name"`
	TaskDescription string `json:"task_description,omitempty"`
	CreatedTS       int64  `json:"created_ts"`
}

// Message is a stored message. Timestamps are microseconds since the Unix epoch.
type Message struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	SenderID    int64      `json:"sender_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	ThreadID    string     `json:"thread_id,omitempty"`
	Importance  Importance `json:"importance"`
	AckRequired bool       `json:"ack_required"`
	CreatedTS   int64      `json:"created_ts"`
}

// Recipient is one addressee of a message with its read and ack state.
type Recipient struct {
	MessageID int64         `json:"message_id"`
	AgentID   int64         `json:"agent_id"`
	Kind      RecipientKind `json:"kind"`
	ReadTS    *int64        `json:"read_ts,omitempty"`
	AckTS     *int64        `json:"ack_ts,omitempty"`
}
