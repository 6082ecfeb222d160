package mail

// SearchResult is one hit returned by search. Optional fields are nil when unknown
// or when redaction removed them.
type SearchResult struct {
	DocKind     DocKind  `json:"doc_kind"`
	ID          int64    `json:"id"`
	ProjectID   *int64   `json:"project_id,omitempty"`
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Score       *float64 `json:"score,omitempty"`
	Importance  string   `json:"importance,omitempty"`
	AckRequired *bool    `json:"ack_required,omitempty"`
	CreatedTS   *int64   `json:"created_ts,omitempty"`
	ThreadID    *string  `json:"thread_id,omitempty"`
	FromAgent   *string  `json:"from_agent,omitempty"`
	SenderID    *int64   `json:"sender_id,omitempty"`
}

// ProjectOrZero returns the project id, treating a missing one as 0.
func (r SearchResult) ProjectOrZero() int64 {
	if r.ProjectID == nil {
		return 0
	}
	return *r.ProjectID
}
