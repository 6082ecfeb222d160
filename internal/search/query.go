package search

import (
	"fmt"
	"strings"

	"github.com/rpggio/mailscope/internal/domain/mail"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Ranking orders results.
type Ranking string

const (
	RankingRelevance Ranking = "relevance"
	RankingRecency   Ranking = "recency"
)

// ParseRanking parses a ranking mode; empty means relevance.
func ParseRanking(s string) (Ranking, error) {
	switch Ranking(strings.ToLower(strings.TrimSpace(s))) {
	case "", RankingRelevance:
		return RankingRelevance, nil
	case RankingRecency:
		return RankingRecency, nil
	default:
		return "", fmt.Errorf("%w: unknown ranking mode %q", ErrInvalidQuery, s)
	}
}

// Engine selects the relevance backend.
type Engine string

const (
	EngineLegacy  Engine = "legacy"
	EngineLexical Engine = "lexical"
	EngineHybrid  Engine = "hybrid"
)

// Engines lists every backend.
var Engines = []Engine{EngineLegacy, EngineLexical, EngineHybrid}

// ParseEngine parses a backend name; empty returns the empty engine so callers
// can fall back to their default.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return "", nil
	case EngineLegacy:
		return EngineLegacy, nil
	case EngineLexical:
		return EngineLexical, nil
	case EngineHybrid:
		return EngineHybrid, nil
	default:
		return "", fmt.Errorf("%w: unknown search engine %q", ErrInvalidQuery, s)
	}
}

// TimeRange bounds created_ts, inclusive on both ends.
type TimeRange struct {
	MinTS *int64 `json:"min_ts,omitempty"`
	MaxTS *int64 `json:"max_ts,omitempty"`
}

// Query is one search request.
type Query struct {
	Text        string            `json:"text"`
	DocKind     mail.DocKind      `json:"doc_kind,omitempty"`
	ProjectID   *int64            `json:"project_id,omitempty"`
	Importance  []mail.Importance `json:"importance,omitempty"`
	ThreadID    string            `json:"thread_id,omitempty"`
	AckRequired *bool             `json:"ack_required,omitempty"`
	TimeRange   TimeRange         `json:"time_range"`
	Ranking     Ranking           `json:"ranking,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Cursor      string            `json:"cursor,omitempty"`
	Explain     bool              `json:"explain,omitempty"`
}

// EffectiveLimit returns the page size: DefaultLimit when unset, clamped to [1, MaxLimit].
func (q Query) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultLimit
	case q.Limit > MaxLimit:
		return MaxLimit
	default:
		return q.Limit
	}
}

func (q Query) kind() mail.DocKind {
	if q.DocKind == "" {
		return mail.DocMessage
	}
	return q.DocKind
}

func (q Query) ranking() Ranking {
	if q.Ranking == "" {
		return RankingRelevance
	}
	return q.Ranking
}

// validate rejects requests no backend can answer.
func (q Query) validate() error {
	if _, ok := mail.ParseDocKind(string(q.DocKind)); !ok {
		return fmt.Errorf("%w: unknown doc kind %q", ErrInvalidQuery, q.DocKind)
	}
	if _, err := ParseRanking(string(q.Ranking)); err != nil {
		return err
	}
	for _, imp := range q.Importance {
		if _, ok := mail.ParseImportance(string(imp)); !ok {
			return fmt.Errorf("%w: unknown importance %q", ErrInvalidQuery, imp)
		}
	}
	if q.TimeRange.MinTS != nil && q.TimeRange.MaxTS != nil && *q.TimeRange.MinTS > *q.TimeRange.MaxTS {
		return fmt.Errorf("%w: time range min after max", ErrInvalidQuery)
	}
	return nil
}

// facets names the filters the query applies, in a fixed order.
func (q Query) facets() []string {
	var out []string
	if q.ProjectID != nil {
		out = append(out, "project")
	}
	if len(q.Importance) > 0 {
		out = append(out, "importance")
	}
	if q.ThreadID != "" {
		out = append(out, "thread")
	}
	if q.AckRequired != nil {
		out = append(out, "ack_required")
	}
	if q.TimeRange.MinTS != nil || q.TimeRange.MaxTS != nil {
		out = append(out, "time_range")
	}
	return out
}

// filter converts the query's facets into a store filter.
func (q Query) filter() MessageFilter {
	f := MessageFilter{
		ProjectID:   q.ProjectID,
		ThreadID:    q.ThreadID,
		AckRequired: q.AckRequired,
		MinTS:       q.TimeRange.MinTS,
		MaxTS:       q.TimeRange.MaxTS,
	}
	for _, imp := range q.Importance {
		parsed, _ := mail.ParseImportance(string(imp))
		f.Importance = append(f.Importance, string(parsed))
	}
	return f
}
