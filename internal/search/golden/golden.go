// Package golden holds the labeled relevance corpus and the regression gate
// that every search engine must pass.
package golden

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rpggio/mailscope/internal/domain/mail"
	"github.com/rpggio/mailscope/internal/search"
)

//go:embed corpus.yaml
var corpusYAML []byte

// Aggregate floors for one engine.
const (
	MinMeanNDCG5     = 0.70
	MinMeanMRR       = 0.65
	MinMeanPrecision = 0.30
	MinMeanRecall    = 0.50
	MinPassRate      = 0.80
)

// Message is one corpus message.
type Message struct {
	Subject     string `yaml:"subject"`
	Body        string `yaml:"body"`
	Thread      string `yaml:"thread"`
	Importance  string `yaml:"importance"`
	AckRequired bool   `yaml:"ack_required"`
	Sender      string `yaml:"sender"`
}

// Thresholds are per-query minimums.
type Thresholds struct {
	NDCG5      float64 `yaml:"ndcg5"`
	MRR        float64 `yaml:"mrr"`
	Precision3 float64 `yaml:"p3"`
	Recall5    float64 `yaml:"r5"`
}

// Query is one labeled benchmark query.
type Query struct {
	Label      string            `yaml:"label"`
	Intent     string            `yaml:"intent"`
	Text       string            `yaml:"text"`
	Importance []string          `yaml:"importance"`
	Thread     string            `yaml:"thread"`
	TimeRange  bool              `yaml:"time_range"`
	Ranking    string            `yaml:"ranking"`
	Judgments  map[string]string `yaml:"judgments"`
	Min        Thresholds        `yaml:"min"`
}

// Corpus is the full fixture.
type Corpus struct {
	Version  string    `yaml:"version"`
	Project  string    `yaml:"project"`
	Messages []Message `yaml:"messages"`
	Queries  []Query   `yaml:"queries"`
}

// Load parses the embedded corpus.
func Load() (Corpus, error) {
	var c Corpus
	if err := yaml.Unmarshal(corpusYAML, &c); err != nil {
		return Corpus{}, fmt.Errorf("parse golden corpus: %w", err)
	}
	for _, q := range c.Queries {
		for subject, grade := range q.Judgments {
			if _, err := ParseGrade(grade); err != nil {
				return Corpus{}, fmt.Errorf("query %s, %q: %w", q.Label, subject, err)
			}
		}
	}
	return c, nil
}

// ParseGrade maps a fixture grade name to a search.Grade.
func ParseGrade(s string) (search.Grade, error) {
	switch strings.ToLower(s) {
	case "not_relevant", "":
		return search.NotRelevant, nil
	case "marginal":
		return search.Marginal, nil
	case "relevant":
		return search.Relevant, nil
	case "highly":
		return search.Highly, nil
	default:
		return 0, fmt.Errorf("unknown grade %q", s)
	}
}

// Writer is the subset of the store needed to seed the corpus.
type Writer interface {
	EnsureProject(ctx context.Context, slug, humanKey string) (mail.Project, error)
	RegisterAgent(ctx context.Context, projectID int64, name, taskDescription string) (mail.Agent, error)
	SendMessage(ctx context.Context, msg mail.Message, recipients []mail.Recipient) (mail.Message, error)
}

// Seed writes the corpus into one project, oldest message first, and returns
// the project id.
func (c Corpus) Seed(ctx context.Context, w Writer) (int64, error) {
	project, err := w.EnsureProject(ctx, c.Project, c.Project)
	if err != nil {
		return 0, fmt.Errorf("seed project: %w", err)
	}

	var names []string
	seen := map[string]bool{}
	for _, m := range c.Messages {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			names = append(names, m.Sender)
		}
	}
	sort.Strings(names)

	agents := make(map[string]int64, len(names))
	for _, name := range names {
		a, err := w.RegisterAgent(ctx, project.ID, name, "bench")
		if err != nil {
			return 0, fmt.Errorf("seed agent %s: %w", name, err)
		}
		agents[name] = a.ID
	}

	for _, m := range c.Messages {
		_, err := w.SendMessage(ctx, mail.Message{
			ProjectID:   project.ID,
			SenderID:    agents[m.Sender],
			Subject:     m.Subject,
			Body:        m.Body,
			ThreadID:    m.Thread,
			Importance:  mail.Importance(m.Importance),
			AckRequired: m.AckRequired,
		}, nil)
		if err != nil {
			return 0, fmt.Errorf("seed message %q: %w", m.Subject, err)
		}
	}
	return project.ID, nil
}

// Searcher executes a query with options.
type Searcher interface {
	Execute(ctx context.Context, q search.Query, opts search.Options) (search.ScopedResponse, error)
}

// QueryResult is the outcome of one labeled query.
type QueryResult struct {
	Label       string         `json:"label"`
	Intent      string         `json:"intent"`
	Engine      search.Engine  `json:"engine"`
	Method      string         `json:"method"`
	Metrics     search.Metrics `json:"metrics"`
	ResultCount int            `json:"result_count"`
	Pass        bool           `json:"pass"`
	Failures    []string       `json:"failures,omitempty"`
	// Ordered is false when a recency query returned a later timestamp after
	// an earlier one.
	Ordered bool `json:"ordered"`
}

// Report aggregates one engine's run.
type Report struct {
	Engine    search.Engine `json:"engine"`
	Queries   []QueryResult `json:"queries"`
	MeanNDCG5 float64       `json:"mean_ndcg5"`
	MeanMRR   float64       `json:"mean_mrr"`
	MeanP3    float64       `json:"mean_p3"`
	MeanR5    float64       `json:"mean_r5"`
	PassRate  float64       `json:"pass_rate"`
}

// Failures lists the aggregate floors the report misses.
func (r Report) Failures() []string {
	var out []string
	check := func(name string, got, floor float64) {
		if got < floor {
			out = append(out, fmt.Sprintf("%s %.3f < %.2f", name, got, floor))
		}
	}
	check("mean NDCG@5", r.MeanNDCG5, MinMeanNDCG5)
	check("mean MRR", r.MeanMRR, MinMeanMRR)
	check("mean P@3", r.MeanP3, MinMeanPrecision)
	check("mean R@5", r.MeanR5, MinMeanRecall)
	check("pass rate", r.PassRate, MinPassRate)
	for _, q := range r.Queries {
		if !q.Ordered {
			out = append(out, fmt.Sprintf("%s: recency order violated", q.Label))
		}
	}
	return out
}

// Run evaluates every query against s with engine.
func (c Corpus) Run(ctx context.Context, s Searcher, projectID int64, engine search.Engine, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	report := Report{Engine: engine}
	for _, gq := range c.Queries {
		q := gq.query(projectID)
		resp, err := s.Execute(ctx, q, search.Options{Engine: engine})
		if err != nil {
			return Report{}, fmt.Errorf("query %s: %w", gq.Label, err)
		}

		titles := make([]string, len(resp.Results))
		ordered := true
		for i, r := range resp.Results {
			titles[i] = r.Result.Title
			if i > 0 && q.Ranking == search.RankingRecency {
				prev := resp.Results[i-1].Result.CreatedTS
				if prev != nil && r.Result.CreatedTS != nil && *r.Result.CreatedTS > *prev {
					ordered = false
				}
			}
		}

		judgments := make(map[string]search.Grade, len(gq.Judgments))
		for subject, g := range gq.Judgments {
			judgments[subject], _ = ParseGrade(g)
		}
		m := search.Score(titles, judgments)

		qr := QueryResult{
			Label:       gq.Label,
			Intent:      gq.Intent,
			Engine:      engine,
			Metrics:     m,
			ResultCount: len(titles),
			Ordered:     ordered,
		}
		if resp.Explain != nil {
			qr.Method = resp.Explain.Method
		}
		qr.Failures = gq.Min.check(m)
		qr.Pass = len(qr.Failures) == 0
		logger.Debug("golden query", "label", gq.Label, "engine", engine, "method", qr.Method,
			"ndcg5", m.NDCG5, "mrr", m.MRR, "pass", qr.Pass)
		report.Queries = append(report.Queries, qr)
	}

	n := float64(len(report.Queries))
	if n == 0 {
		return report, nil
	}
	passed := 0
	for _, qr := range report.Queries {
		report.MeanNDCG5 += qr.Metrics.NDCG5
		report.MeanMRR += qr.Metrics.MRR
		report.MeanP3 += qr.Metrics.Precision3
		report.MeanR5 += qr.Metrics.Recall5
		if qr.Pass {
			passed++
		}
	}
	report.MeanNDCG5 /= n
	report.MeanMRR /= n
	report.MeanP3 /= n
	report.MeanR5 /= n
	report.PassRate = float64(passed) / n
	return report, nil
}

func (gq Query) query(projectID int64) search.Query {
	pid := projectID
	q := search.Query{
		Text:      gq.Text,
		DocKind:   mail.DocMessage,
		ProjectID: &pid,
		ThreadID:  gq.Thread,
		Limit:     20,
		Explain:   true,
		Ranking:   search.RankingRelevance,
	}
	if gq.Ranking == string(search.RankingRecency) {
		q.Ranking = search.RankingRecency
	}
	for _, imp := range gq.Importance {
		q.Importance = append(q.Importance, mail.Importance(imp))
	}
	if gq.TimeRange {
		lo := int64(0)
		hi := time.Now().UnixMicro() + 1_000_000
		q.TimeRange = search.TimeRange{MinTS: &lo, MaxTS: &hi}
	}
	return q
}

func (t Thresholds) check(m search.Metrics) []string {
	var out []string
	if m.NDCG5 < t.NDCG5 {
		out = append(out, fmt.Sprintf("NDCG@5 %.3f < min %.3f", m.NDCG5, t.NDCG5))
	}
	if m.MRR < t.MRR {
		out = append(out, fmt.Sprintf("MRR %.3f < min %.3f", m.MRR, t.MRR))
	}
	if m.Precision3 < t.Precision3 {
		out = append(out, fmt.Sprintf("P@3 %.3f < min %.3f", m.Precision3, t.Precision3))
	}
	if m.Recall5 < t.Recall5 {
		out = append(out, fmt.Sprintf("R@5 %.3f < min %.3f", m.Recall5, t.Recall5))
	}
	return out
}
