package scope

import "github.com/rpggio/mailscope/internal/domain/mail"

// Scoped is a visible result together with the decision that admitted it.
type Scoped struct {
	Result        mail.SearchResult `json:"result"`
	Decision      Decision          `json:"scope"`
	RedactionNote string            `json:"redaction_note,omitempty"`
}

// AuditEntry records one denied or redacted result.
type AuditEntry struct {
	ResultID    int64        `json:"result_id"`
	DocKind     mail.DocKind `json:"doc_kind"`
	Verdict     Verdict      `json:"verdict"`
	Reason      Reason       `json:"reason"`
	Explanation string       `json:"explanation"`
	Viewer      *Viewer      `json:"viewer,omitempty"`
}

// AuditSummary counts what a scoping pass did.
//
// VisibleCount+DeniedCount == TotalBefore, RedactedCount <= VisibleCount and
// len(Entries) == DeniedCount+RedactedCount.
type AuditSummary struct {
	TotalBefore   int          `json:"total_before"`
	VisibleCount  int          `json:"visible_count"`
	RedactedCount int          `json:"redacted_count"`
	DeniedCount   int          `json:"denied_count"`
	Entries       []AuditEntry `json:"entries"`
}

// Apply evaluates every result against ctx. Allowed results pass unchanged,
// redacted ones are transformed with policy, denied ones are dropped. Output and
// audit entries keep input order.
func Apply(results []mail.SearchResult, ctx Context, policy RedactionPolicy) ([]Scoped, AuditSummary) {
	idx := newIndex(ctx)

	var viewer *Viewer
	if ctx.Viewer != nil {
		v := *ctx.Viewer
		viewer = &v
	}

	visible := make([]Scoped, 0, len(results))
	summary := AuditSummary{TotalBefore: len(results), Entries: []AuditEntry{}}

	for _, r := range results {
		decision := idx.evaluate(r)
		switch decision.Verdict {
		case Allow:
			summary.VisibleCount++
			visible = append(visible, Scoped{Result: r, Decision: decision})
		case Redact:
			summary.VisibleCount++
			summary.RedactedCount++
			note := decision.Explanation()
			visible = append(visible, Scoped{
				Result:        ApplyRedaction(r, policy),
				Decision:      decision,
				RedactionNote: note,
			})
			summary.Entries = append(summary.Entries, auditEntry(r, decision, viewer))
		default:
			summary.DeniedCount++
			summary.Entries = append(summary.Entries, auditEntry(r, decision, viewer))
		}
	}
	return visible, summary
}

func auditEntry(r mail.SearchResult, d Decision, viewer *Viewer) AuditEntry {
	kind := r.DocKind
	if kind == "" {
		kind = mail.DocMessage
	}
	return AuditEntry{
		ResultID:    r.ID,
		DocKind:     kind,
		Verdict:     d.Verdict,
		Reason:      d.Reason,
		Explanation: d.Explanation(),
		Viewer:      viewer,
	}
}
