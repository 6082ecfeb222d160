package scope

import "github.com/rpggio/mailscope/internal/domain/mail"

const (
	// DefaultPlaceholder replaces bodies hidden by a sender's policy.
	DefaultPlaceholder = "[Content hidden: sender restricts visibility]"
	// StrictPlaceholder replaces bodies under the strict policy.
	StrictPlaceholder = "[Content hidden: access restricted]"
)

// RedactionPolicy selects which fields of a visible result are hidden.
type RedactionPolicy struct {
	RedactBody      bool   `json:"redact_body"`
	RedactSender    bool   `json:"redact_sender"`
	RedactThread    bool   `json:"redact_thread"`
	BodyPlaceholder string `json:"body_placeholder"`
}

// DefaultRedactionPolicy hides the body only.
func DefaultRedactionPolicy() RedactionPolicy {
	return RedactionPolicy{RedactBody: true, BodyPlaceholder: DefaultPlaceholder}
}

// StrictRedactionPolicy hides body, sender and thread.
func StrictRedactionPolicy() RedactionPolicy {
	return RedactionPolicy{
		RedactBody:      true,
		RedactSender:    true,
		RedactThread:    true,
		BodyPlaceholder: StrictPlaceholder,
	}
}

// ApplyRedaction returns a copy of r with the fields selected by p removed.
// id, project, kind, title, importance and timestamps are never touched.
func ApplyRedaction(r mail.SearchResult, p RedactionPolicy) mail.SearchResult {
	if p.RedactBody {
		r.Body = p.BodyPlaceholder
	}
	if p.RedactSender {
		r.FromAgent = nil
		r.SenderID = nil
	}
	if p.RedactThread {
		r.ThreadID = nil
	}
	return r
}
