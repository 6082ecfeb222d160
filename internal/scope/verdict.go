package scope

// Verdict is the outcome of a scope decision.
type Verdict string

const (
	Allow  Verdict = "allow"
	Redact Verdict = "redact"
	Deny   Verdict = "deny"
)

// Reason records which cascade step produced a verdict.
type Reason string

const (
	ReasonIsSender           Reason = "is_sender"
	ReasonIsRecipient        Reason = "is_recipient"
	ReasonApprovedContact    Reason = "approved_contact"
	ReasonOpenPolicy         Reason = "open_policy"
	ReasonAutoPolicy         Reason = "auto_policy"
	ReasonContactsOnlyDenied Reason = "contacts_only_denied"
	ReasonBlockAllDenied     Reason = "block_all_denied"
	ReasonCrossProjectDenied Reason = "cross_project_denied"
	ReasonOperatorMode       Reason = "operator_mode"
	ReasonNonMessageEntity   Reason = "non_message_entity"
)

// UserMessage is the human explanation shown for a reason.
func (r Reason) UserMessage() string {
	switch r {
	case ReasonIsSender:
		return "You are the sender of this message."
	case ReasonIsRecipient:
		return "You are a recipient of this message."
	case ReasonApprovedContact:
		return "You have an approved contact with the sender."
	case ReasonOpenPolicy:
		return "The sender has an open contact policy."
	case ReasonAutoPolicy:
		return "The sender allows auto-contact."
	case ReasonContactsOnlyDenied:
		return "The sender restricts visibility to approved contacts only."
	case ReasonBlockAllDenied:
		return "The sender blocks all inbound visibility."
	case ReasonCrossProjectDenied:
		return "This message is from a different project you don't have access to."
	case ReasonOperatorMode:
		return "Operator mode: full visibility."
	case ReasonNonMessageEntity:
		return "Agent and project records are publicly visible."
	default:
		return string(r)
	}
}

// Decision pairs a verdict with its reason.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  Reason  `json:"reason"`
}

// Explanation returns the user-facing sentence for the decision.
func (d Decision) Explanation() string {
	return d.Reason.UserMessage()
}

func allow(r Reason) Decision  { return Decision{Verdict: Allow, Reason: r} }
func deny(r Reason) Decision   { return Decision{Verdict: Deny, Reason: r} }
func redact(r Reason) Decision { return Decision{Verdict: Redact, Reason: r} }
