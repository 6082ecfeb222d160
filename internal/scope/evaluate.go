package scope

import "github.com/rpggio/mailscope/internal/domain/mail"

// Evaluate decides whether the viewer in ctx may see r. It never fails: missing
// data degrades to the most restrictive branch that still applies.
//
// Cascade, first match wins: operator, non-message entity, recipient or sender,
// approved contact, sender policy, project membership.
func Evaluate(r mail.SearchResult, ctx Context) Decision {
	return newIndex(ctx).evaluate(r)
}

func (idx *index) evaluate(r mail.SearchResult) Decision {
	if idx.ctx.Viewer == nil {
		return allow(ReasonOperatorMode)
	}
	if r.DocKind != "" && r.DocKind != mail.DocMessage {
		return allow(ReasonNonMessageEntity)
	}

	viewer := *idx.ctx.Viewer
	projectID := r.ProjectOrZero()

	if idx.isRecipient(r.ID, viewer.AgentID) {
		return allow(ReasonIsRecipient)
	}
	if r.SenderID == nil {
		return idx.membership(projectID)
	}

	sender := ContactKey{ProjectID: projectID, AgentID: *r.SenderID}
	if sender.AgentID == viewer.AgentID && projectID == viewer.ProjectID {
		return allow(ReasonIsSender)
	}
	if _, ok := idx.approved[sender]; ok {
		return allow(ReasonApprovedContact)
	}

	switch idx.policies[sender] {
	case mail.PolicyOpen:
		// Open still requires project membership without an approved link.
		if idx.inProject(projectID) {
			return allow(ReasonOpenPolicy)
		}
		return deny(ReasonCrossProjectDenied)
	case mail.PolicyBlockAll:
		return idx.restricted(ReasonBlockAllDenied, projectID)
	case mail.PolicyContactsOnly:
		return idx.restricted(ReasonContactsOnlyDenied, projectID)
	}
	return idx.membership(projectID)
}

func (idx *index) membership(projectID int64) Decision {
	if idx.inProject(projectID) {
		return allow(ReasonAutoPolicy)
	}
	return deny(ReasonCrossProjectDenied)
}

func (idx *index) restricted(reason Reason, projectID int64) Decision {
	if idx.ctx.RedactRestricted && idx.inProject(projectID) {
		return redact(reason)
	}
	return deny(reason)
}
