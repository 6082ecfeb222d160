package scope

import "github.com/rpggio/mailscope/internal/domain/mail"

// Viewer identifies the agent a query is answered for.
type Viewer struct {
	ProjectID int64 `json:"project_id"`
	AgentID   int64 `json:"agent_id"`
}

// ContactKey names an agent inside a project.
type ContactKey struct {
	ProjectID int64 `json:"project_id"`
	AgentID   int64 `json:"agent_id"`
}

// SenderPolicy is the contact policy a sender has published.
type SenderPolicy struct {
	ProjectID int64              `json:"project_id"`
	AgentID   int64              `json:"agent_id"`
	Policy    mail.ContactPolicy `json:"policy"`
}

// Context is everything a scope decision needs. A nil Viewer means operator mode.
type Context struct {
	Viewer           *Viewer
	ViewerProjectIDs []int64
	ApprovedContacts []ContactKey
	SenderPolicies   []SenderPolicy
	// RecipientMap lists recipient agent ids per message id.
	RecipientMap map[int64][]int64
	// RedactRestricted turns ContactsOnly/BlockAll denials into redactions for
	// viewers who belong to the message's project.
	RedactRestricted bool
}

// Operator returns a context with unrestricted access.
func Operator() Context {
	return Context{}
}

// IsOperator reports whether the context has no viewer restrictions.
func (c Context) IsOperator() bool {
	return c.Viewer == nil
}

// index is a Context prepared for repeated lookups.
type index struct {
	ctx        Context
	projects   map[int64]struct{}
	approved   map[ContactKey]struct{}
	policies   map[ContactKey]mail.ContactPolicy
	recipients map[int64]map[int64]struct{}
}

func newIndex(ctx Context) *index {
	idx := &index{
		ctx:        ctx,
		projects:   make(map[int64]struct{}, len(ctx.ViewerProjectIDs)),
		approved:   make(map[ContactKey]struct{}, len(ctx.ApprovedContacts)),
		policies:   make(map[ContactKey]mail.ContactPolicy, len(ctx.SenderPolicies)),
		recipients: make(map[int64]map[int64]struct{}, len(ctx.RecipientMap)),
	}
	for _, pid := range ctx.ViewerProjectIDs {
		idx.projects[pid] = struct{}{}
	}
	for _, c := range ctx.ApprovedContacts {
		idx.approved[c] = struct{}{}
	}
	for _, p := range ctx.SenderPolicies {
		idx.policies[ContactKey{ProjectID: p.ProjectID, AgentID: p.AgentID}] = p.Policy
	}
	for msgID, agents := range ctx.RecipientMap {
		set := make(map[int64]struct{}, len(agents))
		for _, a := range agents {
			set[a] = struct{}{}
		}
		idx.recipients[msgID] = set
	}
	return idx
}

func (idx *index) isRecipient(messageID, agentID int64) bool {
	set, ok := idx.recipients[messageID]
	if !ok {
		return false
	}
	_, ok = set[agentID]
	return ok
}

func (idx *index) inProject(projectID int64) bool {
	_, ok := idx.projects[projectID]
	return ok
}
