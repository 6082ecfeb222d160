package scope

import "strings"

// BuildSQLClauses translates ctx into a coarse pre-filter over a messages table
// aliased as m. Operator mode yields no clause. The clause admits a superset of
// what Evaluate allows for a context loaded from the same store; Apply remains
// the enforcement point.
func BuildSQLClauses(ctx Context, nowMicros int64) ([]string, []any) {
	if ctx.Viewer == nil {
		return nil, nil
	}
	v := ctx.Viewer

	var parts []string
	var args []any

	parts = append(parts, "m.sender_id = ?")
	args = append(args, v.AgentID)

	parts = append(parts, "m.id IN (SELECT mr.message_id FROM message_recipients mr WHERE mr.agent_id = ?)")
	args = append(args, v.AgentID)

	// Absent policy counts as auto.
	parts = append(parts, `COALESCE((SELECT lower(trim(cp.policy)) FROM contact_policies cp
		WHERE cp.project_id = m.project_id AND cp.agent_id = m.sender_id
		AND (cp.expires_ts IS NULL OR cp.expires_ts > ?)), 'auto') NOT IN ('contacts_only', 'block_all')`)
	args = append(args, nowMicros)

	parts = append(parts, `EXISTS (SELECT 1 FROM approved_contacts ac
		WHERE ac.viewer_project_id = ? AND ac.viewer_agent_id = ?
		AND ac.project_id = m.project_id AND ac.agent_id = m.sender_id
		AND (ac.expires_ts IS NULL OR ac.expires_ts > ?))`)
	args = append(args, v.ProjectID, v.AgentID, nowMicros)

	return []string{"(" + strings.Join(parts, " OR ") + ")"}, args
}
