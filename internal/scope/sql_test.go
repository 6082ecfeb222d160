package scope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildSQLClauses_Operator(t *testing.T) {
	clauses, args := BuildSQLClauses(Operator(), 1000)
	require.Empty(t, clauses)
	require.Empty(t, args)
}

func TestBuildSQLClauses_Viewer(t *testing.T) {
	clauses, args := BuildSQLClauses(viewerCtx(3, 30), 5000)
	require.Len(t, clauses, 1)

	clause := clauses[0]
	require.True(t, strings.HasPrefix(clause, "("))
	require.Contains(t, clause, "m.sender_id = ?")
	require.Contains(t, clause, "message_recipients")
	require.Contains(t, clause, "contact_policies")
	require.Contains(t, clause, "approved_contacts")
	require.Equal(t, 3, strings.Count(clause, " OR ")-strings.Count(clause, "OR cp.")-strings.Count(clause, "OR ac."))

	require.Equal(t, strings.Count(clause, "?"), len(args))
	require.Equal(t, []any{int64(30), int64(30), int64(5000), int64(3), int64(30), int64(5000)}, args)
}
