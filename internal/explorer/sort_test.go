package explorer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func entryAt(id, ts int64, dir Direction) Entry {
	return Entry{MessageID: id, CreatedTS: ts, Direction: dir, Importance: "normal"}
}

func messageIDs(entries []Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.MessageID
	}
	return out
}

func TestSortEntries_Date(t *testing.T) {
	entries := []Entry{
		entryAt(1, 100, DirectionInbound),
		entryAt(2, 300, DirectionOutbound),
		entryAt(3, 200, DirectionInbound),
	}
	sortEntries(entries, SortDateDesc)
	require.Equal(t, []int64{2, 3, 1}, messageIDs(entries))

	sortEntries(entries, SortDateAsc)
	require.Equal(t, []int64{1, 3, 2}, messageIDs(entries))
}

func TestSortEntries_ImportanceThenNewest(t *testing.T) {
	entries := []Entry{
		{MessageID: 1, Importance: "low", CreatedTS: 500},
		{MessageID: 2, Importance: "urgent", CreatedTS: 100},
		{MessageID: 3, Importance: "high", CreatedTS: 200},
		{MessageID: 4, Importance: "high", CreatedTS: 300},
		{MessageID: 5, Importance: "weird", CreatedTS: 900},
		{MessageID: 6, Importance: "normal", CreatedTS: 50},
	}
	sortEntries(entries, SortImportanceDesc)
	require.Equal(t, []int64{2, 4, 3, 6, 1, 5}, messageIDs(entries))
}

func TestSortEntries_AgentAlphaUsesOtherParty(t *testing.T) {
	entries := []Entry{
		{MessageID: 1, SenderName: "ZuluFox", Direction: DirectionInbound, CreatedTS: 1},
		{MessageID: 2, SenderName: "Me", ToAgents: "alphaWolf", Direction: DirectionOutbound, CreatedTS: 2},
		{MessageID: 3, SenderName: "MidLake", Direction: DirectionInbound, CreatedTS: 3},
		{MessageID: 4, SenderName: "MidLake", Direction: DirectionInbound, CreatedTS: 9},
	}
	sortEntries(entries, SortAgentAlpha)
	require.Equal(t, []int64{2, 4, 3, 1}, messageIDs(entries))
}

func TestBuildGroups(t *testing.T) {
	entries := []Entry{
		{MessageID: 1, ProjectSlug: "beta", SenderName: "Bob", Direction: DirectionInbound},
		{MessageID: 2, ProjectSlug: "alpha", SenderName: "Me", ToAgents: "Ann", Direction: DirectionOutbound},
		{MessageID: 3, ProjectSlug: "beta", SenderName: "Ann", Direction: DirectionInbound},
	}

	groups := buildGroups(entries, GroupProject)
	require.Len(t, groups, 2)
	require.Equal(t, "alpha", groups[0].Key)
	require.Equal(t, "Project: alpha", groups[0].Label)
	require.Equal(t, []int64{1, 3}, messageIDs(groups[1].Entries))

	groups = buildGroups(entries, GroupAgent)
	require.Len(t, groups, 2)
	require.Equal(t, "Agent: Ann", groups[0].Label)
	require.Equal(t, []int64{2, 3}, messageIDs(groups[0].Entries))
	require.Equal(t, 1, groups[1].Count)
}

func TestComputeStats_OutboundNeverUnread(t *testing.T) {
	read := int64(5)
	thread := "T"
	entries := []Entry{
		{ProjectID: 1, SenderName: "Bob", ToAgents: "Me", Direction: DirectionInbound, AckRequired: true},
		{ProjectID: 1, SenderName: "Bob", ToAgents: "Me", Direction: DirectionInbound, ReadTS: &read, ThreadID: &thread},
		{ProjectID: 2, SenderName: "Me", ToAgents: "Bob, Cid", Direction: DirectionOutbound, ThreadID: &thread},
	}
	st := computeStats(entries)
	require.Equal(t, 2, st.InboundCount)
	require.Equal(t, 1, st.OutboundCount)
	require.Equal(t, 1, st.UnreadCount)
	require.Equal(t, 1, st.PendingAck)
	require.Equal(t, 1, st.UniqueThreads)
	require.Equal(t, 2, st.UniqueProjects)
	require.Equal(t, 3, st.UniqueAgents)
}

func TestQueryDefaults(t *testing.T) {
	q, err := Query{AgentName: " A ", Limit: 5000}.normalized()
	require.NoError(t, err)
	require.Equal(t, "A", q.AgentName)
	require.Equal(t, DirectionAll, q.Direction)
	require.Equal(t, SortDateDesc, q.Sort)
	require.Equal(t, GroupNone, q.Group)
	require.Equal(t, AckAll, q.AckFilter)
	require.Equal(t, MaxLimit, q.Limit)

	q, err = Query{AgentName: "A"}.normalized()
	require.NoError(t, err)
	require.Equal(t, DefaultLimit, q.Limit)
}

func TestQueryOffsetBound(t *testing.T) {
	q, err := Query{AgentName: "A", Limit: MaxLimit, Offset: MaxOffset}.normalized()
	require.NoError(t, err)
	require.Positive(t, q.Limit+q.Offset)

	for _, off := range []int{MaxOffset + 1, math.MaxInt} {
		_, err := Query{AgentName: "A", Offset: off}.normalized()
		require.ErrorIs(t, err, ErrInvalidQuery, "offset %d", off)
	}
}
