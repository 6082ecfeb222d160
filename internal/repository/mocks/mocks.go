package mocks

import (
	"context"

	"github.com/rpggio/mailscope/internal/explorer"
	"github.com/rpggio/mailscope/internal/scope"
	"github.com/rpggio/mailscope/internal/search"
	"github.com/stretchr/testify/mock"
)

// SearchStore is a mock for search.Store.
type SearchStore struct {
	mock.Mock
}

func (m *SearchStore) MessageCandidates(ctx context.Context, req search.CandidateRequest) (search.CandidateSet, error) {
	args := m.Called(ctx, req)
	if set, ok := args.Get(0).(search.CandidateSet); ok {
		return set, args.Error(1)
	}
	return search.CandidateSet{}, args.Error(1)
}

func (m *SearchStore) RecentMessages(ctx context.Context, req search.RecentRequest) (search.CandidateSet, error) {
	args := m.Called(ctx, req)
	if set, ok := args.Get(0).(search.CandidateSet); ok {
		return set, args.Error(1)
	}
	return search.CandidateSet{}, args.Error(1)
}

func (m *SearchStore) Entities(ctx context.Context, req search.EntityRequest) (search.EntitySet, error) {
	args := m.Called(ctx, req)
	if set, ok := args.Get(0).(search.EntitySet); ok {
		return set, args.Error(1)
	}
	return search.EntitySet{}, args.Error(1)
}

// ScopeLoader is a mock for search.ScopeLoader.
type ScopeLoader struct {
	mock.Mock
}

func (m *ScopeLoader) LoadScope(ctx context.Context, viewer scope.Viewer, messageIDs []int64) (scope.Context, error) {
	args := m.Called(ctx, viewer, messageIDs)
	if sc, ok := args.Get(0).(scope.Context); ok {
		return sc, args.Error(1)
	}
	return scope.Context{}, args.Error(1)
}

// ExplorerStore is a mock for explorer.Store.
type ExplorerStore struct {
	mock.Mock
}

func (m *ExplorerStore) ResolveAgent(ctx context.Context, name string, projectID *int64) ([]explorer.AgentRef, error) {
	args := m.Called(ctx, name, projectID)
	if refs, ok := args.Get(0).([]explorer.AgentRef); ok {
		return refs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ExplorerStore) MaxMessageID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ExplorerStore) Count(ctx context.Context, ref explorer.AgentRef, side explorer.Direction, f explorer.Filter) (int, error) {
	args := m.Called(ctx, ref, side, f)
	return args.Int(0), args.Error(1)
}

func (m *ExplorerStore) Fetch(ctx context.Context, ref explorer.AgentRef, side explorer.Direction, f explorer.Filter, limit int) ([]explorer.Entry, error) {
	args := m.Called(ctx, ref, side, f, limit)
	if rows, ok := args.Get(0).([]explorer.Entry); ok {
		return rows, args.Error(1)
	}
	return nil, args.Error(1)
}
