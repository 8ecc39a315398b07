package mocks

import (
	"context"

	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/stretchr/testify/mock"
)

// MockDB is a mock implementation of the storage operations used by the
// crawler and the job service
type MockDB struct {
	mock.Mock
}

// SavePage mocks idempotent page storage
func (m *MockDB) SavePage(ctx context.Context, url, content string) (*db.Page, error) {
	args := m.Called(ctx, url, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Page), args.Error(1)
}

// SaveHistory mocks appending a history entry
func (m *MockDB) SaveHistory(ctx context.Context, entry db.HistoryEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ListHistory mocks reading all history entries
func (m *MockDB) ListHistory(ctx context.Context) ([]db.HistoryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.HistoryEntry), args.Error(1)
}

// CreateKnowledgeBase mocks inserting a knowledge base
func (m *MockDB) CreateKnowledgeBase(ctx context.Context, kb *db.KnowledgeBase) error {
	args := m.Called(ctx, kb)
	return args.Error(0)
}

// GetKnowledgeBase mocks looking up a knowledge base by name
func (m *MockDB) GetKnowledgeBase(ctx context.Context, name string) (*db.KnowledgeBase, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.KnowledgeBase), args.Error(1)
}

// ListKnowledgeBases mocks listing knowledge bases
func (m *MockDB) ListKnowledgeBases(ctx context.Context) ([]db.KnowledgeBase, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]db.KnowledgeBase), args.Error(1)
}

// UpdateKnowledgeBase mocks persisting knowledge base state
func (m *MockDB) UpdateKnowledgeBase(ctx context.Context, kb *db.KnowledgeBase) error {
	args := m.Called(ctx, kb)
	return args.Error(0)
}

// Ping mocks the storage health check
func (m *MockDB) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
