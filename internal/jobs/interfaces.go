package jobs

import (
	"context"

	"github.com/Harvey-AU/knowledge-crawler/internal/crawler"
	"github.com/Harvey-AU/knowledge-crawler/internal/db"
)

// Store defines the persistence operations the service needs
type Store interface {
	crawler.PageStore
	CreateKnowledgeBase(ctx context.Context, kb *db.KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, name string) (*db.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context) ([]db.KnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, kb *db.KnowledgeBase) error
}
