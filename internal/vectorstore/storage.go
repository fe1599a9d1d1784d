package vectorstore

import "raglab/internal/domain"

// Storage holds block vectors and ranks them against a query vector.
type Storage interface {
	Init(dimension int) error
	Upsert(blocks []domain.TextBlock, vectors []domain.Vector) error
	Search(query domain.Vector, topK int) ([]domain.SearchResult, error)
	Clear() error
	Len() int
}
