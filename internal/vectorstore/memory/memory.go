package memory

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"raglab/internal/domain"
	"raglab/internal/embedding"
	"raglab/internal/vectorstore"
)

var (
	ErrDimension = errors.New("vector dimension mismatch")
	ErrLength    = errors.New("blocks and vectors length mismatch")
)

// Storage is a brute-force cosine store for the similarity view.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   []domain.Vector
	blocks    []domain.TextBlock
}

var _ vectorstore.Storage = (*Storage)(nil)

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors = nil
	s.blocks = nil
	return nil
}

func (s *Storage) Upsert(blocks []domain.TextBlock, vectors []domain.Vector) error {
	if len(blocks) != len(vectors) {
		return ErrLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.dimension {
			return ErrDimension
		}
	}
	s.blocks = append(s.blocks, blocks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns up to topK blocks by descending cosine similarity.
// Ties keep document order.
func (s *Storage) Search(query domain.Vector, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) > 0 && len(query) != s.dimension {
		return nil, ErrDimension
	}
	if topK <= 0 {
		topK = 5
	}

	results := make([]domain.SearchResult, len(s.vectors))
	for i, v := range s.vectors {
		results[i] = domain.SearchResult{Index: i, Block: s.blocks[i], Score: embedding.Cosine(v, query)}
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.blocks = nil
	return nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
