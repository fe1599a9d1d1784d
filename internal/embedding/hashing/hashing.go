package hashing

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

const (
	DefaultDimension = 384
	probes           = 4
)

var _ embedding.Model = (*Model)(nil)

// Model is an offline signed feature-hashing embedder. Each token is projected
// onto a few pseudo-random coordinates, so texts sharing words end up close
// after pooling. It needs no artifacts and no corpus preparation.
type Model struct {
	name         string
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a hashing model producing vectors of the given dimension.
func New(dimension int) *Model {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Model{
		name:         "hashing-" + strconv.Itoa(dimension),
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this model.
func (m *Model) Name() string { return m.name }

// Dimension returns the dimensionality of the produced vectors.
func (m *Model) Dimension() int { return m.dimension }

// Embed returns one row per token. Text without tokens yields a single zero row.
func (m *Model) Embed(ctx context.Context, text string) ([]domain.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := m.Tokenize(text)
	if len(tokens) == 0 {
		return []domain.Vector{make(domain.Vector, m.dimension)}, nil
	}
	rows := make([]domain.Vector, len(tokens))
	for i, tok := range tokens {
		rows[i] = m.Project(tok)
	}
	return rows, nil
}

// Tokenize lowercases text and returns its word tokens without stopwords.
func (m *Model) Tokenize(text string) []string {
	raw := m.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := m.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Project maps a feature key onto a sparse signed vector.
func (m *Model) Project(key string) domain.Vector {
	vec := make(domain.Vector, m.dimension)
	for i := 0; i < probes; i++ {
		h := xxhash.Sum64String(key + "\x00" + strconv.Itoa(i))
		idx := h % uint64(m.dimension)
		if h>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return vec
}

// Loader returns a hashing model immediately; there is nothing to download.
type Loader struct {
	Dimension int
}

func (l Loader) Load(ctx context.Context, _ func(domain.FileProgress)) (embedding.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(l.Dimension), nil
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "so", "such", "into", "about", "can", "will", "just",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
