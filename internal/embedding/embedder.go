package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"raglab/internal/domain"
)

// Model is the opaque inference capability. Embed returns either one row per
// token or a single already-pooled row; pooling and normalization are applied
// by Postprocess, never by the caller.
type Model interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]domain.Vector, error)
}

// Loader constructs a Model, reporting per-file download progress as artifacts
// are discovered. report may be called from the loading goroutine only.
type Loader interface {
	Load(ctx context.Context, report func(domain.FileProgress)) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, report func(domain.FileProgress)) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, report func(domain.FileProgress)) (Model, error) {
	return f(ctx, report)
}

// Pooling reduces per-token rows to one vector.
type Pooling string

const (
	PoolingCLS  Pooling = "cls"
	PoolingMean Pooling = "mean"
)

// ParsePooling accepts the configured pooling name, defaulting to mean.
func ParsePooling(s string) (Pooling, error) {
	switch Pooling(s) {
	case PoolingMean, "":
		return PoolingMean, nil
	case PoolingCLS:
		return PoolingCLS, nil
	default:
		return "", fmt.Errorf("unknown pooling %q", s)
	}
}

var ErrNoRows = errors.New("model returned no vectors")

// Postprocess pools rows into a single vector and normalizes it to unit length.
func Postprocess(rows []domain.Vector, pooling Pooling) (domain.Vector, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	var pooled domain.Vector
	switch pooling {
	case PoolingCLS:
		pooled = append(domain.Vector(nil), rows[0]...)
	default:
		pooled = meanPool(rows)
	}
	return l2Normalize(pooled), nil
}

func meanPool(rows []domain.Vector) domain.Vector {
	dim := len(rows[0])
	sum := make([]float64, dim)
	for _, r := range rows {
		for i := 0; i < dim && i < len(r); i++ {
			sum[i] += float64(r[i])
		}
	}
	out := make(domain.Vector, dim)
	n := float64(len(rows))
	for i, v := range sum {
		out[i] = float32(v / n)
	}
	return out
}

func l2Normalize(vec domain.Vector) domain.Vector {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	result := make(domain.Vector, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}

	return result
}

// Cosine returns the cosine similarity of a and b.
func Cosine(a, b domain.Vector) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
