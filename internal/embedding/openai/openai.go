package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

// Config configures the OpenAI-compatible embeddings backend.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// Loader validates credentials and returns a remote Model. There are no
// artifacts to download, so it reports no file progress.
type Loader struct {
	cfg Config
}

func NewLoader(cfg Config) *Loader {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Loader{cfg: cfg}
}

func (l *Loader) Load(ctx context.Context, _ func(domain.FileProgress)) (embedding.Model, error) {
	key := os.Getenv(l.cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", l.cfg.APIKeyEnv)
	}
	oc := openai.DefaultConfig(key)
	oc.BaseURL = l.cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: l.cfg.Timeout}
	return &Model{client: openai.NewClientWithConfig(oc), model: l.cfg.Model}, nil
}

var _ embedding.Model = (*Model)(nil)

// Model is an OpenAI-compatible embeddings client.
type Model struct {
	client    *openai.Client
	model     string
	dimension atomic.Int64
}

// Name returns the remote model name.
func (m *Model) Name() string { return m.model }

// Dimension is learned from the first response.
func (m *Model) Dimension() int { return int(m.dimension.Load()) }

// Embed returns the single pooled vector computed by the API.
func (m *Model) Embed(ctx context.Context, text string) ([]domain.Vector, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(m.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}

	src := resp.Data[0].Embedding
	v := make(domain.Vector, len(src))
	for i := range src {
		v[i] = float32(src[i])
	}
	m.dimension.CompareAndSwap(0, int64(len(v)))
	return []domain.Vector{v}, nil
}
