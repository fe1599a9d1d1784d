package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ollama/ollama/api"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

const DefaultHost = "http://localhost:11434"

// Config configures the Ollama backend.
type Config struct {
	Host    string
	Model   string
	Pull    bool
	Timeout time.Duration
}

// Loader pulls the model through the Ollama API, mapping each layer of the pull
// to one file entry, and returns a Model backed by the embed endpoint.
type Loader struct {
	cfg    Config
	client *api.Client
}

func NewLoader(cfg Config) (*Loader, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Model == "" {
		return nil, errors.New("ollama model name is required")
	}
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 5 * time.Minute
	}
	return &Loader{cfg: cfg, client: api.NewClient(u, &http.Client{Timeout: t})}, nil
}

func (l *Loader) Load(ctx context.Context, report func(domain.FileProgress)) (embedding.Model, error) {
	if report == nil {
		report = func(domain.FileProgress) {}
	}
	if l.cfg.Pull {
		if err := l.pull(ctx, report); err != nil {
			return nil, err
		}
	}
	return &Model{client: l.client, name: l.cfg.Model}, nil
}

func (l *Loader) pull(ctx context.Context, report func(domain.FileProgress)) error {
	seen := map[string]domain.FilePhase{}
	var order []string
	err := l.client.Pull(ctx, &api.PullRequest{Model: l.cfg.Model}, func(p api.ProgressResponse) error {
		if p.Digest == "" {
			return nil
		}
		file := layerName(p.Digest)
		phase, ok := seen[file]
		if !ok {
			order = append(order, file)
			report(domain.FileProgress{File: file, Phase: domain.FileInitiate, Total: p.Total})
		}
		if phase == domain.FileDone {
			return nil
		}
		next := domain.FileLoading
		if p.Total > 0 && p.Completed >= p.Total {
			next = domain.FileDone
		}
		seen[file] = next
		report(domain.FileProgress{File: file, Phase: next, Loaded: p.Completed, Total: p.Total})
		return nil
	})
	if err != nil {
		return fmt.Errorf("pull %s: %w", l.cfg.Model, err)
	}
	// layers can finish without a final completed==total event
	for _, file := range order {
		if seen[file] != domain.FileDone {
			report(domain.FileProgress{File: file, Phase: domain.FileDone})
		}
	}
	return nil
}

func layerName(digest string) string {
	d := strings.TrimPrefix(strings.TrimPrefix(digest, "sha256:"), "sha256-")
	if len(d) > 12 {
		d = d[:12]
	}
	return "sha256-" + d
}

var _ embedding.Model = (*Model)(nil)

// Model embeds through a running Ollama server.
type Model struct {
	client    *api.Client
	name      string
	dimension atomic.Int64
}

// Name returns the Ollama model name.
func (m *Model) Name() string { return m.name }

// Dimension is unknown until the first embedding has been computed.
func (m *Model) Dimension() int { return int(m.dimension.Load()) }

// Embed returns the single pooled vector Ollama computes for text.
func (m *Model) Embed(ctx context.Context, text string) ([]domain.Vector, error) {
	resp, err := m.client.Embed(ctx, &api.EmbedRequest{Model: m.name, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama returned no embedding")
	}
	v := domain.Vector(resp.Embeddings[0])
	m.dimension.CompareAndSwap(0, int64(len(v)))
	return []domain.Vector{v}, nil
}
