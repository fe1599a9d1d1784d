package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

func newOllamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pull":
			w.Header().Set("Content-Type", "application/x-ndjson")
			enc := json.NewEncoder(w)
			_ = enc.Encode(map[string]any{"status": "pulling manifest"})
			_ = enc.Encode(map[string]any{"status": "pulling aaa", "digest": "sha256:aaaaaaaaaaaaaaaaaaaa", "total": 100, "completed": 40})
			_ = enc.Encode(map[string]any{"status": "pulling aaa", "digest": "sha256:aaaaaaaaaaaaaaaaaaaa", "total": 100, "completed": 100})
			_ = enc.Encode(map[string]any{"status": "pulling bbb", "digest": "sha256:bbbbbbbbbbbbbbbbbbbb", "total": 10, "completed": 5})
			_ = enc.Encode(map[string]any{"status": "success"})
		case "/api/embed":
			var req struct {
				Model string `json:"model"`
				Input string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Input == "fail" {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "model crashed"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":      req.Model,
				"embeddings": [][]float32{{0.5, 0.5, 0.5, 0.5}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoaderMapsPullProgressToFiles(t *testing.T) {
	srv := newOllamaServer(t)
	loader, err := NewLoader(Config{Host: srv.URL, Model: "all-minilm", Pull: true})
	require.NoError(t, err)

	var events []domain.FileProgress
	m, err := loader.Load(context.Background(), func(p domain.FileProgress) { events = append(events, p) })
	require.NoError(t, err)
	assert.Equal(t, "all-minilm", m.Name())

	assert.Equal(t, []domain.FileProgress{
		{File: "sha256-aaaaaaaaaaaa", Phase: domain.FileInitiate, Total: 100},
		{File: "sha256-aaaaaaaaaaaa", Phase: domain.FileLoading, Loaded: 40, Total: 100},
		{File: "sha256-aaaaaaaaaaaa", Phase: domain.FileDone, Loaded: 100, Total: 100},
		{File: "sha256-bbbbbbbbbbbb", Phase: domain.FileInitiate, Total: 10},
		{File: "sha256-bbbbbbbbbbbb", Phase: domain.FileLoading, Loaded: 5, Total: 10},
		{File: "sha256-bbbbbbbbbbbb", Phase: domain.FileDone},
	}, events)
}

func TestLoaderWithoutPull(t *testing.T) {
	loader, err := NewLoader(Config{Host: "http://127.0.0.1:1", Model: "all-minilm"})
	require.NoError(t, err)

	called := false
	_, err = loader.Load(context.Background(), func(domain.FileProgress) { called = true })
	require.NoError(t, err)
	assert.False(t, called)
}

func TestModelEmbed(t *testing.T) {
	srv := newOllamaServer(t)
	loader, err := NewLoader(Config{Host: srv.URL, Model: "all-minilm"})
	require.NoError(t, err)
	m, err := loader.Load(context.Background(), nil)
	require.NoError(t, err)

	rows, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.Vector{0.5, 0.5, 0.5, 0.5}, rows[0])
	assert.Equal(t, 4, m.Dimension())

	_, err = m.Embed(context.Background(), "fail")
	assert.Error(t, err)
}

func TestNewLoaderRequiresModel(t *testing.T) {
	_, err := NewLoader(Config{})
	assert.Error(t, err)
}
