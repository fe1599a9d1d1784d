package local

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

const testVocab = "[PAD]\n[UNK]\n[CLS]\n[SEP]\nstor\n##age\nobject\n##s\n.\n"

func newModelServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/acme/tiny-embed/resolve/main/config.json":
			_, _ = w.Write([]byte(`{"hidden_size": 48}`))
		case "/acme/tiny-embed/resolve/main/vocab.txt":
			_, _ = w.Write([]byte(testVocab))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoaderDownloadsAndReportsProgress(t *testing.T) {
	var hits atomic.Int32
	srv := newModelServer(t, &hits)
	loader := NewLoader(Config{BaseURL: srv.URL, Model: "acme/tiny-embed", CacheDir: t.TempDir()})

	var events []domain.FileProgress
	m, err := loader.Load(context.Background(), func(p domain.FileProgress) { events = append(events, p) })
	require.NoError(t, err)
	assert.Equal(t, 48, m.Dimension())
	assert.Equal(t, "acme/tiny-embed", m.Name())
	assert.Equal(t, int32(2), hits.Load())

	// each file goes initiate -> loading... -> done, files in order
	byFile := map[string][]domain.FilePhase{}
	var order []string
	for _, e := range events {
		if _, seen := byFile[e.File]; !seen {
			order = append(order, e.File)
		}
		byFile[e.File] = append(byFile[e.File], e.Phase)
	}
	assert.Equal(t, []string{"config.json", "vocab.txt"}, order)
	for file, phases := range byFile {
		require.GreaterOrEqual(t, len(phases), 2, file)
		assert.Equal(t, domain.FileInitiate, phases[0], file)
		assert.Equal(t, domain.FileDone, phases[len(phases)-1], file)
	}
	last := events[len(events)-1]
	assert.Equal(t, int64(len(testVocab)), last.Loaded)
}

func TestLoaderUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := newModelServer(t, &hits)
	cfg := Config{BaseURL: srv.URL, Model: "acme/tiny-embed", CacheDir: t.TempDir()}

	_, err := NewLoader(cfg).Load(context.Background(), nil)
	require.NoError(t, err)

	var phases []domain.FilePhase
	_, err = NewLoader(cfg).Load(context.Background(), func(p domain.FileProgress) { phases = append(phases, p.Phase) })
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []domain.FilePhase{domain.FileInitiate, domain.FileDone, domain.FileInitiate, domain.FileDone}, phases)
}

func TestLoaderMissingFile(t *testing.T) {
	var hits atomic.Int32
	srv := newModelServer(t, &hits)
	loader := NewLoader(Config{BaseURL: srv.URL, Model: "acme/missing", CacheDir: t.TempDir()})

	_, err := loader.Load(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestWordPieceTokenize(t *testing.T) {
	vocab := map[string]int{}
	for i, tok := range strings.Split(strings.TrimSpace(testVocab), "\n") {
		vocab[tok] = i
	}
	m, err := NewModel("tiny", vocab, 16)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5, 6, 7, 8}, m.Tokenize("Storage objects."))
	assert.Equal(t, []int{1}, m.Tokenize("zebra"))

	rows, err := m.Embed(context.Background(), "storage objects")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestNewModelRequiresUnknownToken(t *testing.T) {
	_, err := NewModel("x", map[string]int{"a": 0}, 8)
	assert.Error(t, err)
}
