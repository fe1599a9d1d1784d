package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "raglab.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, domain.StrategyCharacter, cfg.Splitter.Strategy)
	assert.Equal(t, 200, cfg.Splitter.ChunkSize)
	assert.Equal(t, 0, cfg.Splitter.Overlap)
	assert.Equal(t, "Snowflake/snowflake-arctic-embed-xs", cfg.Embedder.Model)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())
}

func TestLoadAppliesBackendDefaults(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		model   string
		inspect func(t *testing.T, cfg *AppConfig)
	}{
		{
			name:  "openai",
			body:  "embedder:\n  backend: openai\n",
			model: "text-embedding-3-small",
			inspect: func(t *testing.T, cfg *AppConfig) {
				require.NotNil(t, cfg.Embedder.OpenAI)
				assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
				assert.Equal(t, 30, cfg.Embedder.OpenAI.TimeoutSecs)
			},
		},
		{
			name:  "ollama keeps explicit model",
			body:  "embedder:\n  backend: ollama\n  model: nomic-embed-text\n  ollama:\n    pull: false\n",
			model: "nomic-embed-text",
			inspect: func(t *testing.T, cfg *AppConfig) {
				require.NotNil(t, cfg.Embedder.Ollama)
				assert.False(t, cfg.Embedder.Ollama.Pull)
				assert.Equal(t, "http://localhost:11434", cfg.Embedder.Ollama.Host)
			},
		},
		{
			name:  "hashing",
			body:  "embedder:\n  backend: hashing\n",
			model: "",
			inspect: func(t *testing.T, cfg *AppConfig) {
				require.NotNil(t, cfg.Embedder.Hashing)
				assert.Equal(t, 384, cfg.Embedder.Hashing.Dimension)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.model, cfg.Embedder.Model)
			assert.Equal(t, "mean", cfg.Embedder.Pooling)
			tt.inspect(t, cfg)
		})
	}
}

func TestLoadSplitterSection(t *testing.T) {
	cfg, err := Load(writeFile(t, "splitter:\n  strategy: recursive-character\n  chunk_size: 64\n  overlap: 8\n  separators: [\"\\n\", \" \"]\nui:\n  debounce_ms: 250\nlog:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.SplitConfig{
		Strategy:   domain.StrategyRecursiveCharacter,
		ChunkSize:  64,
		Overlap:    8,
		Separators: []string{"\n", " "},
	}, cfg.Splitter)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"backend":  "embedder:\n  backend: word2vec\n",
		"pooling":  "embedder:\n  pooling: max\n",
		"strategy": "splitter:\n  strategy: sentence\n",
		"level":    "log:\n  level: loud\n",
		"yaml":     "splitter: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Embedder.Backend = BackendHashing
	cfg.Embedder.Model = ""
	applyConfigDefaults(cfg)
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "raglab", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, Default(), cfg)

	// a project file wins over the user file
	require.NoError(t, os.WriteFile("raglab.yaml", []byte("embedder:\n  backend: hashing\n"), 0o644))
	cfg, path, err = LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, "raglab.yaml", path)
	assert.Equal(t, BackendHashing, cfg.Embedder.Backend)
}

func TestSetBackend(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.SetBackend(BackendOpenAI))
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)
	require.NotNil(t, cfg.Embedder.OpenAI)

	require.NoError(t, cfg.SetBackend(BackendOpenAI))
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.Model)

	assert.Error(t, cfg.SetBackend("word2vec"))
}
