package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

// Embedder backends.
const (
	BackendHashing = "hashing"
	BackendLocal   = "local"
	BackendOllama  = "ollama"
	BackendOpenAI  = "openai"
)

// HashingConfig configures the offline feature-hashing embedder.
type HashingConfig struct {
	Dimension int `yaml:"dimension"`
}

// LocalConfig configures the backend that downloads model files from a
// Hugging Face compatible hub.
type LocalConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Files     []string `yaml:"files,omitempty"`
	CacheDir  string   `yaml:"cache_dir,omitempty"`
	TokenEnv  string   `yaml:"token_env"`
	Dimension int      `yaml:"dimension,omitempty"`
}

// OllamaConfig configures the Ollama embed endpoint.
type OllamaConfig struct {
	Host        string `yaml:"host"`
	Pull        bool   `yaml:"pull"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Backend string                `yaml:"backend"`
	Model   string                `yaml:"model"`
	Pooling string                `yaml:"pooling"`
	Hashing *HashingConfig        `yaml:"hashing,omitempty"`
	Local   *LocalConfig          `yaml:"local,omitempty"`
	Ollama  *OllamaConfig         `yaml:"ollama,omitempty"`
	OpenAI  *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// CacheConfig controls the on-disk embedding cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

type UIConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
	TopK       int `yaml:"top_k"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Splitter domain.SplitConfig `yaml:"splitter"`
	Embedder EmbedderConfig     `yaml:"embedder"`
	Cache    CacheConfig        `yaml:"cache"`
	UI       UIConfig           `yaml:"ui"`
	Log      LogConfig          `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := &AppConfig{Splitter: domain.DefaultSplitConfig(), Cache: CacheConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./raglab.yaml first, then ~/.config/raglab/config.yaml.
// If neither exists, it writes defaults to ~/.config/raglab/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "raglab.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "raglab", "config.yaml"), nil
}

// Default returns the lab's initial settings: character splitting at 200
// with no overlap, and the snowflake-arctic-embed-xs model fetched locally.
func Default() *AppConfig {
	cfg := &AppConfig{
		Splitter: domain.DefaultSplitConfig(),
		Embedder: EmbedderConfig{Backend: BackendLocal, Pooling: string(embedding.PoolingMean)},
		Cache:    CacheConfig{Enabled: true},
		UI:       UIConfig{DebounceMS: 500, TopK: 3},
		Log:      LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Backend == "" {
		cfg.Embedder.Backend = BackendLocal
	}
	if cfg.Embedder.Pooling == "" {
		cfg.Embedder.Pooling = string(embedding.PoolingMean)
	}
	if cfg.UI.DebounceMS <= 0 {
		cfg.UI.DebounceMS = 500
	}
	if cfg.UI.TopK <= 0 {
		cfg.UI.TopK = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	switch cfg.Embedder.Backend {
	case BackendHashing:
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	case BackendLocal:
		if cfg.Embedder.Local == nil {
			cfg.Embedder.Local = &LocalConfig{}
		}
		if cfg.Embedder.Local.BaseURL == "" {
			cfg.Embedder.Local.BaseURL = "https://huggingface.co"
		}
		if cfg.Embedder.Local.TokenEnv == "" {
			cfg.Embedder.Local.TokenEnv = "HF_TOKEN"
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "Snowflake/snowflake-arctic-embed-xs"
		}
	case BackendOllama:
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaConfig{Pull: true}
		}
		if cfg.Embedder.Ollama.Host == "" {
			cfg.Embedder.Ollama.Host = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.TimeoutSecs == 0 {
			cfg.Embedder.Ollama.TimeoutSecs = 300
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "snowflake-arctic-embed:22m"
		}
	case BackendOpenAI:
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
	}
}

// Validate rejects settings that cannot be corrected silently. Out-of-range
// chunk sizes are not errors; the splitter clamps them.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Backend {
	case BackendHashing, BackendLocal, BackendOllama, BackendOpenAI:
	default:
		return fmt.Errorf("unknown embedder backend %q", c.Embedder.Backend)
	}
	if _, err := embedding.ParsePooling(c.Embedder.Pooling); err != nil {
		return err
	}
	if c.Splitter.Strategy != "" && !c.Splitter.Strategy.IsValid() {
		return fmt.Errorf("unknown split strategy %q", c.Splitter.Strategy)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SetBackend switches the embedder backend, resetting the model to that
// backend's default when the backend changes.
func (c *AppConfig) SetBackend(backend string) error {
	if backend == c.Embedder.Backend {
		return nil
	}
	c.Embedder.Backend = backend
	c.Embedder.Model = ""
	applyConfigDefaults(c)
	return c.Validate()
}

// Debounce is the quiet period before input changes are flushed.
func (c *AppConfig) Debounce() time.Duration {
	return time.Duration(c.UI.DebounceMS) * time.Millisecond
}

// LogLevel maps log.level onto slog.
func (c *AppConfig) LogLevel() slog.Level {
	l, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
