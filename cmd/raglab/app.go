package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"raglab/internal/config"
	"raglab/internal/coordinator"
	"raglab/internal/domain"
	"raglab/internal/embedding"
	"raglab/internal/embedding/cache"
	"raglab/internal/embedding/hashing"
	"raglab/internal/embedding/local"
	"raglab/internal/embedding/ollama"
	"raglab/internal/embedding/openai"
	"raglab/internal/pipeline"
)

//go:embed sample.txt
var sampleText string

// loadConfig resolves --config and applies the command line overrides.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, string, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		if err := cfg.SetBackend(backend); err != nil {
			return nil, "", fmt.Errorf("--backend: %w", err)
		}
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
	}
	applySplitFlags(cmd, &cfg.Splitter)
	return cfg, path, nil
}

func applySplitFlags(cmd *cobra.Command, split *domain.SplitConfig) {
	if f := cmd.Flags().Lookup("strategy"); f != nil && f.Changed {
		split.Strategy = domain.Strategy(f.Value.String())
	}
	if n, err := cmd.Flags().GetInt("size"); err == nil && n > 0 {
		split.ChunkSize = n
	}
	if n, err := cmd.Flags().GetInt("overlap"); err == nil && n >= 0 {
		split.Overlap = n
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newLoader assembles the configured embedding backend.
func newLoader(cfg *config.AppConfig) (embedding.Loader, error) {
	e := cfg.Embedder
	switch e.Backend {
	case config.BackendHashing:
		return hashing.Loader{Dimension: e.Hashing.Dimension}, nil
	case config.BackendLocal:
		var token string
		if e.Local.TokenEnv != "" {
			token = os.Getenv(e.Local.TokenEnv)
		}
		return local.NewLoader(local.Config{
			BaseURL:   e.Local.BaseURL,
			Model:     e.Model,
			Files:     e.Local.Files,
			CacheDir:  e.Local.CacheDir,
			Token:     token,
			Dimension: e.Local.Dimension,
		}), nil
	case config.BackendOllama:
		return ollama.NewLoader(ollama.Config{
			Host:    e.Ollama.Host,
			Model:   e.Model,
			Pull:    e.Ollama.Pull,
			Timeout: time.Duration(e.Ollama.TimeoutSecs) * time.Second,
		})
	case config.BackendOpenAI:
		return openai.NewLoader(openai.Config{
			BaseURL:   e.OpenAI.BaseURL,
			APIKeyEnv: e.OpenAI.APIKeyEnv,
			Model:     e.Model,
			Timeout:   time.Duration(e.OpenAI.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", e.Backend)
	}
}

// session owns the model handle for one process. Workers come and go; the
// handle and its loaded model outlive them.
type session struct {
	cfg        *config.AppConfig
	logger     *slog.Logger
	handle     *pipeline.Handle
	controller *pipeline.Controller
	store      *cache.Store
}

func newSession(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*session, error) {
	loader, err := newLoader(cfg)
	if err != nil {
		return nil, err
	}
	pooling, err := embedding.ParsePooling(cfg.Embedder.Pooling)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	if cfg.Cache.Enabled {
		path := cfg.Cache.Path
		if path == "" {
			dir, err := os.UserCacheDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "raglab", "embeddings.db")
		}
		store, err := cache.Open(path)
		if err != nil {
			// the cache is an optimisation; run without it
			logger.Warn("embedding cache disabled", "path", path, "err", err)
		} else {
			s.store = store
			loader = cache.Loader{Inner: loader, Store: store}
		}
	}

	s.handle = pipeline.NewHandle(ctx, loader)
	s.controller = pipeline.NewController(s.handle, cfg.Embedder.Model, pooling, logger)
	logger.Info("session ready", "backend", cfg.Embedder.Backend, "model", cfg.Embedder.Model, "pooling", pooling)
	return s, nil
}

func (s *session) dialer(ctx context.Context) coordinator.Dialer {
	return func() (pipeline.Transport, error) {
		return pipeline.Start(ctx, s.controller, pipeline.Options{Logger: s.logger})
	}
}

func (s *session) newCoordinator(ctx context.Context, in coordinator.Inputs) *coordinator.Coordinator {
	return coordinator.New(in, coordinator.Options{
		Model:  s.cfg.Embedder.Model,
		Dial:   s.dialer(ctx),
		Logger: s.logger,
	})
}

func (s *session) Close() {
	s.handle.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("close embedding cache", "err", err)
		}
	}
}

// readInput returns the contents of path, or stdin for "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// drive feeds worker messages into coord until it settles in Idle or Error.
// report sees every state the coordinator passes through.
func drive(ctx context.Context, coord *coordinator.Coordinator, report func(domain.JobState)) error {
	for {
		st := coord.State()
		switch st.Phase {
		case domain.PhaseIdle:
			return nil
		case domain.PhaseError:
			return fmt.Errorf("pipeline: %s", st.Message)
		}

		ch, _ := coord.Responses()
		if ch == nil {
			return fmt.Errorf("pipeline: %w", domain.ErrChannelInit)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-ch:
			if !ok {
				coord.ChannelClosed(nil)
			} else {
				coord.Handle(resp)
			}
			if report != nil {
				report(coord.State())
			}
		}
	}
}
