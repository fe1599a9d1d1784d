package local

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"raglab/internal/domain"
)

const (
	DefaultBaseURL = "https://huggingface.co"
	DefaultModel   = "Snowflake/snowflake-arctic-embed-xs"
)

// DefaultFiles are the artifacts the local backend needs from a model repo.
var DefaultFiles = []string{"config.json", "vocab.txt"}

type progressWriter struct {
	file    string
	total   int64
	written int64
	report  func(domain.FileProgress)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.written += int64(n)
	pw.report(domain.FileProgress{File: pw.file, Phase: domain.FileLoading, Loaded: pw.written, Total: pw.total})
	return n, nil
}

// Downloader fetches model artifacts from a Hugging Face style file server
// into a local cache directory.
type Downloader struct {
	baseURL  string
	model    string
	cacheDir string
	token    string
	client   *http.Client
}

func NewDownloader(baseURL, model, cacheDir, token string) *Downloader {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Downloader{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		cacheDir: cacheDir,
		token:    token,
		client:   http.DefaultClient,
	}
}

// Fetch makes sure file is cached and returns its local path. Progress is
// reported as initiate, zero or more loading events, then done.
func (d *Downloader) Fetch(ctx context.Context, file string, report func(domain.FileProgress)) (string, error) {
	if report == nil {
		report = func(domain.FileProgress) {}
	}
	report(domain.FileProgress{File: file, Phase: domain.FileInitiate})

	dest := filepath.Join(d.modelDir(), filepath.FromSlash(file))
	if info, err := os.Stat(dest); err == nil {
		report(domain.FileProgress{File: file, Phase: domain.FileDone, Loaded: info.Size(), Total: info.Size()})
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	size, err := d.download(ctx, d.fileURL(file), dest, &progressWriter{file: file, report: report})
	if err != nil {
		return "", err
	}
	report(domain.FileProgress{File: file, Phase: domain.FileDone, Loaded: size, Total: size})
	return dest, nil
}

func (d *Downloader) modelDir() string {
	return filepath.Join(d.cacheDir, strings.ReplaceAll(d.model, "/", "--"))
}

func (d *Downloader) fileURL(file string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", d.baseURL, d.model, file)
}

func (d *Downloader) download(ctx context.Context, url, dest string, pw *progressWriter) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", pw.file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download %s failed: status %d", pw.file, resp.StatusCode)
	}

	tmpFile := dest + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	pw.total = resp.ContentLength
	n, err := io.Copy(f, io.TeeReader(resp.Body, pw))
	closeErr := f.Close()

	if err != nil {
		os.Remove(tmpFile)
		return 0, fmt.Errorf("write file: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpFile)
		return 0, fmt.Errorf("close file: %w", closeErr)
	}

	if err := os.Rename(tmpFile, dest); err != nil {
		os.Remove(tmpFile)
		return 0, fmt.Errorf("rename file: %w", err)
	}

	return n, nil
}

// DefaultCacheDir returns the per-user model cache.
func DefaultCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "raglab", "models"), nil
}
