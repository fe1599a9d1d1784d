package local

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"unicode"

	"raglab/internal/domain"
	"raglab/internal/embedding"
	"raglab/internal/embedding/hashing"
)

const (
	unknownToken   = "[UNK]"
	maxWordRunes   = 100
	vocabFile      = "vocab.txt"
	modelConfigKey = "config.json"
)

var _ embedding.Model = (*Model)(nil)

// Model tokenizes with greedy longest-match WordPiece over a downloaded
// vocabulary and projects each token id with a hashing model.
type Model struct {
	name      string
	vocab     map[string]int
	unknownID int
	proj      *hashing.Model
}

// Config configures the local backend.
type Config struct {
	BaseURL   string
	Model     string
	Files     []string
	CacheDir  string
	Token     string
	Dimension int
}

// Loader downloads the configured artifacts and builds a Model from them.
type Loader struct {
	cfg        Config
	downloader *Downloader
}

func NewLoader(cfg Config) *Loader {
	if len(cfg.Files) == 0 {
		cfg.Files = DefaultFiles
	}
	return &Loader{
		cfg:        cfg,
		downloader: NewDownloader(cfg.BaseURL, cfg.Model, cfg.CacheDir, cfg.Token),
	}
}

func (l *Loader) Load(ctx context.Context, report func(domain.FileProgress)) (embedding.Model, error) {
	paths := make(map[string]string, len(l.cfg.Files))
	for _, f := range l.cfg.Files {
		p, err := l.downloader.Fetch(ctx, f, report)
		if err != nil {
			return nil, err
		}
		paths[path.Base(f)] = p
	}

	vocabPath, ok := paths[vocabFile]
	if !ok {
		return nil, fmt.Errorf("model files must include %s", vocabFile)
	}
	vocab, err := readVocab(vocabPath)
	if err != nil {
		return nil, err
	}

	dim := l.cfg.Dimension
	if p, ok := paths[modelConfigKey]; ok && dim == 0 {
		if dim, err = readHiddenSize(p); err != nil {
			return nil, err
		}
	}
	return NewModel(l.downloader.model, vocab, dim)
}

// NewModel builds a model from a token -> id vocabulary.
func NewModel(name string, vocab map[string]int, dimension int) (*Model, error) {
	unk, ok := vocab[unknownToken]
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s token", unknownToken)
	}
	return &Model{name: name, vocab: vocab, unknownID: unk, proj: hashing.New(dimension)}, nil
}

// Name returns the model repository name.
func (m *Model) Name() string { return m.name }

// Dimension returns the dimensionality of the produced vectors.
func (m *Model) Dimension() int { return m.proj.Dimension() }

// Embed returns one row per WordPiece token.
func (m *Model) Embed(ctx context.Context, text string) ([]domain.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := m.Tokenize(text)
	if len(ids) == 0 {
		return []domain.Vector{make(domain.Vector, m.Dimension())}, nil
	}
	rows := make([]domain.Vector, len(ids))
	for i, id := range ids {
		rows[i] = m.proj.Project("wp:" + strconv.Itoa(id))
	}
	return rows, nil
}

// Tokenize returns WordPiece token ids for text.
func (m *Model) Tokenize(text string) []int {
	var ids []int
	for _, word := range basicTokens(text) {
		ids = append(ids, m.wordPiece(word)...)
	}
	return ids
}

func (m *Model) wordPiece(word string) []int {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int{m.unknownID}
	}
	var ids []int
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := m.vocab[piece]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int{m.unknownID}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

// basicTokens lowercases, splits on whitespace and isolates punctuation.
func basicTokens(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}

func readVocab(p string) (map[string]int, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int)
	scanner := bufio.NewScanner(f)
	id := 0
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	return vocab, nil
}

func readHiddenSize(p string) (int, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("read model config: %w", err)
	}
	var cfg struct {
		HiddenSize int `json:"hidden_size"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0, fmt.Errorf("parse model config: %w", err)
	}
	return cfg.HiddenSize, nil
}
