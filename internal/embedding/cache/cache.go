package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

var bucketRows = []byte("rows")

// Store persists raw model rows keyed by model name and text.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRows)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key []byte) ([]domain.Vector, bool) {
	var rows []domain.Vector
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRows).Get(key)
		if data == nil {
			return errMiss
		}
		var err error
		rows, err = decodeRows(data)
		return err
	})
	return rows, err == nil
}

func (s *Store) put(key []byte, rows []domain.Vector) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRows).Put(key, encodeRows(rows))
	})
}

// Len returns the number of cached entries.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRows).Stats().KeyN
		return nil
	})
	return n, err
}

var errMiss = errors.New("cache miss")

// Loader wraps the model produced by Inner so repeated texts skip inference.
type Loader struct {
	Inner embedding.Loader
	Store *Store
}

func (l Loader) Load(ctx context.Context, report func(domain.FileProgress)) (embedding.Model, error) {
	m, err := l.Inner.Load(ctx, report)
	if err != nil {
		return nil, err
	}
	return &Model{inner: m, store: l.Store}, nil
}

// Model is a caching decorator around another Model.
type Model struct {
	inner embedding.Model
	store *Store
}

func (m *Model) Name() string   { return m.inner.Name() }
func (m *Model) Dimension() int { return m.inner.Dimension() }

func (m *Model) Embed(ctx context.Context, text string) ([]domain.Vector, error) {
	key := m.key(text)
	if rows, ok := m.store.get(key); ok {
		return rows, nil
	}
	rows, err := m.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	// a failed write only costs a recomputation later
	_ = m.store.put(key, rows)
	return rows, nil
}

func (m *Model) key(text string) []byte {
	return []byte(m.inner.Name() + "/" + strconv.Itoa(len(text)) + "/" + strconv.FormatUint(xxhash.Sum64String(text), 16))
}

func encodeRows(rows []domain.Vector) []byte {
	size := 4
	for _, r := range rows {
		size += 4 + 4*len(r)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rows)))
	for _, r := range rows {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r)))
		for _, v := range r {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

func decodeRows(data []byte) ([]domain.Vector, error) {
	errCorrupt := errors.New("corrupt cache entry")
	next := func() (uint32, bool) {
		if len(data) < 4 {
			return 0, false
		}
		v := binary.LittleEndian.Uint32(data)
		data = data[4:]
		return v, true
	}
	n, ok := next()
	// every row carries at least its 4-byte length
	if !ok || uint64(n) > uint64(len(data))/4 {
		return nil, errCorrupt
	}
	rows := make([]domain.Vector, 0, n)
	for i := uint32(0); i < n; i++ {
		dim, ok := next()
		if !ok || uint64(len(data)) < uint64(dim)*4 {
			return nil, errCorrupt
		}
		r := make(domain.Vector, dim)
		for j := range r {
			bits, _ := next()
			r[j] = math.Float32frombits(bits)
		}
		rows = append(rows, r)
	}
	return rows, nil
}
