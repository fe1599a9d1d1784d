package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

type countingModel struct {
	calls int
}

func (m *countingModel) Name() string   { return "counting" }
func (m *countingModel) Dimension() int { return 2 }
func (m *countingModel) Embed(_ context.Context, text string) ([]domain.Vector, error) {
	m.calls++
	if text == "boom" {
		return nil, errors.New("boom")
	}
	return []domain.Vector{{float32(len(text)), 1}, {0, -0.5}}, nil
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCachedModelSkipsRepeatedTexts(t *testing.T) {
	store := openStore(t)
	inner := &countingModel{}
	loader := Loader{
		Inner: embedding.LoaderFunc(func(context.Context, func(domain.FileProgress)) (embedding.Model, error) {
			return inner, nil
		}),
		Store: store,
	}
	m, err := loader.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "counting", m.Name())

	first, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	second, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []domain.Vector{{5, 1}, {0, -0.5}}, second)
	assert.Equal(t, 1, inner.calls)

	n, err := store.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCachedModelDoesNotStoreErrors(t *testing.T) {
	store := openStore(t)
	inner := &countingModel{}
	m := &Model{inner: inner, store: store}

	_, err := m.Embed(context.Background(), "boom")
	assert.Error(t, err)
	_, err = m.Embed(context.Background(), "boom")
	assert.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestDecodeRejectsCorruptEntries(t *testing.T) {
	_, err := decodeRows([]byte{1, 0})
	assert.Error(t, err)
	_, err = decodeRows([]byte{1, 0, 0, 0, 9, 0, 0, 0, 1})
	assert.Error(t, err)

	// a row count the payload cannot hold is rejected before allocating
	_, err = decodeRows([]byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0})
	assert.Error(t, err)
	_, err = decodeRows([]byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff})
	assert.Error(t, err)

	rows, err := decodeRows(encodeRows([]domain.Vector{{1, 2}, {}}))
	require.NoError(t, err)
	assert.Equal(t, []domain.Vector{{1, 2}, {}}, rows)
}

func TestLoaderPropagatesLoadErrors(t *testing.T) {
	loader := Loader{
		Inner: embedding.LoaderFunc(func(context.Context, func(domain.FileProgress)) (embedding.Model, error) {
			return nil, errors.New("no model")
		}),
		Store: openStore(t),
	}
	_, err := loader.Load(context.Background(), nil)
	assert.EqualError(t, err, "no model")
}
