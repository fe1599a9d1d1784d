package tui

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raglab/internal/coordinator"
	"raglab/internal/domain"
	"raglab/internal/embedding"
	"raglab/internal/embedding/hashing"
	"raglab/internal/pipeline"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newModel(t *testing.T, in coordinator.Inputs) (Model, *coordinator.Coordinator) {
	t.Helper()
	ctx := context.Background()
	handle := pipeline.NewHandle(ctx, hashing.Loader{Dimension: 32})
	t.Cleanup(handle.Close)
	controller := pipeline.NewController(handle, "", embedding.PoolingMean, quiet)
	coord := coordinator.New(in, coordinator.Options{
		Logger: quiet,
		Dial: func() (pipeline.Transport, error) {
			return pipeline.Start(ctx, controller, pipeline.Options{Logger: quiet})
		},
	})
	t.Cleanup(func() { _ = coord.Close() })

	m := New(coord, Options{Debounce: time.Millisecond, TopK: 2})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), coord
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// drain feeds worker messages back into the model until the pipeline is idle.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for cmd != nil && time.Now().Before(deadline) {
		msg := cmd()
		if _, ok := msg.(responseMsg); !ok {
			t.Fatalf("unexpected message %T", msg)
		}
		m, cmd = step(t, m, msg)
		if p := m.State().Phase; p == domain.PhaseIdle || p == domain.PhaseError {
			return m
		}
	}
	return m
}

func TestTypingIsDebounced(t *testing.T) {
	m, coord := newModel(t, coordinator.Inputs{Split: domain.SplitConfig{Strategy: domain.StrategyCharacter, ChunkSize: 4}})

	m, cmd1 := step(t, m, key("a"))
	require.NotNil(t, cmd1)
	first := coord.Token()
	m, _ = step(t, m, key("b"))
	assert.Equal(t, "ab", coord.Inputs().Text)

	m, cmd := step(t, m, debounceMsg{token: first})
	assert.Nil(t, cmd)
	assert.Empty(t, coord.Blocks(), "superseded token does nothing")

	m, cmd = step(t, m, debounceMsg{token: coord.Token()})
	require.NotNil(t, cmd, "listening to the new worker")
	require.Len(t, coord.Blocks(), 1)
	assert.Equal(t, "ab", coord.Blocks()[0].Text)
	assert.Equal(t, domain.PhaseGenerating, m.State().Phase)

	m = drain(t, m, cmd)
	assert.NotEqual(t, domain.PhaseError, m.State().Phase)
}

func TestEndToEndMatches(t *testing.T) {
	m, coord := newModel(t, coordinator.Inputs{
		Text:  "Cats purr on warm mats. Rockets launch into orbit.",
		Query: "cats purr",
		Split: domain.SplitConfig{Strategy: domain.StrategyRecursiveCharacter, ChunkSize: 25},
	})

	m, cmd := step(t, m, debounceMsg{token: coord.Token()})
	m = drain(t, m, cmd)
	require.True(t, coord.Embedded())
	assert.Equal(t, domain.PhaseIdle, m.State().Phase)

	view := m.View()
	assert.Contains(t, view, "raglab")
	assert.Contains(t, view, "Top 2")
	assert.Contains(t, view, "Cats purr")
}

func TestStrategyToggle(t *testing.T) {
	m, coord := newModel(t, coordinator.Inputs{Split: domain.DefaultSplitConfig()})
	before := coord.Token()

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.NotNil(t, cmd)
	assert.Equal(t, domain.StrategyRecursiveCharacter, coord.Inputs().Split.Strategy)
	assert.Greater(t, coord.Token(), before)
	assert.Contains(t, m.View(), string(domain.StrategyRecursiveCharacter))
}

func TestNumericFieldsUpdateConfig(t *testing.T) {
	m, coord := newModel(t, coordinator.Inputs{Split: domain.DefaultSplitConfig()})

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldQuery, m.focus)
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, fieldSize, m.focus)

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	assert.Equal(t, 20, coord.Inputs().Split.ChunkSize)

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = step(t, m, key("5"))
	assert.Equal(t, 5, coord.Inputs().Split.Overlap)

	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, fieldSize, m.focus)
}

func TestStaleEpochIsIgnored(t *testing.T) {
	m, coord := newModel(t, coordinator.Inputs{Text: "x"})
	state := coord.State()

	m, cmd := step(t, m, responseMsg{resp: pipeline.Response{ID: "old", Status: pipeline.StatusError, Message: "boom"}, epoch: 42})
	assert.Nil(t, cmd)
	assert.Equal(t, state, m.State())

	_, cmd = step(t, m, channelClosedMsg{epoch: 42})
	assert.Nil(t, cmd)
	assert.Equal(t, state, coord.State())
}

func TestQuit(t *testing.T) {
	m, _ := newModel(t, coordinator.Inputs{})
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderBlocksMarksSharedText(t *testing.T) {
	out := renderBlocks([]domain.TextBlock{
		{Text: "abcd", Start: 0, End: 4},
		{Text: "cdef", Start: 2, End: 6},
	}, 0)
	assert.Equal(t, 2, strings.Count(out, "\n")+1)
	assert.Contains(t, out, "#1 [2:6]")
	assert.Contains(t, out, "ef")
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("The sky is blue. Grass is green.", "green grass")
	assert.Contains(t, out, "The sky is blue.")
	assert.Contains(t, out, "Grass is green.")
	assert.Equal(t, "a b", highlightBestSentence("a b", ""))
}
