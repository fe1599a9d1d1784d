package tui

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"raglab/internal/coordinator"
	"raglab/internal/domain"
	"raglab/internal/pipeline"
)

type field int

const (
	fieldText field = iota
	fieldQuery
	fieldSize
	fieldOverlap
	fieldCount
)

// debounceMsg fires when the quiet period after an input change ends.
type debounceMsg struct{ token uint64 }

type responseMsg struct {
	resp  pipeline.Response
	epoch uint64
}

type channelClosedMsg struct{ epoch uint64 }

type Options struct {
	Debounce time.Duration
	TopK     int
}

// Model is the Bubble Tea model for the lab. It owns the coordinator and is
// the only place its state changes.
type Model struct {
	coord    *coordinator.Coordinator
	debounce time.Duration
	topK     int

	text    textarea.Model
	query   textinput.Model
	size    textinput.Model
	overlap textinput.Model
	focus   field

	spinner spinner.Model
	bar     progress.Model
	blocks  viewport.Model

	listening uint64
	width     int
	ready     bool
}

// New creates a TUI model around coord, seeding the inputs from its current values.
func New(coord *coordinator.Coordinator, opts Options) Model {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	in := coord.Inputs()

	ta := textarea.New()
	ta.Placeholder = "Paste or type the text to split"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetValue(in.Text)
	ta.Focus()

	q := textinput.New()
	q.Prompt = "query> "
	q.Placeholder = "Type a query to rank blocks"
	q.CharLimit = 0
	q.SetValue(in.Query)

	size := numberInput("size ", in.Split.ChunkSize)
	ov := numberInput("overlap ", in.Split.Overlap)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		coord:    coord,
		debounce: opts.Debounce,
		topK:     opts.TopK,
		text:     ta,
		query:    q,
		size:     size,
		overlap:  ov,
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		blocks:   viewport.New(0, 0),
	}
}

func numberInput(prompt string, v int) textinput.Model {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.CharLimit = 6
	ti.Width = 6
	ti.SetValue(strconv.Itoa(v))
	return ti
}

// Init runs the first segmentation without waiting for the debounce window.
func (m Model) Init() tea.Cmd {
	token := m.coord.Token()
	return tea.Batch(textarea.Blink, m.spinner.Tick, func() tea.Msg { return debounceMsg{token: token} })
}

// Update handles key, window and pipeline events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyTab:
			cmd := m.setFocus((m.focus + 1) % fieldCount)
			return m, cmd
		case tea.KeyShiftTab:
			cmd := m.setFocus((m.focus + fieldCount - 1) % fieldCount)
			return m, cmd
		case tea.KeyCtrlT:
			return m, m.change(func(in *coordinator.Inputs) {
				in.Split.Strategy = in.Split.Strategy.Next()
			})
		}
		return m.updateFocused(msg)

	case debounceMsg:
		if !m.coord.Flush(msg.token) {
			return m, nil
		}
		m.refreshBlocks()
		cmd := m.listen()
		return m, cmd

	case responseMsg:
		if _, epoch := m.coord.Responses(); msg.epoch != epoch {
			return m, nil
		}
		m.coord.Handle(msg.resp)
		m.refreshBlocks()
		if ch, epoch := m.coord.Responses(); ch != nil && epoch == msg.epoch {
			return m, waitForResponse(ch, epoch)
		}
		return m, nil

	case channelClosedMsg:
		if ch, epoch := m.coord.Responses(); ch != nil && msg.epoch == epoch {
			m.coord.ChannelClosed(nil)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldText:
		m.text, cmd = m.text.Update(msg)
	case fieldQuery:
		m.query, cmd = m.query.Update(msg)
	case fieldSize:
		m.size, cmd = m.size.Update(msg)
	case fieldOverlap:
		m.overlap, cmd = m.overlap.Update(msg)
	}
	return m, cmd
}

// updateFocused forwards a key to the focused input and turns an edit into a
// debounced coordinator change.
func (m Model) updateFocused(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case fieldText:
		before := m.text.Value()
		m.text, cmd = m.text.Update(msg)
		if v := m.text.Value(); v != before {
			return m, tea.Batch(cmd, m.change(func(in *coordinator.Inputs) { in.Text = v }))
		}
	case fieldQuery:
		before := m.query.Value()
		m.query, cmd = m.query.Update(msg)
		if v := m.query.Value(); v != before {
			return m, tea.Batch(cmd, m.change(func(in *coordinator.Inputs) { in.Query = strings.TrimSpace(v) }))
		}
	case fieldSize:
		before := m.size.Value()
		m.size, cmd = m.size.Update(msg)
		if v := m.size.Value(); v != before {
			n := parseNumber(v)
			return m, tea.Batch(cmd, m.change(func(in *coordinator.Inputs) { in.Split.ChunkSize = n }))
		}
	case fieldOverlap:
		before := m.overlap.Value()
		m.overlap, cmd = m.overlap.Update(msg)
		if v := m.overlap.Value(); v != before {
			n := parseNumber(v)
			return m, tea.Batch(cmd, m.change(func(in *coordinator.Inputs) { in.Split.Overlap = n }))
		}
	}
	return m, cmd
}

// change records an input edit and schedules its flush after the debounce window.
func (m Model) change(edit func(*coordinator.Inputs)) tea.Cmd {
	token := m.coord.Change(edit)
	return tea.Tick(m.debounce, func(time.Time) tea.Msg { return debounceMsg{token: token} })
}

func (m *Model) setFocus(f field) tea.Cmd {
	m.focus = f
	m.text.Blur()
	m.query.Blur()
	m.size.Blur()
	m.overlap.Blur()
	switch f {
	case fieldText:
		return m.text.Focus()
	case fieldQuery:
		return m.query.Focus()
	case fieldSize:
		return m.size.Focus()
	case fieldOverlap:
		return m.overlap.Focus()
	}
	return nil
}

// listen starts reading from a newly dialled worker. Reads from an older
// worker end on their own once its channel closes.
func (m *Model) listen() tea.Cmd {
	ch, epoch := m.coord.Responses()
	if ch == nil || epoch == m.listening {
		return nil
	}
	m.listening = epoch
	return waitForResponse(ch, epoch)
}

func waitForResponse(ch <-chan pipeline.Response, epoch uint64) tea.Cmd {
	return func() tea.Msg {
		resp, ok := <-ch
		if !ok {
			return channelClosedMsg{epoch: epoch}
		}
		return responseMsg{resp: resp, epoch: epoch}
	}
}

func parseNumber(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// State exposes the coordinator state for status lines.
func (m Model) State() domain.JobState { return m.coord.State() }
