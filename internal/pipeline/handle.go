package pipeline

import (
	"context"
	"fmt"
	"sync"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

// HandleState is the lifecycle of the model handle. Ready is terminal.
type HandleState int

const (
	Unloaded HandleState = iota
	Loading
	Ready
)

func (s HandleState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unloaded"
	}
}

// attempt is one in-flight load. Joiners replay its events from the start,
// so every caller observes the same ordered progress stream.
type attempt struct {
	events   []domain.FileProgress
	changed  chan struct{}
	finished bool
	model    embedding.Model
	err      error
}

// Handle owns the single model instance of a session. The first caller starts
// the load; concurrent callers join it; once Ready the model is never rebuilt.
// A failed load returns the handle to Unloaded so a later request can retry.
type Handle struct {
	loader embedding.Loader
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   HandleState
	model   embedding.Model
	current *attempt
}

// NewHandle creates an unloaded handle. Loading runs under ctx, not under the
// context of whichever caller happened to trigger it.
func NewHandle(ctx context.Context, loader embedding.Loader) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	return &Handle{loader: loader, ctx: ctx, cancel: cancel}
}

// State returns the current lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Ensure returns the loaded model. report receives every progress event of the
// load the caller waited on, in order, before Ensure returns. waited is false
// when the model was already ready and no loading happened.
func (h *Handle) Ensure(ctx context.Context, report func(domain.FileProgress)) (m embedding.Model, waited bool, err error) {
	h.mu.Lock()
	if h.state == Ready {
		m = h.model
		h.mu.Unlock()
		return m, false, nil
	}
	if h.state == Unloaded {
		h.current = &attempt{changed: make(chan struct{})}
		h.state = Loading
		go h.load(h.current)
	}
	a := h.current
	h.mu.Unlock()

	seen := 0
	for {
		h.mu.Lock()
		pending := a.events[seen:]
		seen = len(a.events)
		finished, changed := a.finished, a.changed
		m, err = a.model, a.err
		h.mu.Unlock()

		if report != nil {
			for _, p := range pending {
				report(p)
			}
		}
		if finished {
			return m, true, err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}
}

func (h *Handle) load(a *attempt) {
	m, err := h.loader.Load(h.ctx, func(p domain.FileProgress) {
		h.mu.Lock()
		a.events = append(a.events, p)
		notify(a)
		h.mu.Unlock()
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	a.finished = true
	if err != nil {
		a.err = fmt.Errorf("%w: %v", domain.ErrModelLoad, err)
		h.state = Unloaded
	} else {
		a.model = m
		h.model = m
		h.state = Ready
	}
	h.current = nil
	notify(a)
}

func notify(a *attempt) {
	close(a.changed)
	a.changed = make(chan struct{})
}

// Close tears the handle down with its owning context; an in-flight load is cancelled.
func (h *Handle) Close() {
	h.cancel()
}
