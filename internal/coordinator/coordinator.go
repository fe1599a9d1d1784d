// Package coordinator owns the UI-facing pipeline state. It debounces input
// changes, segments text, dispatches embedding requests to the worker and folds
// the worker's messages back into one JobState.
//
// A Coordinator is not safe for concurrent use; it is driven from a single
// loop such as a bubbletea Update function.
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"raglab/internal/chunker"
	"raglab/internal/domain"
	"raglab/internal/pipeline"
	"raglab/internal/vectorstore"
	"raglab/internal/vectorstore/memory"
)

// Inputs are the user-controlled values a flush acts on.
type Inputs struct {
	Text  string
	Split domain.SplitConfig
	Query string
}

// Dialer starts a worker transport.
type Dialer func() (pipeline.Transport, error)

type Options struct {
	// Model is sent with every request.
	Model  string
	Dial   Dialer
	Store  vectorstore.Storage
	Logger *slog.Logger
	// NewID generates request ids; uuid by default.
	NewID func() string
}

type job struct {
	kind domain.Kind
	gen  uint64
}

var kinds = []domain.Kind{domain.KindBlocks, domain.KindQuery}

type Coordinator struct {
	opts   Options
	logger *slog.Logger
	store  vectorstore.Storage

	inputs  Inputs
	token   uint64
	flushed *Inputs

	state  domain.JobState
	files  []domain.FileProgress
	blocks []domain.TextBlock
	query  domain.Vector

	transport pipeline.Transport
	epoch     uint64

	gen         map[domain.Kind]uint64
	jobs        map[string]job
	outstanding map[domain.Kind]string
	pending     map[domain.Kind]pipeline.Request
	dirty       map[domain.Kind]bool
}

func New(initial Inputs, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Store == nil {
		opts.Store = memory.NewStorage()
	}
	initial.Split, _ = initial.Split.Normalize()
	return &Coordinator{
		opts:        opts,
		logger:      opts.Logger,
		store:       opts.Store,
		inputs:      initial,
		state:       domain.Idle(),
		gen:         map[domain.Kind]uint64{},
		jobs:        map[string]job{},
		outstanding: map[domain.Kind]string{},
		pending:     map[domain.Kind]pipeline.Request{},
		dirty:       map[domain.Kind]bool{},
	}
}

// Change applies edit to the inputs and returns the debounce token for it.
// Only a Flush with the latest token does any work.
func (c *Coordinator) Change(edit func(*Inputs)) uint64 {
	edit(&c.inputs)
	c.token++
	return c.token
}

// Token returns the latest debounce token.
func (c *Coordinator) Token() uint64 { return c.token }

// Flush segments the text and dispatches embedding jobs for whatever changed
// since the previous flush. It reports false when token has been superseded.
func (c *Coordinator) Flush(token uint64) bool {
	if token != c.token {
		return false
	}

	split, fixed := c.inputs.Split.Normalize()
	if fixed {
		c.logger.Debug("split configuration clamped", "from", c.inputs.Split, "to", split)
	}
	c.inputs.Split = split

	textChanged := c.flushed == nil || c.flushed.Text != c.inputs.Text || !sameSplit(c.flushed.Split, split)
	queryChanged := c.flushed == nil || c.flushed.Query != c.inputs.Query
	snapshot := c.inputs
	c.flushed = &snapshot

	if textChanged {
		c.blocks = chunker.Split(c.inputs.Text, split)
		_ = c.store.Clear()
	}
	if queryChanged {
		c.query = nil
	}

	var submit []domain.Kind
	for _, k := range kinds {
		changed := (k == domain.KindBlocks && textChanged) || (k == domain.KindQuery && queryChanged)
		if changed || c.dirty[k] {
			submit = append(submit, k)
		}
	}
	if len(submit) == 0 {
		return true
	}

	if c.transport == nil {
		t, err := c.opts.Dial()
		if err != nil {
			if !errors.Is(err, domain.ErrChannelInit) {
				err = fmt.Errorf("%w: %v", domain.ErrChannelInit, err)
			}
			c.logger.Error("start embedding worker", "err", err)
			for _, k := range submit {
				c.dirty[k] = true
			}
			c.state = domain.Failed(err.Error())
			return true
		}
		c.transport = t
		c.epoch++
	}

	c.state = domain.Generating()
	for _, k := range submit {
		c.dirty[k] = false
		c.gen[k]++
		req := pipeline.Request{
			ID:    c.opts.NewID(),
			Task:  pipeline.TaskFeatureExtraction,
			Model: c.opts.Model,
			Kind:  k,
			Items: c.items(k),
		}
		c.jobs[req.ID] = job{kind: k, gen: c.gen[k]}
		c.dispatch(req)
	}
	return true
}

func (c *Coordinator) items(k domain.Kind) []string {
	if k == domain.KindQuery {
		if c.inputs.Query == "" {
			return nil
		}
		return []string{c.inputs.Query}
	}
	out := make([]string, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Text
	}
	return out
}

// dispatch sends req now, or parks it behind the job already outstanding for
// its kind. A parked request replaces any older parked one.
func (c *Coordinator) dispatch(req pipeline.Request) {
	if _, busy := c.outstanding[req.Kind]; busy {
		if old, ok := c.pending[req.Kind]; ok {
			delete(c.jobs, old.ID)
		}
		c.pending[req.Kind] = req
		return
	}
	if c.transport == nil {
		c.fail(req, fmt.Errorf("%w: no worker", domain.ErrChannelInit))
		return
	}
	if err := c.transport.Submit(req); err != nil {
		if errors.Is(err, domain.ErrChannelInit) {
			c.dropTransport()
		}
		c.fail(req, err)
		return
	}
	c.outstanding[req.Kind] = req.ID
	c.logger.Debug("request submitted", "id", req.ID, "kind", req.Kind, "items", len(req.Items))
}

func (c *Coordinator) fail(req pipeline.Request, err error) {
	delete(c.jobs, req.ID)
	c.dirty[req.Kind] = true
	c.logger.Error("submit request", "id", req.ID, "kind", req.Kind, "err", err)
	c.state = domain.Failed(err.Error())
}

// Handle folds one worker message into the state.
func (c *Coordinator) Handle(resp pipeline.Response) {
	j, ok := c.jobs[resp.ID]
	if !ok {
		c.logger.Debug("response for unknown request", "id", resp.ID, "status", resp.Status)
		return
	}
	current := j.gen == c.gen[j.kind]

	// an error holds until the next flush; progress from the other kind must
	// not replace it
	failed := c.state.Phase == domain.PhaseError

	switch resp.Status {
	case pipeline.StatusLoading:
		c.upsertFile(resp.FileProgress())
		if !failed {
			c.state = domain.LoadingModel(c.files)
		}
	case pipeline.StatusReady:
		if c.state.Phase == domain.PhaseLoadingModel {
			c.state = domain.Generating()
		}
	case pipeline.StatusEmbedding:
		if current && !failed {
			c.state = domain.Embedding(resp.Percent())
		}
	case pipeline.StatusComplete:
		c.finish(resp.ID, j)
		if !current {
			c.logger.Info("discarding stale result", "id", resp.ID, "kind", j.kind)
			return
		}
		if err := c.accept(j.kind, resp.Vectors); err != nil {
			c.dirty[j.kind] = true
			c.state = domain.Failed(err.Error())
			return
		}
		if c.state.Phase == domain.PhaseError {
			return
		}
		if c.busy() {
			c.state = domain.Generating()
		} else {
			c.state = domain.Idle()
		}
	case pipeline.StatusError:
		c.finish(resp.ID, j)
		if !current {
			c.logger.Info("discarding stale error", "id", resp.ID, "kind", j.kind, "message", resp.Message)
			return
		}
		c.dirty[j.kind] = true
		c.state = domain.Failed(resp.Message)
	default:
		c.logger.Warn("unknown response status", "id", resp.ID, "status", resp.Status)
	}
}

// finish retires the outstanding job and releases the parked one of its kind.
func (c *Coordinator) finish(id string, j job) {
	delete(c.jobs, id)
	if c.outstanding[j.kind] == id {
		delete(c.outstanding, j.kind)
	}
	if next, ok := c.pending[j.kind]; ok {
		delete(c.pending, j.kind)
		c.dispatch(next)
	}
}

func (c *Coordinator) accept(k domain.Kind, sets []domain.VectorSet) error {
	vecs := make([]domain.Vector, 0, len(sets))
	for _, s := range sets {
		if len(s) == 0 {
			return fmt.Errorf("%w: empty vector set", domain.ErrEmbeddingCompute)
		}
		vecs = append(vecs, s[0])
	}

	if k == domain.KindQuery {
		c.query = nil
		if len(vecs) > 0 {
			c.query = vecs[0]
		}
		return nil
	}

	if len(vecs) != len(c.blocks) {
		return fmt.Errorf("%w: got %d vectors for %d blocks", domain.ErrEmbeddingCompute, len(vecs), len(c.blocks))
	}
	if len(vecs) == 0 {
		return c.store.Clear()
	}
	if err := c.store.Init(len(vecs[0])); err != nil {
		return err
	}
	return c.store.Upsert(c.blocks, vecs)
}

// busy reports whether a job of the latest generation is still running or parked.
func (c *Coordinator) busy() bool {
	for _, j := range c.jobs {
		if j.gen == c.gen[j.kind] {
			return true
		}
	}
	return false
}

func (c *Coordinator) upsertFile(p domain.FileProgress) {
	for i := range c.files {
		if c.files[i].File == p.File {
			c.files[i] = p
			return
		}
	}
	c.files = append(c.files, p)
}

// ChannelClosed reports that the worker's response channel closed. In-flight
// jobs are lost; the next flush dials a new worker and resubmits them.
func (c *Coordinator) ChannelClosed(err error) {
	if err == nil {
		err = errors.New("worker stopped")
	}
	c.dropTransport()
	c.state = domain.Failed(fmt.Errorf("%w: %v", domain.ErrChannelInit, err).Error())
}

// dropTransport forgets the worker and every job it held; their kinds are
// resubmitted on the next flush.
func (c *Coordinator) dropTransport() {
	for _, j := range c.jobs {
		c.dirty[j.kind] = true
	}
	if c.transport != nil {
		_ = c.transport.Close()
	}
	c.transport = nil
	clear(c.jobs)
	clear(c.outstanding)
	clear(c.pending)
}

// Close stops the worker transport if one is open.
func (c *Coordinator) Close() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// Responses returns the live transport's message channel and its epoch. The
// epoch changes every time a new worker is dialled; the channel is nil when
// no worker is running.
func (c *Coordinator) Responses() (<-chan pipeline.Response, uint64) {
	if c.transport == nil {
		return nil, c.epoch
	}
	return c.transport.Responses(), c.epoch
}

func (c *Coordinator) State() domain.JobState { return c.state }

func (c *Coordinator) Inputs() Inputs { return c.inputs }

func (c *Coordinator) Blocks() []domain.TextBlock { return c.blocks }

// Files returns download progress per model file, ordered by first sight.
func (c *Coordinator) Files() []domain.FileProgress {
	return append([]domain.FileProgress(nil), c.files...)
}

// Overall is the mean completion of all files seen so far.
func (c *Coordinator) Overall() float64 {
	if len(c.files) == 0 {
		return 0
	}
	var sum float64
	for _, f := range c.files {
		sum += f.Percent()
	}
	return sum / float64(len(c.files))
}

// Embedded reports whether the current blocks and query both have vectors.
func (c *Coordinator) Embedded() bool {
	return c.query != nil && len(c.blocks) > 0 && c.store.Len() == len(c.blocks)
}

// Matches ranks the current blocks against the current query.
func (c *Coordinator) Matches(topK int) []domain.SearchResult {
	if !c.Embedded() {
		return nil
	}
	res, err := c.store.Search(c.query, topK)
	if err != nil {
		c.logger.Warn("similarity search", "err", err)
		return nil
	}
	return res
}

func sameSplit(a, b domain.SplitConfig) bool {
	return a.Strategy == b.Strategy && a.ChunkSize == b.ChunkSize && a.Overlap == b.Overlap &&
		slices.Equal(a.Separators, b.Separators)
}
