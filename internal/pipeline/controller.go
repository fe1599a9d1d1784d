package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"raglab/internal/domain"
	"raglab/internal/embedding"
)

// Controller turns requests into embeddings using the session's model handle.
type Controller struct {
	handle  *Handle
	modelID string
	pooling embedding.Pooling
	logger  *slog.Logger
}

// NewController binds a handle for the model named modelID. An empty modelID
// accepts requests naming any model.
func NewController(handle *Handle, modelID string, pooling embedding.Pooling, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{handle: handle, modelID: modelID, pooling: pooling, logger: logger}
}

// Handle returns the model handle the controller embeds with.
func (c *Controller) Handle() *Handle {
	return c.handle
}

// Embed embeds items in order, one pooled and normalized vector per item.
// emit receives loading, ready and embedding progress for req; the terminal
// complete or error message is left to the caller. Empty input returns
// immediately without touching the model. Any item failure aborts the batch.
func (c *Controller) Embed(ctx context.Context, req Request, emit func(Response)) ([]domain.VectorSet, error) {
	if len(req.Items) == 0 {
		return []domain.VectorSet{}, nil
	}

	model, waited, err := c.handle.Ensure(ctx, func(p domain.FileProgress) {
		emit(loadingResponse(req, p))
	})
	if err != nil {
		return nil, err
	}
	if waited {
		emit(Response{ID: req.ID, Status: StatusReady, Kind: req.Kind})
	}

	total := len(req.Items)
	out := make([]domain.VectorSet, 0, total)
	for i, text := range req.Items {
		rows, err := model.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", domain.ErrEmbeddingCompute, i, err)
		}
		v, err := embedding.Postprocess(rows, c.pooling)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", domain.ErrEmbeddingCompute, i, err)
		}
		out = append(out, domain.VectorSet{v})
		emit(Response{ID: req.ID, Status: StatusEmbedding, Kind: req.Kind, Completed: i + 1, Count: total})
	}
	return out, nil
}

// Process validates req and runs it to a terminal complete or error message.
func (c *Controller) Process(ctx context.Context, req Request, emit func(Response)) {
	if req.Task != TaskFeatureExtraction {
		emit(errorResponse(req, domain.ErrInvalidTask))
		return
	}
	if !req.Kind.IsValid() {
		emit(errorResponse(req, fmt.Errorf("unknown kind %q", req.Kind)))
		return
	}
	if req.Model != "" && c.modelID != "" && req.Model != c.modelID {
		emit(errorResponse(req, fmt.Errorf("%w: model %q is not served here (have %q)", domain.ErrModelLoad, req.Model, c.modelID)))
		return
	}

	vectors, err := c.Embed(ctx, req, emit)
	if err != nil {
		c.logger.Warn("embedding request failed", "id", req.ID, "kind", req.Kind, "err", err)
		emit(errorResponse(req, err))
		return
	}
	c.logger.Debug("embedding request complete", "id", req.ID, "kind", req.Kind, "items", len(vectors))
	emit(Response{ID: req.ID, Status: StatusComplete, Kind: req.Kind, Vectors: vectors, Count: len(vectors)})
}
