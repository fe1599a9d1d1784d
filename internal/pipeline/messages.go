package pipeline

import (
	"raglab/internal/domain"
)

// TaskFeatureExtraction is the only task the worker understands.
const TaskFeatureExtraction = "feature-extraction"

// Request asks the worker to embed items in order.
type Request struct {
	ID    string      `json:"id"`
	Task  string      `json:"task"`
	Model string      `json:"model"`
	Kind  domain.Kind `json:"kind"`
	Items []string    `json:"items"`
}

// Status discriminates Response variants.
type Status string

const (
	StatusLoading   Status = "loading"
	StatusEmbedding Status = "embedding"
	StatusReady     Status = "ready"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Response is one message from the worker. Only the fields of the variant
// named by Status are set; ID echoes the request that caused it.
type Response struct {
	ID     string      `json:"id"`
	Status Status      `json:"status"`
	Kind   domain.Kind `json:"kind,omitempty"`

	// loading
	File   string           `json:"file,omitempty"`
	Phase  domain.FilePhase `json:"phase,omitempty"`
	Loaded int64            `json:"loadedBytes,omitempty"`
	Total  int64            `json:"totalBytes,omitempty"`

	// embedding
	Completed int `json:"completedCount,omitempty"`
	Count     int `json:"totalCount,omitempty"`

	// complete
	Vectors []domain.VectorSet `json:"vectors,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// FileProgress extracts the download record carried by a loading response.
func (r Response) FileProgress() domain.FileProgress {
	return domain.FileProgress{File: r.File, Phase: r.Phase, Loaded: r.Loaded, Total: r.Total}
}

// Percent returns round(100 * completed / total) for an embedding response.
func (r Response) Percent() int {
	if r.Count <= 0 {
		return 0
	}
	return (200*r.Completed + r.Count) / (2 * r.Count)
}

func loadingResponse(req Request, p domain.FileProgress) Response {
	return Response{ID: req.ID, Status: StatusLoading, Kind: req.Kind, File: p.File, Phase: p.Phase, Loaded: p.Loaded, Total: p.Total}
}

func errorResponse(req Request, err error) Response {
	return Response{ID: req.ID, Status: StatusError, Kind: req.Kind, Message: err.Error()}
}
