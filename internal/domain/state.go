package domain

import (
	"errors"
	"fmt"
)

var (
	ErrModelLoad        = errors.New("model load failed")
	ErrEmbeddingCompute = errors.New("embedding failed")
	ErrChannelInit      = errors.New("pipeline worker unavailable")
	ErrInvalidTask      = errors.New("invalid task")
)

// Phase names the variant of a JobState.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseLoadingModel Phase = "loading-model"
	PhaseEmbedding    Phase = "embedding"
	PhaseGenerating   Phase = "generating"
	PhaseError        Phase = "error"
)

// JobState is the authoritative UI-facing pipeline state. Only the field matching
// Phase is meaningful; use the constructors so a transition always replaces the value.
type JobState struct {
	Phase   Phase
	Files   []FileProgress
	Percent int
	Message string
}

func Idle() JobState       { return JobState{Phase: PhaseIdle} }
func Generating() JobState { return JobState{Phase: PhaseGenerating} }

func LoadingModel(files []FileProgress) JobState {
	return JobState{Phase: PhaseLoadingModel, Files: append([]FileProgress(nil), files...)}
}

func Embedding(percent int) JobState {
	return JobState{Phase: PhaseEmbedding, Percent: percent}
}

func Failed(message string) JobState {
	return JobState{Phase: PhaseError, Message: message}
}

// String renders the state for status lines and logs.
func (s JobState) String() string {
	switch s.Phase {
	case PhaseLoadingModel:
		return fmt.Sprintf("loading model (%d files)", len(s.Files))
	case PhaseEmbedding:
		return fmt.Sprintf("embedding %d%%", s.Percent)
	case PhaseError:
		return "error: " + s.Message
	case "":
		return string(PhaseIdle)
	default:
		return string(s.Phase)
	}
}
