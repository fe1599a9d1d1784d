package chunker

import (
	"unicode/utf8"

	"raglab/internal/domain"
)

// Splitter converts text into ordered, immutable blocks.
type Splitter interface {
	Split(text string) []domain.TextBlock
}

// New returns the splitter for cfg.Strategy. cfg is normalized first so the
// returned splitter can never be handed a non-terminating configuration.
func New(cfg domain.SplitConfig) Splitter {
	cfg, _ = cfg.Normalize()
	switch cfg.Strategy {
	case domain.StrategyRecursiveCharacter:
		return NewRecursiveSplitter(cfg.ChunkSize, cfg.Overlap, cfg.Separators)
	default:
		return NewCharacterSplitter(cfg.ChunkSize, cfg.Overlap)
	}
}

// Split segments text with the strategy selected by cfg.
func Split(text string, cfg domain.SplitConfig) []domain.TextBlock {
	return New(cfg).Split(text)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func newBlock(text string, start, end, index int, strategy domain.Strategy) domain.TextBlock {
	return domain.TextBlock{
		Text:  text,
		Start: start,
		End:   end,
		Metadata: map[string]any{
			"index":    index,
			"strategy": string(strategy),
		},
	}
}
