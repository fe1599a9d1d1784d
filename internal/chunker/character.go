package chunker

import (
	"raglab/internal/domain"
)

// CharacterSplitter cuts text into fixed windows of chunkSize runes, each
// starting overlap runes before the end of the previous one.
type CharacterSplitter struct {
	chunkSize int
	overlap   int
}

func NewCharacterSplitter(chunkSize, overlap int) *CharacterSplitter {
	if chunkSize <= 0 {
		chunkSize = domain.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &CharacterSplitter{chunkSize: chunkSize, overlap: overlap}
}

func (c *CharacterSplitter) Split(text string) []domain.TextBlock {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []domain.TextBlock{newBlock(text, 0, n, 0, domain.StrategyCharacter)}
	}

	var blocks []domain.TextBlock
	start := 0
	for start < n {
		end := min(start+c.chunkSize, n)
		blocks = append(blocks, newBlock(string(runes[start:end]), start, end, len(blocks), domain.StrategyCharacter))

		// step is chunkSize-overlap >= 1, so start strictly increases
		start = end - c.overlap
		// the tail is already covered by the block just emitted
		if n-start <= c.overlap {
			break
		}
	}
	return blocks
}
