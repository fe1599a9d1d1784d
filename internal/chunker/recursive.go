package chunker

import (
	"strings"

	"raglab/internal/domain"
)

// RecursiveSplitter splits on the coarsest separator present, recurses into
// fragments that are still too large with finer separators, then greedily
// merges fragments back up to chunkSize.
//
// Separators stay attached to the fragment they end, and nothing is trimmed,
// so dropping each block's leading "overlap" runes and concatenating the rest
// yields the input exactly.
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveSplitter(chunkSize, overlap int, separators []string) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = domain.DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	if len(separators) == 0 {
		separators = domain.DefaultSeparators
	}
	return &RecursiveSplitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: append([]string(nil), separators...),
	}
}

func (r *RecursiveSplitter) Split(text string) []domain.TextBlock {
	if text == "" {
		return nil
	}
	return r.merge([]rune(text), r.fragments(text, r.separators))
}

// fragments returns non-empty pieces whose concatenation is text. A piece is
// longer than chunkSize only when no finer separator can split it.
func (r *RecursiveSplitter) fragments(text string, separators []string) []string {
	sep, finer, ok := pickSeparator(text, separators)
	if !ok {
		return []string{text}
	}
	var out []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= r.chunkSize || len(finer) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, r.fragments(piece, finer)...)
	}
	return out
}

func (r *RecursiveSplitter) merge(src []rune, fragments []string) []domain.TextBlock {
	var blocks []domain.TextBlock
	start, pos, overlap := 0, 0, 0
	for _, f := range fragments {
		n := runeLen(f)
		if pos > start && pos-start+n > r.chunkSize {
			blocks = append(blocks, r.block(src, start, pos, overlap, len(blocks)))
			// re-include the tail of the block just emitted, leaving room for f
			overlap = max(0, min(r.overlap, r.chunkSize-n, pos-start))
			start = pos - overlap
		}
		pos += n
	}
	if pos > start {
		blocks = append(blocks, r.block(src, start, pos, overlap, len(blocks)))
	}
	return blocks
}

func (r *RecursiveSplitter) block(src []rune, start, end, overlap, index int) domain.TextBlock {
	b := newBlock(string(src[start:end]), start, end, index, domain.StrategyRecursiveCharacter)
	b.Metadata["overlap"] = overlap
	return b
}

// pickSeparator returns the first separator that occurs in text (the empty
// separator always matches) together with the finer ones after it.
func pickSeparator(text string, separators []string) (string, []string, bool) {
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			return s, separators[i+1:], true
		}
	}
	return "", nil, false
}

func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StripOverlap returns the block text without the runes re-included from the
// previous block.
func StripOverlap(b domain.TextBlock) string {
	n, _ := b.Metadata["overlap"].(int)
	if n <= 0 {
		return b.Text
	}
	runes := []rune(b.Text)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[n:])
}
