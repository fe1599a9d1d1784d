package domain

// TextBlock is a contiguous span of the source text treated as one embedding unit.
// Start and End are rune offsets into the source text.
type TextBlock struct {
	Text     string         `json:"text"`
	Start    int            `json:"start"`
	End      int            `json:"end"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult pairs a block with its similarity to a query.
type SearchResult struct {
	Index int       `json:"index"`
	Block TextBlock `json:"block"`
	Score float64   `json:"score"`
}

// Strategy selects the segmentation algorithm.
type Strategy string

const (
	StrategyCharacter          Strategy = "character"
	StrategyRecursiveCharacter Strategy = "recursive-character"
)

// Strategies lists the supported strategies in display order.
var Strategies = []Strategy{StrategyCharacter, StrategyRecursiveCharacter}

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyCharacter || s == StrategyRecursiveCharacter
}

// Next cycles to the following strategy.
func (s Strategy) Next() Strategy {
	if s == StrategyCharacter {
		return StrategyRecursiveCharacter
	}
	return StrategyCharacter
}

const (
	DefaultChunkSize = 200
	DefaultOverlap   = 0
)

// DefaultSeparators is ordered from coarse to fine. The empty string splits anywhere.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", " ", ""}

// SplitConfig configures the segmentation engine.
type SplitConfig struct {
	Strategy   Strategy `yaml:"strategy" json:"strategy"`
	ChunkSize  int      `yaml:"chunk_size" json:"chunk_size"`
	Overlap    int      `yaml:"overlap" json:"overlap"`
	Separators []string `yaml:"separators,omitempty" json:"separators,omitempty"`
}

// DefaultSplitConfig mirrors the lab's initial inputs.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		Strategy:   StrategyCharacter,
		ChunkSize:  DefaultChunkSize,
		Overlap:    DefaultOverlap,
		Separators: append([]string(nil), DefaultSeparators...),
	}
}

// Normalize clamps c into a configuration the engine can always terminate on.
// The returned bool is true when anything had to be corrected.
func (c SplitConfig) Normalize() (SplitConfig, bool) {
	fixed := false
	if !c.Strategy.IsValid() {
		c.Strategy = StrategyCharacter
		fixed = true
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
		fixed = true
	}
	if c.Overlap < 0 {
		c.Overlap = 0
		fixed = true
	}
	if c.Overlap >= c.ChunkSize {
		c.Overlap = c.ChunkSize - 1
		fixed = true
	}
	if len(c.Separators) == 0 {
		c.Separators = append([]string(nil), DefaultSeparators...)
	}
	return c, fixed
}

// Vector is a single embedding vector.
type Vector []float32

// VectorSet holds the vectors produced for one input item.
// After pooling it contains exactly one vector.
type VectorSet []Vector

// Kind tells whether a job embeds the query or the blocks.
type Kind string

const (
	KindQuery  Kind = "query"
	KindBlocks Kind = "blocks"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool { return k == KindQuery || k == KindBlocks }

// FilePhase is the lifecycle of one model artifact download.
type FilePhase string

const (
	FileInitiate FilePhase = "initiate"
	FileLoading  FilePhase = "loading"
	FileDone     FilePhase = "done"
)

// FileProgress reports the download state of one model artifact.
type FileProgress struct {
	File   string    `json:"file"`
	Phase  FilePhase `json:"phase"`
	Loaded int64     `json:"loaded,omitempty"`
	Total  int64     `json:"total,omitempty"`
}

// Percent returns completion in [0,100]. A finished file always counts as 100.
func (p FileProgress) Percent() float64 {
	if p.Phase == FileDone {
		return 100
	}
	if p.Total <= 0 {
		return 0
	}
	pct := 100 * float64(p.Loaded) / float64(p.Total)
	if pct > 100 {
		return 100
	}
	return pct
}
