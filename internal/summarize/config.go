package summarize

// Config tunes chunking, concurrency, and collapse behavior for the
// map-reduce path. Zero values are replaced with the defaults below by New,
// except ChunkOverlap, which is replaced only when negative (zero is kept).
type Config struct {
	ChunkSize           int
	ChunkOverlap        int
	TokenMax            int
	MaxConcurrentChunks int
	MaxCollapseDepth    int
	Model               string
	Temperature         float64
}

const (
	defaultChunkSize           = 2048
	defaultChunkOverlap        = 200
	defaultTokenMax            = 3000
	defaultMaxConcurrentChunks = 5
	defaultMaxCollapseDepth    = 10
	defaultTemperature         = 0.2
)

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = defaultChunkOverlap
	}
	if c.TokenMax <= 0 {
		c.TokenMax = defaultTokenMax
	}
	if c.MaxConcurrentChunks <= 0 {
		c.MaxConcurrentChunks = defaultMaxConcurrentChunks
	}
	if c.MaxCollapseDepth <= 0 {
		c.MaxCollapseDepth = defaultMaxCollapseDepth
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	return c
}

// estimateSummaryTokens sizes the target summary length for a chunk or
// collapse group relative to its input: at least 50 tokens, at most 500,
// otherwise a tenth of the input.
func estimateSummaryTokens(inputTokens int) int {
	n := inputTokens / 10
	if n < 50 {
		return 50
	}
	if n > 500 {
		return 500
	}
	return n
}

// tokensToWords converts a token budget to an approximate word count for
// prompt instructions ("write N-M words").
func tokensToWords(tokens int) int {
	return int(float64(tokens) * 0.75)
}

func wordRange(tokens int) (int, int) {
	words := tokensToWords(tokens)
	min := words * 7 / 10
	if min < 5 {
		min = 5
	}
	return min, words
}
