package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordCounter(text string) int {
	return len(strings.Fields(text))
}

func TestChunk_EmptyReturnsNil(t *testing.T) {
	got := Chunk("", Config{ChunkSize: 50, Counter: wordCounter})
	assert.Nil(t, got)

	got = Chunk("   \n\t  ", Config{ChunkSize: 50, Counter: wordCounter})
	assert.Nil(t, got)
}

func TestChunk_SingleChunkWhenUnderBudget(t *testing.T) {
	text := "one two three four five"
	got := Chunk(text, Config{ChunkSize: 50, Counter: wordCounter})
	require.Len(t, got, 1)
	assert.Equal(t, text, got[0])
}

func TestChunk_SplitsParagraphsAcrossChunks(t *testing.T) {
	text := "para one has five words here.\n\npara two also has five words.\n\npara three has six words in it too."
	got := Chunk(text, Config{ChunkSize: 7, Overlap: 0, Counter: wordCounter})
	require.True(t, len(got) > 1, "expected more than one chunk, got %v", got)
	for _, c := range got {
		assert.LessOrEqual(t, wordCounter(c), 7+6, "no chunk should wildly exceed the target size")
	}
}

func TestChunk_OversizedParagraphSplitsBySentence(t *testing.T) {
	text := "Sentence one is here. Sentence two follows. Sentence three finishes this giant paragraph off nicely."
	got := Chunk(text, Config{ChunkSize: 6, Overlap: 0, Counter: wordCounter})
	require.True(t, len(got) > 1)
}

func TestChunk_OverlapTailCarriesForward(t *testing.T) {
	text := "alpha beta gamma delta.\n\nepsilon zeta eta theta.\n\niota kappa lambda mu."
	got := Chunk(text, Config{ChunkSize: 6, Overlap: 2, Counter: wordCounter})
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		tailWords := strings.Fields(got[i-1])
		headWords := strings.Fields(got[i])
		require.GreaterOrEqual(t, len(tailWords), 2)
		require.GreaterOrEqual(t, len(headWords), 2)
		assert.Equal(t, tailWords[len(tailWords)-2:], headWords[:2], "chunk %d opens with the last two words of chunk %d", i, i-1)
		assert.LessOrEqual(t, wordCounter(got[i]), 6, "the carried tail must not push a chunk past ChunkSize")
	}
}

func TestChunk_NoOverlapWhenConfigured(t *testing.T) {
	text := "one two.\n\nthree four.\n\nfive six."
	got := Chunk(text, Config{ChunkSize: 2, Overlap: 0, Counter: wordCounter})
	require.True(t, len(got) >= 2)
}
