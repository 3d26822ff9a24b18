package chunker_test

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/creditgate/chunker"
)

func TestChunk_Greedy(t *testing.T) {
	got := chunker.Chunk("aa bb cc dd", 5)
	assert.Equal(t, []string{"aa bb", "cc dd"}, got)
}

func TestChunk_ExactFit(t *testing.T) {
	// "one two" is 7 characters including the separator.
	assert.Equal(t, []string{"one two", "three"}, chunker.Chunk("one two three", 7))
}

func TestChunk_OversizedTokenStandsAlone(t *testing.T) {
	got := chunker.Chunk("a supercalifragilistic b", 5)
	assert.Equal(t, []string{"a", "supercalifragilistic", "b"}, got)
}

func TestChunk_BlankText(t *testing.T) {
	assert.Nil(t, chunker.Chunk("", 10))
	assert.Nil(t, chunker.Chunk(" \n\t ", 10))
}

func TestChunk_DefaultSize(t *testing.T) {
	text := strings.Repeat("word ", 500)
	got := chunker.Chunk(text, 0)
	require.Len(t, got, 3)
	for _, c := range got {
		assert.LessOrEqual(t, len(c), chunker.DefaultChunkSize)
	}
}

// alphabet mixes ASCII with multi-byte runes so limits are checked in
// characters.
var alphabet = []rune("abcdefghijklmnopqrstuvwxyzçğıöşüé日本")

func TestChunk_CountsCharacters(t *testing.T) {
	assert.Equal(t, []string{"çç çç"}, chunker.Chunk("çç çç", 5))
	assert.Equal(t, []string{"çç", "çç"}, chunker.Chunk("çç çç", 4))
	assert.Equal(t, []string{"İstanbul", "Ankara"}, chunker.Chunk("İstanbul Ankara", 14))
}

func TestChunk_RoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	seps := []string{" ", "  ", "\n", "\t", " \n "}

	for iter := 0; iter < 500; iter++ {
		var b strings.Builder
		ntok := rng.IntN(60)
		for i := 0; i < ntok; i++ {
			if rng.IntN(4) == 0 {
				b.WriteString(seps[rng.IntN(len(seps))])
			}
			for range 1 + rng.IntN(25) {
				b.WriteRune(alphabet[rng.IntN(len(alphabet))])
			}
			b.WriteString(seps[rng.IntN(len(seps))])
		}
		text := b.String()
		limit := 1 + rng.IntN(40)

		chunks := chunker.Chunk(text, limit)
		assert.Equal(t, strings.Join(strings.Fields(text), " "), strings.Join(chunks, " "),
			"iter=%d limit=%d", iter, limit)
		for _, c := range chunks {
			require.NotEmpty(t, c)
			if utf8.RuneCountInString(c) > limit {
				assert.NotContains(t, c, " ", "only a single token may exceed the limit")
			}
		}
	}
}

func TestSplit_AssignsIDs(t *testing.T) {
	got := chunker.Split("doc", "alpha beta gamma", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "doc:0", got[0].ID)
	assert.Equal(t, "doc:1", got[1].ID)
	assert.Equal(t, 1, got[1].Seq)
	assert.Equal(t, "doc", got[1].DocumentID)
	assert.Equal(t, "gamma", got[1].Text)
}
