package memory_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/creditgate"
	"github.com/ineyio/creditgate/index/memory"
)

func chunk(doc string, seq int, text string, vec ...float32) creditgate.Chunk {
	return creditgate.Chunk{
		ID:         fmt.Sprintf("%s:%d", doc, seq),
		DocumentID: doc,
		Seq:        seq,
		Text:       text,
		Vector:     vec,
	}
}

func TestTopK_RanksByCosine(t *testing.T) {
	ctx := context.Background()
	x := memory.New(2)
	require.NoError(t, x.Upsert(ctx, "doc", []creditgate.Chunk{
		chunk("doc", 0, "east", 1, 0),
		chunk("doc", 1, "north", 0, 1),
		chunk("doc", 2, "northeast", 1, 1),
	}))

	got, err := x.TopK(ctx, "doc", []float32{0, 5}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "north", got[0].Chunk.Text)
	assert.Equal(t, "northeast", got[1].Chunk.Text)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestTopK_TiesBreakBySeqDeterministically(t *testing.T) {
	ctx := context.Background()
	x := memory.New(2)
	// Inserted out of order with identical vectors.
	require.NoError(t, x.Upsert(ctx, "doc", []creditgate.Chunk{
		chunk("doc", 3, "d", 1, 0),
		chunk("doc", 1, "b", 1, 0),
		chunk("doc", 2, "c", 1, 0),
		chunk("doc", 0, "a", 1, 0),
	}))

	first, err := x.TopK(ctx, "doc", []float32{1, 0}, 4)
	require.NoError(t, err)
	for range 20 {
		again, err := x.TopK(ctx, "doc", []float32{1, 0}, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	var seqs []int
	for _, s := range first {
		seqs = append(seqs, s.Chunk.Seq)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, seqs)
}

func TestTopK_Bounds(t *testing.T) {
	ctx := context.Background()
	x := memory.New(2)
	require.NoError(t, x.Upsert(ctx, "doc", []creditgate.Chunk{
		chunk("doc", 0, "a", 1, 0),
		chunk("doc", 1, "b", 0, 1),
	}))

	got, err := x.TopK(ctx, "doc", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = x.TopK(ctx, "doc", []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = x.TopK(ctx, "missing", []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	x := memory.New(0)
	require.NoError(t, x.Upsert(ctx, "a", []creditgate.Chunk{chunk("a", 0, "x", 1, 0, 0)}))

	err := x.Upsert(ctx, "b", []creditgate.Chunk{chunk("b", 0, "y", 1, 0)})
	assert.Error(t, err)

	_, err = x.TopK(ctx, "a", []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestUpsert_ReplacesGeneration(t *testing.T) {
	ctx := context.Background()
	x := memory.New(2)
	require.NoError(t, x.Upsert(ctx, "doc", []creditgate.Chunk{
		chunk("doc", 0, "old0", 1, 0),
		chunk("doc", 1, "old1", 1, 0),
		chunk("doc", 2, "old2", 1, 0),
	}))
	require.NoError(t, x.Upsert(ctx, "doc", []creditgate.Chunk{chunk("doc", 0, "new0", 1, 0)}))

	n, err := x.Count(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, x.Delete(ctx, "doc"))
	n, err = x.Count(ctx, "doc")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_ReadersNeverSeeMixedGenerations(t *testing.T) {
	ctx := context.Background()
	x := memory.New(2)

	gen := func(prefix string, n int) []creditgate.Chunk {
		out := make([]creditgate.Chunk, n)
		for i := range out {
			out[i] = chunk("doc", i, fmt.Sprintf("%s-%d", prefix, i), 1, float32(i))
		}
		return out
	}
	require.NoError(t, x.Upsert(ctx, "doc", gen("g0", 8)))

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_ = x.Upsert(ctx, "doc", gen(fmt.Sprintf("g%d", w*100+i+1), 4+i%5))
			}
		}()
	}

	errs := make(chan string, 1)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				got, err := x.TopK(ctx, "doc", []float32{1, 1}, 100)
				if err != nil || len(got) == 0 {
					continue
				}
				prefix, _, _ := strings.Cut(got[0].Chunk.Text, "-")
				for _, s := range got {
					if !strings.HasPrefix(s.Chunk.Text, prefix+"-") {
						select {
						case errs <- fmt.Sprintf("mixed generations: %s and %s", prefix, s.Chunk.Text):
						default:
						}
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}
