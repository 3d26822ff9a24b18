// Package chunker splits document text into bounded, whitespace-aligned chunks.
package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ineyio/creditgate"
)

// DefaultChunkSize is the maximum chunk length in characters used when none is given.
const DefaultChunkSize = creditgate.DefaultChunkSize

// Chunk greedily packs whitespace-separated tokens into chunks of at most
// maxSize characters, counting one separating space between tokens. A token longer
// than maxSize becomes a chunk of its own. Joining the result with single
// spaces reproduces strings.Fields(text) joined the same way.
//
// maxSize <= 0 means DefaultChunkSize. Blank text yields nil.
func Chunk(text string, maxSize int) []string {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}

	var (
		chunks []string
		cur    strings.Builder
		n      int // characters in cur
	)
	for _, tok := range strings.Fields(text) {
		size := utf8.RuneCountInString(tok)
		if n > 0 && n+1+size > maxSize {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(tok)
		n += size
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// Split chunks text and assigns document-scoped IDs and sequence numbers.
func Split(documentID, text string, maxSize int) []creditgate.Chunk {
	parts := Chunk(text, maxSize)
	if len(parts) == 0 {
		return nil
	}
	out := make([]creditgate.Chunk, len(parts))
	for i, p := range parts {
		out[i] = creditgate.Chunk{
			ID:         ChunkID(documentID, i),
			DocumentID: documentID,
			Seq:        i,
			Text:       p,
		}
	}
	return out
}

// ChunkID returns the ID of the seq'th chunk of a document.
func ChunkID(documentID string, seq int) string {
	return documentID + ":" + strconv.Itoa(seq)
}
