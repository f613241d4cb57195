package domain

import (
	"strings"

	"github.com/google/uuid"
)

// paragraphSeparator is the literal boundary the chunker splits on and
// re-inserts between paragraphs packed into one chunk.
const paragraphSeparator = "\n\n"

// ChunkContent splits content into chunks at paragraph boundaries.
//
// Paragraphs are the non-empty, trimmed pieces obtained by splitting on a
// literal blank line. Consecutive paragraphs are packed into one chunk until
// adding the next paragraph (plus separator) would push the chunk past
// chunkSize bytes. The size guard is only consulted when the current chunk
// already has content, so a single paragraph larger than chunkSize is
// emitted whole as one oversize chunk.
//
// Chunk indices start at 0 and increment once per emitted chunk. Empty
// content yields no chunks.
func ChunkContent(documentID uuid.UUID, content string, chunkSize int) []DocumentChunk {
	var paragraphs []string
	for _, p := range strings.Split(content, paragraphSeparator) {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var (
		chunks  []DocumentChunk
		current strings.Builder
		index   int
	)
	for _, para := range paragraphs {
		if current.Len() > 0 && current.Len()+len(para)+len(paragraphSeparator) > chunkSize {
			chunks = append(chunks, NewChunk(documentID, current.String(), index))
			current.Reset()
			index++
		}
		if current.Len() > 0 {
			current.WriteString(paragraphSeparator)
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		chunks = append(chunks, NewChunk(documentID, current.String(), index))
	}
	return chunks
}
