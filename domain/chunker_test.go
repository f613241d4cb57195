package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkContentSingleChunk(t *testing.T) {
	docID := uuid.New()
	chunks := ChunkContent(docID, "Hello world.\n\nThis is a test.", 100)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "Hello world.\n\nThis is a test.", chunks[0].Content)
	assert.Equal(t, docID, chunks[0].DocumentID)
}

func TestChunkContentThreeChunks(t *testing.T) {
	docID := uuid.New()
	chunks := ChunkContent(docID, "First paragraph.\n\nSecond paragraph.\n\nThird paragraph.", 30)

	require.Len(t, chunks, 3)
	want := []string{"First paragraph.", "Second paragraph.", "Third paragraph."}
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, want[i], c.Content)
	}
}

func TestChunkContentEmpty(t *testing.T) {
	assert.Empty(t, ChunkContent(uuid.New(), "", 100))
	assert.Empty(t, ChunkContent(uuid.New(), "\n\n\n\n   \n\n", 100))
}

func TestChunkContentOversizeParagraph(t *testing.T) {
	big := strings.Repeat("x", 500)
	chunks := ChunkContent(uuid.New(), big, 100)

	require.Len(t, chunks, 1)
	assert.Equal(t, big, chunks[0].Content)
}

// genParagraphs produces slices of non-empty paragraphs free of blank lines
// and surrounding whitespace so the splitting round trip is exact.
func genParagraphs() gopter.Gen {
	return gen.SliceOf(gen.AlphaString().SuchThat(func(s string) bool {
		return s != ""
	}))
}

func TestChunkContentProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("joining chunks restores the paragraphs in order", prop.ForAll(
		func(paragraphs []string, chunkSize int) bool {
			docID := uuid.New()
			content := strings.Join(paragraphs, "\n\n")
			chunks := ChunkContent(docID, content, chunkSize)

			var parts []string
			for _, c := range chunks {
				parts = append(parts, c.Content)
			}
			return strings.Join(parts, "\n\n") == strings.Join(paragraphs, "\n\n")
		},
		genParagraphs(),
		gen.IntRange(1, 200),
	))

	properties.Property("chunk indices are contiguous and ids unique", prop.ForAll(
		func(paragraphs []string, chunkSize int) bool {
			docID := uuid.New()
			chunks := ChunkContent(docID, strings.Join(paragraphs, "\n\n"), chunkSize)

			seen := make(map[uuid.UUID]bool, len(chunks))
			for i, c := range chunks {
				if c.ChunkIndex != i || c.DocumentID != docID || seen[c.ID] {
					return false
				}
				seen[c.ID] = true
			}
			return true
		},
		genParagraphs(),
		gen.IntRange(1, 200),
	))

	properties.Property("multi-paragraph chunks respect the size bound", prop.ForAll(
		func(paragraphs []string, chunkSize int) bool {
			docID := uuid.New()
			chunks := ChunkContent(docID, strings.Join(paragraphs, "\n\n"), chunkSize)

			for _, c := range chunks {
				// Oversize chunks are allowed only when they hold a single
				// paragraph.
				if len(c.Content) > chunkSize && strings.Contains(c.Content, "\n\n") {
					return false
				}
			}
			return true
		},
		genParagraphs(),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
