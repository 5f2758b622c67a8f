package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSnippetLen caps how much of a chunk is quoted into the LLM context.
const maxSnippetLen = 500

// Result is a retrieved documentation fragment.
type Result struct {
	Content  string
	Filename string
	Title    string
	Distance float32
}

// Retriever combines embedding and vector search to find relevant
// documentation for a query.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds the query and returns the top-K closest chunks. An empty
// index yields an empty result, not an error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored, err := r.store.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	results := make([]Result, len(scored))
	for i, s := range scored {
		results[i] = Result{
			Content:  s.Chunk,
			Filename: s.Filename,
			Title:    s.Title,
			Distance: s.Distance,
		}
	}
	return results, nil
}

// FormatContext renders retrieved chunks as source-attributed blocks for
// inclusion in an LLM prompt. Long chunks are truncated with an ellipsis.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, len(results))
	for i, res := range results {
		content := res.Content
		if len(content) > maxSnippetLen {
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := maxSnippetLen
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "..."
		}
		blocks[i] = fmt.Sprintf("[Source: %s]\n%s", res.Filename, content)
	}
	return strings.Join(blocks, "\n\n")
}
