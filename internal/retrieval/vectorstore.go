package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity, which is plenty for a documentation corpus of a few thousand
// chunks. An ANN-capable backend can replace it behind this interface.
type VectorStore interface {
	// Upsert inserts records, replacing any existing record with the same ID.
	// Re-indexing the same document is therefore idempotent.
	Upsert(records []Record) error

	// Search performs vector similarity search, returning the top-K most
	// similar records ordered by ascending distance.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByFilename removes all records indexed from the given file.
	DeleteByFilename(filename string) (int, error)

	// Count returns the number of stored records.
	Count() (int, error)
}

// Record is one indexed document chunk.
type Record struct {
	ID        string // deterministic: "{file stem}_{chunk index}"
	Filename  string
	Title     string
	Chunk     string
	Embedding []float32
	IndexedAt time.Time
}

// ScoredRecord is a Record with its distance from the query vector.
// Distance is 1 - cosine similarity: 0 is identical, 2 is opposite.
type ScoredRecord struct {
	Record
	Distance float32
}
