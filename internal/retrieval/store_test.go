package retrieval

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory database with the kb_vectors table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE kb_vectors (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		chunk TEXT NOT NULL,
		embedding BLOB NOT NULL,
		indexed_at DATETIME NOT NULL
	)`)
	if err != nil {
		t.Fatalf("creating kb_vectors table: %v", err)
	}
	return db
}

// makeTestVector builds a unit-ish vector pointing mostly along one axis.
func makeTestVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 0.01
	}
	v[axis] = 1.0
	return v
}

func TestUpsertAndCount(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t))

	recs := []Record{
		{ID: "guide_0", Filename: "guide.md", Title: "Guide", Chunk: "chunk zero", Embedding: makeTestVector(8, 0)},
		{ID: "guide_1", Filename: "guide.md", Title: "Guide", Chunk: "chunk one", Embedding: makeTestVector(8, 1)},
	}
	if err := s.Upsert(recs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t))

	rec := Record{ID: "guide_0", Filename: "guide.md", Chunk: "original", Embedding: makeTestVector(8, 0)}
	if err := s.Upsert([]Record{rec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec.Chunk = "revised"
	if err := s.Upsert([]Record{rec}); err != nil {
		t.Fatalf("Upsert (again): %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 after re-upsert", count)
	}

	results, err := s.Search(makeTestVector(8, 0), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk != "revised" {
		t.Errorf("results = %+v, want the revised chunk", results)
	}
}

func TestSearch_TopKOrdering(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t))

	recs := []Record{
		{ID: "a_0", Filename: "a.md", Chunk: "axis 0", Embedding: makeTestVector(8, 0)},
		{ID: "b_0", Filename: "b.md", Chunk: "axis 1", Embedding: makeTestVector(8, 1)},
		{ID: "c_0", Filename: "c.md", Chunk: "axis 2", Embedding: makeTestVector(8, 2)},
	}
	if err := s.Upsert(recs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(makeTestVector(8, 1), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "b_0" {
		t.Errorf("closest = %s, want b_0", results[0].ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Errorf("distances not ascending: %f then %f", results[0].Distance, results[1].Distance)
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t))

	results, err := s.Search(makeTestVector(8, 0), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(results))
	}
}

func TestSearch_ZeroVector(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t))

	if err := s.Upsert([]Record{{ID: "a_0", Filename: "a.md", Chunk: "x", Embedding: makeTestVector(8, 0)}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(make([]float32, 8), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for zero query vector, want 0", len(results))
	}
}

func TestDeleteByFilename(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t))

	recs := []Record{
		{ID: "a_0", Filename: "a.md", Chunk: "x", Embedding: makeTestVector(8, 0)},
		{ID: "a_1", Filename: "a.md", Chunk: "y", Embedding: makeTestVector(8, 1)},
		{ID: "b_0", Filename: "b.md", Chunk: "z", Embedding: makeTestVector(8, 2)},
	}
	if err := s.Upsert(recs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	n, err := s.DeleteByFilename("a.md")
	if err != nil {
		t.Fatalf("DeleteByFilename: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.5, -1.25, 3.0, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decodeFloat32s: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d floats, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestDecodeFloat32s_Corrupt(t *testing.T) {
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for non-multiple-of-4 blob")
	}
}
