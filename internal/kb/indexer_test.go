package kb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opsdesk/opsdesk/internal/retrieval"
)

// fakeEmbedder returns a fixed-size vector per text.
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// memoryVectors collects upserted records keyed by id.
type memoryVectors struct {
	records map[string]retrieval.Record
}

func newMemoryVectors() *memoryVectors {
	return &memoryVectors{records: make(map[string]retrieval.Record)}
}

func (m *memoryVectors) Upsert(records []retrieval.Record) error {
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memoryVectors) DeleteByFilename(filename string) (int, error) {
	n := 0
	for id, r := range m.records {
		if r.Filename == filename {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestIndexDir(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "guide.md", "# Guide\n\n## One\n\nfirst\n\n## Two\n\nsecond\n")
	writeDoc(t, dir, "notes.txt", "plain notes, no headings")
	writeDoc(t, dir, "ignored.bin", "binary-ish")

	vectors := newMemoryVectors()
	ix := NewIndexer(&fakeEmbedder{}, vectors)

	res, err := ix.IndexDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}

	if res.Files != 2 {
		t.Errorf("files = %d, want 2", res.Files)
	}
	// guide.md: preamble + two sections; notes.txt: one paragraph.
	if res.Chunks != 4 {
		t.Errorf("chunks = %d, want 4", res.Chunks)
	}
	if len(vectors.records) != 4 {
		t.Errorf("stored %d records, want 4", len(vectors.records))
	}

	rec, ok := vectors.records["guide_1"]
	if !ok {
		t.Fatal("missing record guide_1")
	}
	if rec.Filename != "guide.md" || rec.Title != "Guide" {
		t.Errorf("record = %+v", rec)
	}
	if !strings.HasPrefix(rec.Chunk, "Guide\n\nOne") {
		t.Errorf("chunk = %q, want header context prefix", rec.Chunk)
	}
}

func TestIndexDir_IdempotentIDs(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "guide.md", "# Guide\n\n## One\n\nfirst\n")

	vectors := newMemoryVectors()
	ix := NewIndexer(&fakeEmbedder{}, vectors)

	for range 2 {
		if _, err := ix.IndexDir(context.Background(), dir); err != nil {
			t.Fatalf("IndexDir: %v", err)
		}
	}

	if len(vectors.records) != 2 {
		t.Errorf("stored %d records after double index, want 2", len(vectors.records))
	}
}

func TestIndexFile_ShrunkenDocLeavesNoStaleChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.md")
	writeDoc(t, dir, "guide.md", "# Guide\n\n## One\n\nfirst\n\n## Two\n\nsecond\n\n## Three\n\nthird\n")

	vectors := newMemoryVectors()
	ix := NewIndexer(&fakeEmbedder{}, vectors)

	if _, err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	before := len(vectors.records)

	// Rewrite the document with fewer sections and re-index.
	writeDoc(t, dir, "guide.md", "# Guide\n\n## One\n\nfirst\n")
	n, err := ix.IndexFile(context.Background(), path)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	if len(vectors.records) != n {
		t.Errorf("stored %d records after shrink, want %d (had %d)", len(vectors.records), n, before)
	}
	for id := range vectors.records {
		if id == ChunkID("guide", 3) {
			t.Errorf("stale chunk %s survived re-index", id)
		}
	}
}

func TestIndexDir_SkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "ok.md", "# OK\n\ncontent\n")
	// Not a real PDF; extraction fails and the file is skipped.
	writeDoc(t, dir, "broken.pdf", "this is not a pdf")

	ix := NewIndexer(&fakeEmbedder{}, newMemoryVectors())
	res, err := ix.IndexDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}

	if res.Files != 1 {
		t.Errorf("files = %d, want 1", res.Files)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
}

func TestIndexDir_MissingDir(t *testing.T) {
	ix := NewIndexer(&fakeEmbedder{}, newMemoryVectors())
	res, err := ix.IndexDir(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}
	if res.Files != 0 || res.Chunks != 0 {
		t.Errorf("result = %+v, want zero", res)
	}
}

func TestExtractHTML(t *testing.T) {
	got, err := extractHTML(`<html><head><style>body{}</style></head>
		<body><h1>Title</h1><p>First para.</p><script>alert(1)</script><p>Second.</p></body></html>`)
	if err != nil {
		t.Fatalf("extractHTML: %v", err)
	}

	if !strings.Contains(got, "Title") || !strings.Contains(got, "First para.") {
		t.Errorf("extracted = %q", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "body{}") {
		t.Errorf("script/style leaked into text: %q", got)
	}
}

func TestSupportedFile(t *testing.T) {
	for _, path := range []string{"a.md", "b.TXT", "c.html", "d.pdf"} {
		if !SupportedFile(path) {
			t.Errorf("SupportedFile(%q) = false, want true", path)
		}
	}
	for _, path := range []string{"a.bin", "b.go", "c"} {
		if SupportedFile(path) {
			t.Errorf("SupportedFile(%q) = true, want false", path)
		}
	}
}
