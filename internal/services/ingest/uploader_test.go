package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/crawler"
)

type receivedUpload struct {
	Filename string
	Content  string
	Fields   map[string]string
}

// fakeBackend answers 200 for new content hashes and 409 for known ones
type fakeBackend struct {
	mu       sync.Mutex
	known    map[string]bool
	statuses map[string]int // Forced status by filename
	uploads  []receivedUpload
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{known: make(map[string]bool), statuses: make(map[string]int)}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/upload" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, _ := io.ReadAll(file)

	fields := make(map[string]string)
	for k, v := range r.MultipartForm.Value {
		fields[k] = v[0]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, receivedUpload{Filename: header.Filename, Content: string(content), Fields: fields})

	if status, ok := b.statuses[header.Filename]; ok {
		w.WriteHeader(status)
		w.Write([]byte(`{"detail":"forced"}`))
		return
	}
	hash := fields["content_hash"]
	if b.known[hash] {
		w.WriteHeader(http.StatusConflict)
		return
	}
	b.known[hash] = true
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"id": 17}`))
}

func writeBatch(t *testing.T, root string, files map[string]string, entries []models.ScrapedFileEntry) string {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	metadata := filepath.Join(root, "course_files_from_zip_1_Test.json")
	require.NoError(t, crawler.WriteBatchMetadata(metadata, entries))
	return metadata
}

func newTestUploader(t *testing.T, backendURL string) (*Uploader, *AuditLog) {
	t.Helper()
	cfg := common.NewDefaultConfig().Ingest
	cfg.BackendURL = backendURL
	cfg.UploadDelay = common.Dur(0)

	audit := NewAuditLog(filepath.Join(t.TempDir(), "ingestion_log.json"), arbor.NewNoOpLogger())
	return NewUploader(cfg, audit, arbor.NewNoOpLogger()), audit
}

var twoFileEntries = []models.ScrapedFileEntry{
	{Filename: "a.pdf", RelativePath: "a.pdf", FileType: "pdf", Source: models.SourceArchiveDownload, ScrapeBatchID: "batch_1"},
	{Filename: "b.docx", RelativePath: "sub/b.docx", FileType: "word", Source: models.SourceArchiveDownload, ScrapeBatchID: "batch_1"},
}

func TestIngestBatch_UploadedAndDuplicate(t *testing.T) {
	backend := newFakeBackend()
	backend.statuses["b.docx"] = http.StatusConflict
	server := httptest.NewServer(backend)
	defer server.Close()

	root := t.TempDir()
	metadata := writeBatch(t, root, map[string]string{"a.pdf": "alpha", "sub/b.docx": "beta"}, twoFileEntries)

	uploader, audit := newTestUploader(t, server.URL)
	counts, err := uploader.IngestBatch(context.Background(), BatchRequest{
		MetadataPath: metadata,
		CourseID:     "1006419",
		CourseName:   "CISC 124",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{Uploaded: 1, Duplicate: 1}, counts)

	attempts := audit.Read()
	require.Len(t, attempts, 2)
	assert.Equal(t, models.IngestionUploaded, attempts[0].Status)
	assert.Equal(t, "17", attempts[0].DocumentID)
	assert.Equal(t, models.IngestionDuplicate, attempts[1].Status)
	assert.Equal(t, http.StatusConflict, attempts[1].HTTPStatus)

	sum := sha256.Sum256([]byte("alpha"))
	require.NotNil(t, attempts[0].ContentHash)
	assert.Equal(t, hex.EncodeToString(sum[:]), *attempts[0].ContentHash)

	require.Len(t, backend.uploads, 2)
	first := backend.uploads[0]
	assert.Equal(t, "a.pdf", first.Filename)
	assert.Equal(t, "alpha", first.Content)
	assert.Equal(t, "pdf", first.Fields["file_type"])
	assert.Equal(t, "1006419", first.Fields["course_id"])
	assert.Equal(t, "CISC 124", first.Fields["course_name"])
	assert.Equal(t, "batch_1", first.Fields["scrape_batch_id"])
}

func TestIngestBatch_IdempotentRerun(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend)
	defer server.Close()

	root := t.TempDir()
	metadata := writeBatch(t, root, map[string]string{"a.pdf": "alpha", "sub/b.docx": "beta"}, twoFileEntries)
	uploader, audit := newTestUploader(t, server.URL)

	first, err := uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Uploaded)

	second, err := uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Uploaded)
	assert.Equal(t, len(twoFileEntries), second.Duplicate)

	assert.Len(t, audit.Read(), 4)
}

func TestIngestBatch_MissingFileNotUploaded(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend)
	defer server.Close()

	root := t.TempDir()
	metadata := writeBatch(t, root, map[string]string{"a.pdf": "alpha"}, twoFileEntries)
	uploader, audit := newTestUploader(t, server.URL)

	counts, err := uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{Uploaded: 1, Missing: 1}, counts)
	assert.Len(t, backend.uploads, 1)

	attempts := audit.Read()
	require.Len(t, attempts, 2)
	assert.Equal(t, models.IngestionMissing, attempts[1].Status)
	assert.Nil(t, attempts[1].ContentHash)
}

func TestIngestBatch_ServerErrorsAndUnreachable(t *testing.T) {
	backend := newFakeBackend()
	backend.statuses["a.pdf"] = http.StatusInternalServerError
	server := httptest.NewServer(backend)

	root := t.TempDir()
	metadata := writeBatch(t, root, map[string]string{"a.pdf": "alpha", "sub/b.docx": "beta"}, twoFileEntries)
	uploader, audit := newTestUploader(t, server.URL)

	counts, err := uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{Uploaded: 1, Failed: 1}, counts)
	assert.Contains(t, audit.Read()[0].Error, "HTTP 500")

	server.Close()
	counts, err = uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, models.IngestionCounts{Failed: 2}, counts)
}

func TestIngestBatch_BackslashPaths(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend)
	defer server.Close()

	root := t.TempDir()
	entries := []models.ScrapedFileEntry{{Filename: "b.docx", RelativePath: `sub\b.docx`, FileType: "word"}}
	metadata := writeBatch(t, root, map[string]string{"sub/b.docx": "beta"}, entries)
	uploader, _ := newTestUploader(t, server.URL)

	counts, err := uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Uploaded)
}

func TestIngestBatch_UnreadableMetadata(t *testing.T) {
	uploader, _ := newTestUploader(t, "http://127.0.0.1:1")

	_, err := uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.True(t, errors.Is(err, ErrMetadataUnreadable))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = uploader.IngestBatch(context.Background(), BatchRequest{MetadataPath: bad})
	assert.True(t, errors.Is(err, ErrMetadataUnreadable))
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(newFakeBackend())
	uploader, _ := newTestUploader(t, server.URL)

	assert.NoError(t, uploader.Ping(context.Background(), ""))
	server.Close()
	assert.Error(t, uploader.Ping(context.Background(), server.URL))
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "17", documentID([]byte(`{"id": 17}`)))
	assert.Equal(t, "abc", documentID([]byte(`{"id": "abc"}`)))
	assert.Equal(t, "", documentID([]byte(`not json`)))
}
