// Package ingest uploads scraped batches to the document ingestion endpoint.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/httpclient"
	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/crawler"
)

// ErrMetadataUnreadable means the batch metadata file could not be loaded
var ErrMetadataUnreadable = errors.New("batch metadata unreadable")

const maxErrorBody = 200

// BatchRequest selects a batch and the optional course fields sent with every file
type BatchRequest struct {
	MetadataPath string
	BackendURL   string // Empty uses the configured backend
	Root         string // Directory entry paths resolve against; empty uses the metadata file's directory
	CourseID     string
	CourseName   string
	BatchID      string // Overrides each entry's scrape_batch_id when set
}

// Uploader submits batch files as multipart requests and records every outcome
type Uploader struct {
	cfg     common.IngestConfig
	client  *http.Client
	limiter *rate.Limiter
	audit   *AuditLog
	logger  arbor.ILogger
	now     func() time.Time
}

// NewUploader creates an uploader. Uploads are spaced by cfg.UploadDelay.
func NewUploader(cfg common.IngestConfig, audit *AuditLog, logger arbor.ILogger) *Uploader {
	limit := rate.Inf
	if cfg.UploadDelay.Duration > 0 {
		limit = rate.Every(cfg.UploadDelay.Duration)
	}

	return &Uploader{
		cfg:     cfg,
		client:  httpclient.NewDefaultHTTPClient(0),
		limiter: rate.NewLimiter(limit, 1),
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// IngestBatch uploads every entry in the metadata file. Per-file failures are
// counted and audited; only setup failures are returned as errors.
func (u *Uploader) IngestBatch(ctx context.Context, req BatchRequest) (models.IngestionCounts, error) {
	var counts models.IngestionCounts

	entries, err := crawler.ReadBatchMetadata(req.MetadataPath)
	if err != nil {
		return counts, fmt.Errorf("%w: %v", ErrMetadataUnreadable, err)
	}

	backendURL := req.BackendURL
	if backendURL == "" {
		backendURL = u.cfg.BackendURL
	}
	endpoint := strings.TrimRight(backendURL, "/") + u.cfg.UploadPath

	root := req.Root
	if root == "" {
		root = filepath.Dir(req.MetadataPath)
	}

	u.logger.Info().
		Str("metadata", req.MetadataPath).
		Str("endpoint", endpoint).
		Int("entries", len(entries)).
		Msg("Starting batch ingestion")

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return counts, err
		}

		attempt := u.ingestEntry(ctx, endpoint, root, entry, req)
		counts.Record(attempt.Status)

		u.logger.Info().
			Int("index", i+1).
			Int("total", len(entries)).
			Str("file", entry.Filename).
			Str("status", string(attempt.Status)).
			Msg("Ingestion attempt")

		if err := u.audit.Append(attempt); err != nil {
			u.logger.Warn().Err(err).Str("file", entry.Filename).Msg("Failed to append audit entry")
		}
	}

	u.logger.Info().
		Int("uploaded", counts.Uploaded).
		Int("duplicates", counts.Duplicate).
		Int("failed", counts.Failed).
		Int("missing", counts.Missing).
		Msg("Batch ingestion complete")

	return counts, nil
}

// ResolveEntryPath maps an entry's relative path under root, accepting either separator
func ResolveEntryPath(root string, entry models.ScrapedFileEntry) string {
	rel := entry.RelativePath
	if rel == "" {
		rel = entry.Filename
	}
	rel = strings.ReplaceAll(rel, `\`, "/")
	return filepath.Join(root, filepath.FromSlash(rel))
}

func (u *Uploader) ingestEntry(ctx context.Context, endpoint, root string, entry models.ScrapedFileEntry, req BatchRequest) models.IngestionAttempt {
	path := ResolveEntryPath(root, entry)

	batchID := entry.ScrapeBatchID
	if req.BatchID != "" {
		batchID = req.BatchID
	}

	attempt := models.IngestionAttempt{
		Filename:      entry.Filename,
		Path:          path,
		CourseID:      req.CourseID,
		CourseName:    req.CourseName,
		ScrapeBatchID: batchID,
		Timestamp:     u.now().UTC(),
	}

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		attempt.Status = models.IngestionMissing
		attempt.Error = "file not found"
		return attempt
	}

	hash, err := HashFile(path)
	if err != nil {
		attempt.Status = models.IngestionFailed
		attempt.Error = err.Error()
		return attempt
	}
	attempt.ContentHash = &hash

	if err := u.limiter.Wait(ctx); err != nil {
		attempt.Status = models.IngestionFailed
		attempt.Error = err.Error()
		return attempt
	}

	fields := map[string]string{
		"file_type":       entry.FileType,
		"content_hash":    hash,
		"course_id":       req.CourseID,
		"course_name":     req.CourseName,
		"scrape_batch_id": batchID,
	}

	status, body, err := u.upload(ctx, endpoint, path, entry.Filename, fields)
	attempt.HTTPStatus = status
	switch {
	case err != nil:
		attempt.Status = models.IngestionFailed
		attempt.Error = err.Error()
	case status == http.StatusOK:
		attempt.Status = models.IngestionUploaded
		attempt.DocumentID = documentID(body)
	case status == http.StatusConflict:
		attempt.Status = models.IngestionDuplicate
	default:
		attempt.Status = models.IngestionFailed
		attempt.Error = fmt.Sprintf("HTTP %d: %s", status, truncate(strings.TrimSpace(string(body)), maxErrorBody))
	}
	return attempt
}

// HashFile returns the hex SHA-256 of the file, read in chunks
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// upload streams a multipart body. Empty optional fields are omitted.
func (u *Uploader) upload(ctx context.Context, endpoint, path, filename string, fields map[string]string) (int, []byte, error) {
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, path, filename, contentType, fields))
	}()

	reqCtx := ctx
	if u.cfg.UploadTimeout.Duration > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, u.cfg.UploadTimeout.Duration)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return 0, nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(httpReq)
	if err != nil {
		pr.CloseWithError(err)
		return 0, nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read upload response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func writeMultipart(mw *multipart.Writer, path, filename, contentType string, fields map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}

	for _, key := range []string{"file_type", "content_hash", "course_id", "course_name", "scrape_batch_id"} {
		value := fields[key]
		if value == "" {
			continue
		}
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// documentID extracts the backend id from {"id": ...}, which may be a number or string
func documentID(body []byte) string {
	var resp struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(resp.ID, &s); err == nil {
		return s
	}
	return string(resp.ID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ping checks that the backend answers HTTP at all
func (u *Uploader) Ping(ctx context.Context, backendURL string) error {
	if backendURL == "" {
		backendURL = u.cfg.BackendURL
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, backendURL, nil)
	if err != nil {
		return fmt.Errorf("invalid backend URL %q: %w", backendURL, err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend not reachable at %s: %w", backendURL, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("backend at %s returned HTTP %d", backendURL, resp.StatusCode)
	}
	return nil
}
