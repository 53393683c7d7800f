package crawler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ExtractArchive unpacks the zip at archivePath into destDir and returns the
// slash-separated relative paths of the extracted files in archive order.
// Entries that would escape destDir are rejected.
func ExtractArchive(archivePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
	}
	defer reader.Close()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
	}

	var files []string
	for _, f := range reader.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, &ArchiveExtractionError{Path: archivePath, Err: fmt.Errorf("entry %q escapes extraction root", f.Name)}
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
		}

		rel, err := filepath.Rel(root, target)
		if err != nil {
			return nil, &ArchiveExtractionError{Path: archivePath, Err: err}
		}
		files = append(files, filepath.ToSlash(rel))
	}

	return files, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if modified := f.Modified; !modified.IsZero() {
		_ = os.Chtimes(target, modified, modified)
	}
	return nil
}
