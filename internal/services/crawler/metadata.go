package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eduseek/eduseek/internal/models"
)

// WriteBatchMetadata writes entries as a JSON array. An empty batch is written as [].
func WriteBatchMetadata(path string, entries []models.ScrapedFileEntry) error {
	if entries == nil {
		entries = []models.ScrapedFileEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write batch metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace batch metadata: %w", err)
	}
	return nil
}

// ReadBatchMetadata loads the entries written by WriteBatchMetadata
func ReadBatchMetadata(path string) ([]models.ScrapedFileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []models.ScrapedFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse batch metadata %s: %w", path, err)
	}
	return entries, nil
}
