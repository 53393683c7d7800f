// Package status reads and writes the JSON files a sync worker shares with its supervisor.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eduseek/eduseek/internal/models"
)

// WriteJSONAtomic writes v to path via a temp file and rename, so readers never see a partial file
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ReadStatus loads a status file. Errors wrap os.ErrNotExist when the worker has not written it yet.
func ReadStatus(path string) (*models.SyncStatus, error) {
	var st models.SyncStatus
	if err := readJSON(path, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ReadResults loads a results file
func ReadResults(path string) (*models.SyncResults, error) {
	var res models.SyncResults
	if err := readJSON(path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
