// Package badger persists sync job history in an embedded badgerhold store.
package badger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/eduseek/eduseek/internal/common"
)

// BadgerDB owns the history store handle
type BadgerDB struct {
	store  *badgerhold.Store
	path   string
	logger arbor.ILogger
}

// NewBadgerDB opens the history store at config.Path. With reset_on_startup
// any previous history is discarded first.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.Path == "" {
		return nil, errors.New("storage.badger.path is required")
	}

	if config.ResetOnStartup {
		if err := resetDir(config.Path); err != nil {
			logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to reset history store")
		} else {
			logger.Debug().Str("path", config.Path).Msg("History store reset")
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("History store opened")

	return &BadgerDB{store: store, path: config.Path, logger: logger}, nil
}

func resetDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(path)
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Path is the store directory
func (b *BadgerDB) Path() string {
	return b.path
}

// Close releases the store. Safe to call more than once.
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	if err != nil {
		return fmt.Errorf("failed to close history store: %w", err)
	}
	b.logger.Debug().Str("path", b.path).Msg("History store closed")
	return nil
}
