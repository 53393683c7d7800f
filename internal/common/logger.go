package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const (
	defaultTimeFormat = "15:04:05"
	maxLogFileSize    = 50 * 1024 * 1024
	maxLogBackups     = 3
)

// logOutputs reports which writers [logging].output selects
func logOutputs(outputs []string) (console, file bool) {
	for _, output := range outputs {
		switch strings.ToLower(strings.TrimSpace(output)) {
		case "file":
			file = true
		case "stdout", "console":
			console = true
		}
	}
	return console, file
}

// InitLogger builds the arbor logger described by [logging]. Console output
// stays on unless the config asks for file output only. A log file that
// cannot be created falls back to console.
func InitLogger(config *Config) arbor.ILogger {
	timeFormat := config.Logging.TimeFormat
	if timeFormat == "" {
		timeFormat = defaultTimeFormat
	}

	console, file := logOutputs(config.Logging.Output)
	logger := arbor.NewLogger()

	if file && config.Logging.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.Logging.FilePath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: log directory unavailable, logging to console: %v\n", err)
			file = false
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   config.Logging.FilePath,
				TimeFormat: timeFormat,
				MaxSize:    maxLogFileSize,
				MaxBackups: maxLogBackups,
				TextOutput: true,
			})
		}
	}

	if console || !file {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	return logger.WithLevelFromString(config.Logging.Level)
}
