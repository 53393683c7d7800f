// Package materialize decides where files land when their target name is taken.
package materialize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eduseek/eduseek/internal/common"
)

// Strategy is a duplicate handling policy
type Strategy string

const (
	StrategyRename    Strategy = "rename"
	StrategyOverwrite Strategy = "overwrite"
	StrategySkip      Strategy = "skip"
)

// ParseStrategy validates a strategy name; empty means rename
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyRename:
		return StrategyRename, nil
	case StrategyOverwrite:
		return StrategyOverwrite, nil
	case StrategySkip:
		return StrategySkip, nil
	}
	return "", fmt.Errorf("unknown duplicate strategy %q (want rename, overwrite or skip)", s)
}

// Action records what the resolver decided for one file
type Action string

const (
	ActionNone        Action = "none"
	ActionRenamed     Action = "renamed"
	ActionOverwritten Action = "overwritten"
	ActionSkipped     Action = "skipped"
)

// Summary counts resolver decisions for one discovery run
type Summary struct {
	Renamed     int `json:"renamed"`
	Skipped     int `json:"skipped"`
	Overwritten int `json:"overwritten"`
}

// Record adds one decision to the summary
func (s *Summary) Record(action Action) {
	switch action {
	case ActionRenamed:
		s.Renamed++
	case ActionSkipped:
		s.Skipped++
	case ActionOverwritten:
		s.Overwritten++
	}
}

// Resolver applies a Strategy to target paths
type Resolver struct {
	Strategy Strategy
	Now      func() time.Time
}

// NewResolver creates a resolver using the wall clock
func NewResolver(strategy Strategy) *Resolver {
	return &Resolver{Strategy: strategy, Now: time.Now}
}

// Resolve returns the path to write to and the action taken.
// An empty path means the caller must skip the file.
func (r *Resolver) Resolve(path string) (string, Action, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return path, ActionNone, nil
		}
		return "", ActionNone, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	switch r.Strategy {
	case StrategySkip:
		return "", ActionSkipped, nil
	case StrategyOverwrite:
		return path, ActionOverwritten, nil
	}

	renamed, err := r.renamedPath(path)
	if err != nil {
		return "", ActionNone, err
	}
	return renamed, ActionRenamed, nil
}

// renamedPath inserts _<timestamp> before the extension. A counter is appended
// when the timestamped name is also taken within the same second.
func (r *Resolver) renamedPath(path string) (string, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	stem, ext := splitExt(path)
	base := stem + "_" + now().Format(common.BatchTimestampFormat)

	candidate := base + ext
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

// splitExt separates the extension from path. A leading dot marks a hidden
// file, not an extension, so ".env" has none.
func splitExt(path string) (stem, ext string) {
	ext = filepath.Ext(path)
	if ext == filepath.Base(path) {
		return path, ""
	}
	return strings.TrimSuffix(path, ext), ext
}

// CopyFile materializes src at the resolved form of dst and returns the final
// path ("" when skipped). Modification time is preserved.
func (r *Resolver) CopyFile(src, dst string) (string, Action, error) {
	target, action, err := r.Resolve(dst)
	if err != nil || target == "" {
		return "", action, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", action, fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	if err := copyWithModTime(src, target); err != nil {
		return "", action, err
	}
	return target, action, nil
}

// MoveFile is CopyFile followed by removal of src
func (r *Resolver) MoveFile(src, dst string) (string, Action, error) {
	target, action, err := r.Resolve(dst)
	if err != nil || target == "" {
		return "", action, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", action, fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	if err := os.Rename(src, target); err == nil {
		return target, action, nil
	}
	// Cross-device moves fall back to copy
	if err := copyWithModTime(src, target); err != nil {
		return "", action, err
	}
	_ = os.Remove(src)
	return target, action, nil
}

func copyWithModTime(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
