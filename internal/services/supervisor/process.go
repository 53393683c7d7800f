package supervisor

import (
	"bytes"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eduseek/eduseek/internal/models"
)

const stderrTailSize = 2048

// job is one spawned worker and its scratch files
type job struct {
	info        models.SyncJobInfo
	statusPath  string
	resultsPath string

	cmd    *exec.Cmd
	stderr *tailWriter
	done   chan struct{}

	// exitCode is written before done is closed
	exitCode int
	stopped  atomic.Bool

	// stopping counts Stop calls in progress; guarded by Supervisor.mu
	stopping int
}

func (j *job) exited() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *job) wait() {
	_ = j.cmd.Wait()
	j.exitCode = j.cmd.ProcessState.ExitCode()
	close(j.done)
}

// tailWriter keeps the last size bytes written to it
type tailWriter struct {
	mu   sync.Mutex
	size int
	buf  bytes.Buffer
}

func newTailWriter(size int) *tailWriter {
	return &tailWriter{size: size}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	if over := w.buf.Len() - w.size; over > 0 {
		w.buf.Next(over)
		rest := append([]byte(nil), w.buf.Bytes()...)
		w.buf.Reset()
		w.buf.Write(rest)
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(w.buf.String())
}
