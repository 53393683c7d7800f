package browsertest

import (
	"context"
	"sync"

	"github.com/eduseek/eduseek/internal/interfaces"
)

// Session wraps a FakePage as a browser session
type Session struct {
	page *FakePage

	mu     sync.Mutex
	closed bool
}

func (s *Session) Page() interfaces.Page {
	return s.page
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Launcher hands out sessions over one FakePage
type Launcher struct {
	Page *FakePage
	Err  error

	mu       sync.Mutex
	sessions []*Session
}

func (l *Launcher) Launch(ctx context.Context) (interfaces.BrowserSession, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	s := &Session{page: l.Page}
	l.mu.Lock()
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Sessions returns every session launched so far
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

var _ interfaces.BrowserLauncher = (*Launcher)(nil)
