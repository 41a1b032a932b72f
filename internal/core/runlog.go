package core

// runlog.go holds the human-readable log of a single run.
//
// Each run owns its log. Readers subscribe and receive every line from the
// first one onward, so a reader attaching late or to a finished run still
// sees the whole run. Appends never block on readers: every reader
// follows the log at its own pace through a broadcast channel that is
// closed and replaced on each append.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RunLog is an append-only sequence of status lines.
type RunLog struct {
	mu      sync.Mutex
	lines   []string
	changed chan struct{}
	closed  bool
	logger  *slog.Logger
	binding string
}

// NewRunLog creates an empty log. Every appended line is also written to
// logger, when non-nil.
func NewRunLog(logger *slog.Logger) *RunLog {
	return &RunLog{
		changed: make(chan struct{}),
		logger:  logger,
	}
}

// Append adds a line and wakes waiting readers. Lines appended after Close
// are dropped.
func (l *RunLog) Append(line string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.lines = append(l.lines, line)
	binding := l.binding
	l.broadcastLocked()
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Info(line, "binding", binding)
	}
}

// Appendf formats and appends a line.
func (l *RunLog) Appendf(format string, args ...any) {
	l.Append(fmt.Sprintf(format, args...))
}

// SetBinding tags subsequent lines' structured log entries with a binding name.
func (l *RunLog) SetBinding(name string) {
	l.mu.Lock()
	l.binding = name
	l.mu.Unlock()
}

// Close marks the log finished. Readers drain the remaining lines and
// their channels close.
func (l *RunLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.broadcastLocked()
}

func (l *RunLog) broadcastLocked() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// Lines returns a copy of the lines appended so far.
func (l *RunLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Closed reports whether the log has been closed.
func (l *RunLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Subscribe streams the log from its first line. The channel is unbuffered:
// a slow reader only delays itself. It closes once the log is closed and
// every line delivered, or when ctx ends.
func (l *RunLog) Subscribe(ctx context.Context) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)
		next := 0
		for {
			l.mu.Lock()
			pending := l.lines[next:len(l.lines):len(l.lines)]
			closed := l.closed
			changed := l.changed
			l.mu.Unlock()

			for _, line := range pending {
				select {
				case out <- line:
					next++
				case <-ctx.Done():
					return
				}
			}
			if len(pending) > 0 {
				continue
			}
			if closed {
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
