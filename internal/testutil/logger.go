package testutil

import (
	"fmt"
	"sync"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level   string
	Message string
	Args    []any
}

// Logger records log calls. It satisfies the logger interfaces used across
// the module.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *Logger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Args: args})
}

func (l *Logger) Info(msg string, args ...any) { l.record("info", msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *Logger) Warn(msg string, args ...any) { l.record("warn", msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.record("debug", msg, args) }

// Entries returns a copy of all recorded entries.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Has reports whether a message was logged at level.
func (l *Logger) Has(level, msg string) bool {
	for _, e := range l.Entries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s %v", e.Level, e.Message, e.Args)
}
