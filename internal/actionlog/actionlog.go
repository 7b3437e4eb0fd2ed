// Package actionlog keeps a bounded, newest-last history of user-visible
// actions for the activity endpoint.
package actionlog

import (
	"fmt"
	"sync"
	"time"
)

// DefaultMax is the history size used when New is given a non-positive max.
const DefaultMax = 50

// Entry is one recorded action.
type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Log is a fixed-capacity action history. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

func New(max int) *Log {
	if max <= 0 {
		max = DefaultMax
	}
	return &Log{max: max}
}

// Append records a formatted action, evicting the oldest entry when full.
func (l *Log) Append(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{At: time.Now(), Message: fmt.Sprintf(format, args...)})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Entries returns a copy of the history, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
