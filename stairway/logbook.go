package stairway

import (
	"fmt"
	"sync"
	"time"
)

const logTimeFormat = "2006-01-02 15:04:05"

// logBook keeps timestamped entries, most recent first.
type logBook struct {
	mu      sync.RWMutex
	entries []string
	limit   int
	now     func() time.Time
}

func newLogBook(limit int) *logBook {
	return &logBook{limit: limit, now: time.Now}
}

func (b *logBook) add(message string) string {
	entry := fmt.Sprintf("[%s]: %s", b.now().Format(logTimeFormat), message)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, "")
	copy(b.entries[1:], b.entries)
	b.entries[0] = entry
	if b.limit > 0 && len(b.entries) > b.limit {
		b.entries = b.entries[:b.limit]
	}
	return entry
}

func (b *logBook) list() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.entries...)
}

func (b *logBook) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
