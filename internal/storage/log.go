// Package storage holds the durable upload log: serialized payloads waiting for
// the batch uploader, oldest first.
package storage

import (
	"context"
	"sync"

	"pulse/pkg/errors"
)

var ErrLogClosed = errors.ErrIllegalState.WithMessage("upload log is closed")

// Entry is one stored payload. IDs increase in append order.
type Entry struct {
	ID   int64
	Data []byte
}

type Log interface {
	Append(ctx context.Context, data []byte) error
	// Peek returns up to n entries from the head of the log.
	Peek(ctx context.Context, n int) ([]Entry, error)
	Remove(ctx context.Context, ids ...int64) error
	Count(ctx context.Context) (int, error)
	// Trim evicts the oldest entries until at most max remain and reports how many went.
	Trim(ctx context.Context, max int) (int, error)
	Close() error
}

type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
	closed  bool
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

func (l *MemoryLog) Append(_ context.Context, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	l.entries = append(l.entries, Entry{ID: l.nextID, Data: buf})
	l.nextID++
	return nil
}

func (l *MemoryLog) Peek(_ context.Context, n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLogClosed
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[:n])
	return out, nil
}

func (l *MemoryLog) Remove(_ context.Context, ids ...int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := l.entries[:0]
	for _, e := range l.entries {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = Entry{}
	}
	l.entries = kept
	return nil
}

func (l *MemoryLog) Count(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}
	return len(l.entries), nil
}

func (l *MemoryLog) Trim(_ context.Context, max int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}
	excess := len(l.entries) - max
	if excess <= 0 {
		return 0, nil
	}
	l.entries = append([]Entry(nil), l.entries[excess:]...)
	return excess, nil
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
