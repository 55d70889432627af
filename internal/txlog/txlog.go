// Package txlog implements the append-only transaction log. Every
// meaningful engine event — account changes, wishlist mutations, signals,
// orders, errors — is timestamped, appended to a line-oriented file, and
// broadcast to subscribers.
package txlog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// timeLayout is the on-disk timestamp format, one entry per line:
//
//	[2006-01-02 15:04:05] message
const timeLayout = "2006-01-02 15:04:05"

// Entry is a single transaction log record.
type Entry struct {
	Timestamp time.Time
	Message   string
}

// Log is the append-only transaction log. Appends are serialized by a
// mutex, so entries are totally ordered by append time and none is lost to
// concurrent writers.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	entries []Entry
	log     *slog.Logger

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Entry
}

// Open creates a Log durably backed by the append-only file at path. The
// file is created if it does not exist.
func Open(path string, logger *slog.Logger) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening transaction log %s: %w", path, err)
	}
	return &Log{
		file: f,
		log:  logger,
		subs: make(map[int]chan Entry),
	}, nil
}

// Append records a formatted message with the current timestamp, writes it
// to the backing file, and broadcasts it to subscribers. A file write
// failure is logged but does not drop the in-memory entry.
func (l *Log) Append(format string, args ...any) {
	e := Entry{
		Timestamp: time.Now(),
		Message:   fmt.Sprintf(format, args...),
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	line := fmt.Sprintf("[%s] %s\n", e.Timestamp.Format(timeLayout), e.Message)
	if _, err := l.file.WriteString(line); err != nil {
		l.log.Error("writing transaction log", "error", err)
	}
	l.mu.Unlock()

	l.log.Info("transaction", "message", e.Message)
	l.broadcast(e)
}

// Entries returns a copy of all entries appended during this process.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Subscribe returns a channel that receives every subsequent entry.
// bufSize controls the channel buffer; slow consumers have entries dropped.
func (l *Log) Subscribe(bufSize int) (int, <-chan Entry) {
	ch := make(chan Entry, bufSize)
	l.subsMu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subs[id] = ch
	l.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (l *Log) Unsubscribe(id int) {
	l.subsMu.Lock()
	if ch, ok := l.subs[id]; ok {
		delete(l.subs, id)
		close(ch)
	}
	l.subsMu.Unlock()
}

// Close closes the backing file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// broadcast sends an entry to all subscribers non-blocking (drop on full).
func (l *Log) broadcast(e Entry) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
			// Slow consumer — drop entry.
		}
	}
}
