package logbuffer

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the default number of entries to keep
	DefaultBufferSize = 1000
	// MaxEntrySize is the maximum size of a single entry message in bytes
	MaxEntrySize = 2048
)

// Entry is a single buffered record. The logger fills in the caller fields,
// the process monitor only sets Source and Message.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
	Level     string    `json:"level,omitempty"`
	Message   string    `json:"message"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	Function  string    `json:"function,omitempty"`
}

// RingBuffer is a thread-safe circular buffer of entries
type RingBuffer struct {
	mu       sync.RWMutex
	entries  []Entry
	head     int // next write position
	count    int
	capacity int
	dropped  int64 // entries overwritten after the buffer wrapped
}

// New creates a new RingBuffer with the specified capacity
func New(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest one once the buffer is full.
// Messages longer than MaxEntrySize are truncated.
func (rb *RingBuffer) Add(entry Entry) {
	if len(entry.Message) > MaxEntrySize {
		entry.Message = entry.Message[:MaxEntrySize-3] + "..."
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.capacity

	if rb.count < rb.capacity {
		rb.count++
	} else {
		rb.dropped++
	}
}

// AddLine is a shorthand for buffering one line of process output
func (rb *RingBuffer) AddLine(source, line string) {
	rb.Add(Entry{Source: source, Message: line})
}

// GetSince returns all entries since the specified time, oldest first
func (rb *RingBuffer) GetSince(since time.Time) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.count == 0 {
		return nil
	}

	result := make([]Entry, 0, rb.count)
	for i := 0; i < rb.count; i++ {
		entry := rb.entries[rb.index(i)]
		if !entry.Timestamp.Before(since) {
			result = append(result, entry)
		}
	}
	return result
}

// GetAll returns all entries in chronological order
func (rb *RingBuffer) GetAll() []Entry {
	return rb.GetSince(time.Time{})
}

// Tail returns at most the n newest entries, oldest first
func (rb *RingBuffer) Tail(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}
	if n > rb.count {
		n = rb.count
	}

	result := make([]Entry, 0, n)
	for i := rb.count - n; i < rb.count; i++ {
		result = append(result, rb.entries[rb.index(i)])
	}
	return result
}

// Messages returns the messages of all buffered entries, skipping blank ones
func (rb *RingBuffer) Messages() []string {
	entries := rb.GetAll()
	messages := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Message) == "" {
			continue
		}
		messages = append(messages, entry.Message)
	}
	return messages
}

// index maps the i-th oldest entry to its slot
func (rb *RingBuffer) index(i int) int {
	start := 0
	if rb.count == rb.capacity {
		start = rb.head // oldest entry is at head once wrapped
	}
	return (start + i) % rb.capacity
}

// Clear removes all entries from the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.head = 0
	rb.count = 0
	rb.dropped = 0
}

// Count returns the number of entries currently in the buffer
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Dropped returns how many entries were overwritten since the last Clear
func (rb *RingBuffer) Dropped() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.dropped
}

// Capacity returns the maximum number of entries the buffer can hold
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// IsFull returns true if the buffer has wrapped at least once
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count == rb.capacity
}
