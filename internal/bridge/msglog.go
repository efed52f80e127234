// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

// DefaultLogCapacity is the number of lines kept for polling clients
const DefaultLogCapacity = 32

// MessageEntry is one line in the message log
type MessageEntry struct {
	ID      uint32 `json:"id" cbor:"id"`
	Payload string `json:"payload" cbor:"payload"`
}

// MessageLog is a bounded, insertion-ordered buffer of raw lines.
// Ids are assigned from a running counter and are never reused; when the log
// is full the entry with the lowest id is evicted.
type MessageLog struct {
	entries   []MessageEntry
	capacity  int
	lastID    uint32
	listeners []func(MessageEntry)
}

// NewMessageLog creates a log holding at most capacity entries
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &MessageLog{
		entries:  make([]MessageEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append stores line under the next id and returns that id
func (l *MessageLog) Append(line string) uint32 {
	l.lastID++
	entry := MessageEntry{ID: l.lastID, Payload: line}

	if len(l.entries) >= l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, entry)

	for _, fn := range l.listeners {
		fn(entry)
	}
	return entry.ID
}

// Entries returns every stored entry with id > after, oldest first.
// after == 0 returns the whole buffer.
func (l *MessageLog) Entries(after uint32) []MessageEntry {
	var out []MessageEntry
	for _, e := range l.entries {
		if e.ID > after {
			out = append(out, e)
		}
	}
	return out
}

// Query returns the payloads of every stored entry with id > after
func (l *MessageLog) Query(after uint32) []string {
	entries := l.Entries(after)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Payload
	}
	return out
}

// LatestID returns the last assigned id, even if that entry has been evicted
func (l *MessageLog) LatestID() uint32 {
	return l.lastID
}

// Len returns the number of stored entries
func (l *MessageLog) Len() int {
	return len(l.entries)
}

// Capacity returns the maximum number of stored entries
func (l *MessageLog) Capacity() int {
	return l.capacity
}

// OnAppend registers fn to be called with every appended entry.
// fn runs synchronously inside Append and must not block.
func (l *MessageLog) OnAppend(fn func(MessageEntry)) {
	l.listeners = append(l.listeners, fn)
}
