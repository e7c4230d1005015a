// FILE: secureconfig/journal.go
package secureconfig

import (
	"sync"
	"time"
)

// ChangeRecord is an immutable description of one committed mutation.
type ChangeRecord struct {
	Time     time.Time
	Key      string
	Previous any
	Next     any
}

// Journal is an append-only, capacity-bounded FIFO log of mutations.
// When the capacity is exceeded the oldest record is evicted.
type Journal struct {
	mu       sync.Mutex
	records  []ChangeRecord
	capacity int
}

// NewJournal creates a journal. A non-positive capacity falls back to
// DefaultJournalCapacity.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultJournalCapacity
	}
	return &Journal{
		records:  make([]ChangeRecord, 0, capacity),
		capacity: capacity,
	}
}

// Record appends a change, evicting the oldest record when full.
func (j *Journal) Record(rec ChangeRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.records) >= j.capacity {
		// FIFO eviction, shift left by one
		copy(j.records, j.records[1:])
		j.records = j.records[:len(j.records)-1]
	}
	j.records = append(j.records, rec)
}

// History returns all records in chronological order, or only those for
// key when key is non-empty. The returned slice is a copy.
func (j *Journal) History(key string) []ChangeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()

	if key == "" {
		out := make([]ChangeRecord, len(j.records))
		copy(out, j.records)
		return out
	}

	var out []ChangeRecord
	for _, rec := range j.records {
		if rec.Key == key {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the current number of records.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// Capacity returns the configured bound.
func (j *Journal) Capacity() int {
	return j.capacity
}

// Clear discards all records.
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = j.records[:0]
}
