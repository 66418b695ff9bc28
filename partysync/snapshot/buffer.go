// Package snapshot keeps the recent history of a remote entity and decides
// how far behind real time to sample it.
package snapshot

import (
	"sort"
	"time"

	"github.com/gosuda/partysync/partysync/core/common"
)

// Entry is a payload tagged with the time it was produced.
type Entry[T any] struct {
	Time  common.Timestamp
	Value T
}

// Buffer is a time-ordered history of received payloads. Entries may arrive
// out of order or duplicated; each insertion prunes entries older than the
// retention window measured back from the newest timestamp.
type Buffer[T any] struct {
	entries   []Entry[T]
	retention time.Duration
}

// NewBuffer creates a buffer retaining retentionTicks tick periods of history.
func NewBuffer[T any](tickPeriod time.Duration, retentionTicks int) *Buffer[T] {
	if retentionTicks <= 0 {
		retentionTicks = common.DefaultRetentionTicks
	}
	return &Buffer[T]{retention: tickPeriod * time.Duration(retentionTicks)}
}

// Push records v at ts and evicts stale entries. A later arrival with an
// equal timestamp replaces the earlier one.
func (b *Buffer[T]) Push(ts common.Timestamp, v T) {
	i := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Time >= ts })
	if i < len(b.entries) && b.entries[i].Time == ts {
		b.entries[i].Value = v
		return
	}
	b.entries = append(b.entries, Entry[T]{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = Entry[T]{Time: ts, Value: v}
	b.evict()
}

func (b *Buffer[T]) evict() {
	cutoff := b.entries[len(b.entries)-1].Time.Add(-b.retention)
	n := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Time >= cutoff })
	if n == 0 {
		return
	}
	clear(b.entries[:n])
	b.entries = append(b.entries[:0], b.entries[n:]...)
}

// Query returns the latest entry at or before target. When every entry is
// newer than target it returns the oldest one, and an empty buffer yields
// fallback.
func (b *Buffer[T]) Query(target common.Timestamp, fallback T) T {
	if len(b.entries) == 0 {
		return fallback
	}
	i := sort.Search(len(b.entries), func(i int) bool { return b.entries[i].Time > target })
	if i == 0 {
		return b.entries[0].Value
	}
	return b.entries[i-1].Value
}

// Newest returns the most recent entry.
func (b *Buffer[T]) Newest() (Entry[T], bool) {
	if len(b.entries) == 0 {
		return Entry[T]{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// Oldest returns the oldest retained entry.
func (b *Buffer[T]) Oldest() (Entry[T], bool) {
	if len(b.entries) == 0 {
		return Entry[T]{}, false
	}
	return b.entries[0], true
}

func (b *Buffer[T]) Len() int {
	return len(b.entries)
}

func (b *Buffer[T]) Retention() time.Duration {
	return b.retention
}
