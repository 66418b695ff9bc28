package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/partysync/partysync/core/common"
)

func ms(v int) common.Timestamp {
	return common.TimestampOf(time.Duration(v) * time.Millisecond)
}

func TestBufferEmptyQueryReturnsFallback(t *testing.T) {
	t.Parallel()
	b := NewBuffer[string](50*time.Millisecond, 10)
	require.Equal(t, "neutral", b.Query(ms(100), "neutral"))
	_, ok := b.Newest()
	require.False(t, ok)
}

func TestBufferQuery(t *testing.T) {
	t.Parallel()
	b := NewBuffer[int](50*time.Millisecond, 10)
	for _, v := range []int{100, 300, 200, 400} {
		b.Push(ms(v), v)
	}

	tests := []struct {
		name   string
		target int
		want   int
	}{
		{"exact", 200, 200},
		{"between", 250, 200},
		{"after newest", 1000, 400},
		{"before oldest clamps low", 50, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Query(ms(tt.target), -1))
		})
	}
}

func TestBufferOutOfOrderStaysSorted(t *testing.T) {
	t.Parallel()
	b := NewBuffer[int](50*time.Millisecond, 10)
	b.Push(ms(30), 30)
	b.Push(ms(10), 10)
	b.Push(ms(20), 20)

	oldest, ok := b.Oldest()
	require.True(t, ok)
	require.Equal(t, 10, oldest.Value)
	newest, _ := b.Newest()
	require.Equal(t, 30, newest.Value)
}

func TestBufferDuplicateTimestampLatestWins(t *testing.T) {
	t.Parallel()
	b := NewBuffer[string](50*time.Millisecond, 10)
	b.Push(ms(10), "first")
	b.Push(ms(10), "second")
	b.Push(ms(20), "third")
	b.Push(ms(10), "fourth")
	require.Equal(t, "fourth", b.Query(ms(10), ""))
	require.Equal(t, "fourth", b.Query(ms(15), ""))
	require.Equal(t, "third", b.Query(ms(20), ""))
	require.Equal(t, 2, b.Len())
}

func TestBufferEviction(t *testing.T) {
	t.Parallel()
	// 10 ticks at 50ms retains 500ms of history
	b := NewBuffer[int](50*time.Millisecond, 10)
	require.Equal(t, 500*time.Millisecond, b.Retention())

	for v := 0; v <= 1000; v += 100 {
		b.Push(ms(v), v)
	}
	oldest, _ := b.Oldest()
	require.Equal(t, 500, oldest.Value)
	require.Equal(t, 6, b.Len())

	// evicted entries are gone: querying before the window clamps to the oldest retained
	require.Equal(t, 500, b.Query(ms(200), -1))

	// a late arrival older than the window is dropped immediately
	b.Push(ms(100), 100)
	oldest, _ = b.Oldest()
	require.Equal(t, 500, oldest.Value)
}

func TestBufferDefaultRetention(t *testing.T) {
	t.Parallel()
	b := NewBuffer[int](20*time.Millisecond, 0)
	require.Equal(t, 20*time.Millisecond*common.DefaultRetentionTicks, b.Retention())
}
