package partysync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTickerFiresOncePerCall(t *testing.T) {
	t.Parallel()
	start := time.Unix(0, 0)
	at := func(ms int) time.Time { return start.Add(time.Duration(ms) * time.Millisecond) }

	tk := NewTicker(50 * time.Millisecond)
	steps := []struct {
		ms    int
		fires bool
	}{
		{0, false}, // anchors the schedule
		{49, false},
		{50, true},
		{50, false},
		{99, false},
		{100, true},
		// a long stall fires once and does not replay the missed ticks
		{10_000, true},
		{10_000, false},
		{10_049, false},
		{10_050, true},
	}
	for i, s := range steps {
		require.Equal(t, s.fires, tk.Update(at(s.ms)), "step %d at %dms", i, s.ms)
	}
	require.Equal(t, uint64(4), tk.Count())
}

func TestTickerSlowCallerFiresEveryCall(t *testing.T) {
	t.Parallel()
	tk := NewTicker(10 * time.Millisecond)
	now := time.Unix(0, 0)
	tk.Update(now)
	for i := 0; i < 20; i++ {
		now = now.Add(35 * time.Millisecond)
		require.True(t, tk.Update(now))
	}
	require.Equal(t, uint64(20), tk.Count())
}
