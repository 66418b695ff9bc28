package snapshot

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDelayEstimatorFloor(t *testing.T) {
	t.Parallel()
	d := NewDelayEstimator(50*time.Millisecond, 0.1, zerolog.Nop())
	require.Equal(t, 150*time.Millisecond, d.Floor())
	require.Equal(t, d.Floor(), d.Delay())

	// samples below the floor never pull the estimate under it
	for i := 0; i < 100; i++ {
		d.Observe(ms(1000+i), ms(1000+i))
	}
	require.Equal(t, d.Floor(), d.Delay())
}

func TestDelayEstimatorUpdateRule(t *testing.T) {
	t.Parallel()
	const alpha = 0.25
	tick := 20 * time.Millisecond
	d := NewDelayEstimator(tick, alpha, zerolog.Nop())
	floor := float64(d.Floor())

	samples := []time.Duration{
		200 * time.Millisecond,
		100 * time.Millisecond,
		10 * time.Millisecond,
		300 * time.Millisecond,
		250 * time.Millisecond,
		0,
	}
	avg := floor
	now := ms(10_000)
	for i, s := range samples {
		got := d.Observe(now, now.Add(-s))
		if float64(s) > avg {
			avg = float64(s)
			require.Equal(t, s, got, "sample %d must reset", i)
		} else {
			avg += alpha * (max(float64(s), floor) - avg)
			require.InDelta(t, avg, float64(got), float64(time.Microsecond), "sample %d", i)
		}
		require.GreaterOrEqual(t, got, d.Floor())
	}
}

func TestDelayEstimatorInvalidAlpha(t *testing.T) {
	t.Parallel()
	d := NewDelayEstimator(50*time.Millisecond, 0, zerolog.Nop())
	d.Observe(ms(1000), ms(600))
	require.Equal(t, 400*time.Millisecond, d.Delay())
	// default smoothing still applies below the current estimate
	d.Observe(ms(2000), ms(2000))
	require.Less(t, d.Delay(), 400*time.Millisecond)
	require.Greater(t, d.Delay(), d.Floor())
}
