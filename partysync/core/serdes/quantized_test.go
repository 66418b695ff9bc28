package serdes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUFloatErrorBound(t *testing.T) {
	const bound = 100.0
	q := UFloat[float64](bound, 16)
	require.InDelta(t, bound/65535, q.MaxError(), 1e-15)

	for i := 0; i <= 100000; i++ {
		x := bound * float64(i) / 100000
		got, err := Decode[float64](q, Encode[float64](q, x))
		require.NoError(t, err)
		if math.Abs(got-x) > bound/65535 {
			t.Fatalf("x=%v decoded=%v error %v exceeds bound", x, got, math.Abs(got-x))
		}
	}
}

func TestUFloatClamps(t *testing.T) {
	q := UFloat[float64](10, 16)
	got, err := Decode[float64](q, Encode[float64](q, 25))
	require.NoError(t, err)
	require.Equal(t, 10.0, got)

	got, err = Decode[float64](q, Encode[float64](q, -3))
	require.NoError(t, err)
	require.Equal(t, 0.0, got)

	got, err = Decode[float64](q, Encode(q, math.NaN()))
	require.NoError(t, err)
	require.Equal(t, 0.0, got)
}

func TestSFloatErrorBound(t *testing.T) {
	const maxAbs = 1.0
	q := SFloat[float32](maxAbs, 16)
	require.Equal(t, 16, BitLen[float32](q, 0.5))

	for i := -50000; i <= 50000; i++ {
		x := float32(maxAbs * float64(i) / 50000)
		got, err := Decode[float32](q, Encode[float32](q, x))
		require.NoError(t, err)
		if math.Abs(float64(got-x)) > maxAbs/32767 {
			t.Fatalf("x=%v decoded=%v exceeds bound", x, got)
		}
	}
}

func TestSFloatClampsSymmetric(t *testing.T) {
	q := SFloat[float64](2, 12)
	hi, err := Decode[float64](q, Encode[float64](q, 9))
	require.NoError(t, err)
	lo, err := Decode[float64](q, Encode[float64](q, -9))
	require.NoError(t, err)
	require.Equal(t, 2.0, hi)
	require.Equal(t, -2.0, lo)
}

func TestQuantizedRejectsBadConfig(t *testing.T) {
	require.Panics(t, func() { UFloat[float64](0, 16) })
	require.Panics(t, func() { SFloat[float64](1, 40) })
}
