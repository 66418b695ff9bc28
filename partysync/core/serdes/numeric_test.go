package serdes

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip[T comparable](t *testing.T, s Serializer[T], v T) {
	t.Helper()
	got, err := Decode(s, Encode(s, v))
	if err != nil {
		t.Fatalf("decode %v: %v", v, err)
	}
	if got != v {
		t.Fatalf("round trip mismatch: got %v, want %v", got, v)
	}
}

func TestExhaustiveNarrowDomains(t *testing.T) {
	for v := 0; v <= math.MaxUint8; v++ {
		roundTrip(t, U8, uint8(v))
	}
	for v := math.MinInt8; v <= math.MaxInt8; v++ {
		roundTrip(t, I8, int8(v))
	}
	for v := 0; v <= math.MaxUint16; v++ {
		roundTrip(t, U16, uint16(v))
		roundTrip(t, PackedU16, uint16(v))
	}
	for v := math.MinInt16; v <= math.MaxInt16; v++ {
		roundTrip(t, I16, int16(v))
		roundTrip(t, PackedI16, int16(v))
	}
}

func TestSampledWideDomains(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	edgesU := []uint64{0, 1, 255, 256, 65535, 65536, math.MaxUint32, math.MaxUint32 + 1, math.MaxUint64}
	edgesI := []int64{0, -1, 127, 128, -128, -129, 32767, -32768, 32768, -32769,
		math.MaxInt32, math.MinInt32, math.MaxInt32 + 1, math.MinInt32 - 1, math.MaxInt64, math.MinInt64}

	for _, v := range edgesU {
		roundTrip(t, U64, v)
		roundTrip(t, PackedU64, v)
		roundTrip(t, PackedU32, uint32(v))
	}
	for _, v := range edgesI {
		roundTrip(t, I64, v)
		roundTrip(t, PackedI64, v)
		roundTrip(t, PackedI32, int32(v))
	}
	for range 20000 {
		u := rng.Uint64() >> rng.IntN(64)
		roundTrip(t, PackedU64, u)
		roundTrip(t, PackedU32, uint32(u))
		i := int64(rng.Uint64()) >> rng.IntN(64)
		roundTrip(t, PackedI64, i)
		roundTrip(t, PackedI32, int32(i))
	}
}

func TestLadderPicksSmallestLevel(t *testing.T) {
	tests := []struct {
		name string
		v    uint64
		bits int
	}{
		{"zero", 0, 1 + 8},
		{"byte max", 255, 1 + 8},
		{"short min", 256, 2 + 16},
		{"short max", 65535, 2 + 16},
		{"int min", 65536, 3 + 32},
		{"int max", math.MaxUint32, 3 + 32},
		{"long min", math.MaxUint32 + 1, 3 + 64},
		{"long max", math.MaxUint64, 3 + 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.bits, BitLen(PackedU64, tt.v))
		})
	}
}

func TestSignedLadderBoundaries(t *testing.T) {
	tests := []struct {
		v    int64
		bits int
	}{
		{-128, 1 + 8},
		{127, 1 + 8},
		{-129, 2 + 16},
		{128, 2 + 16},
		{-32769, 3 + 32},
		{math.MinInt32 - 1, 3 + 64},
	}
	for _, tt := range tests {
		require.Equal(t, tt.bits, BitLen(PackedI64, tt.v), "value %d", tt.v)
	}
}

func TestFits(t *testing.T) {
	require.True(t, Fits(uint16(255), 8))
	require.False(t, Fits(uint16(256), 8))
	require.True(t, Fits(int16(-128), 8))
	require.False(t, Fits(int16(-129), 8))
	require.True(t, Fits(uint8(200), 8))
}

func TestLadderRejectsBadWidths(t *testing.T) {
	require.Panics(t, func() { Ladder[uint16](16) })
	require.Panics(t, func() { Ladder[uint32](16, 8) })
	require.Panics(t, func() { Ladder[uint32](0) })
}

func TestFloatPrimitives(t *testing.T) {
	for _, v := range []float32{0, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32} {
		roundTrip(t, F32, v)
	}
	for _, v := range []float64{0, math.Pi, -math.MaxFloat64} {
		roundTrip(t, F64, v)
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := Encode(PackedU64, uint64(math.MaxUint64))
	_, err := Decode(PackedU64, data[:len(data)-2])
	require.Error(t, err)
}
