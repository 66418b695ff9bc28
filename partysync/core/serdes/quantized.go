package serdes

import (
	"fmt"
	"math"

	"github.com/gosuda/partysync/partysync/core/bitstream"
)

// Quantized maps a bounded float onto a width-bit integer. Out-of-range
// inputs clamp to the bound. Reconstruction error never exceeds MaxError.
type Quantized[F Float] struct {
	bound  float64
	width  uint8
	signed bool
}

// UFloat quantizes values in [0, bound].
func UFloat[F Float](bound float64, width uint8) Quantized[F] {
	return newQuantized[F](bound, width, false)
}

// SFloat quantizes values in [-maxAbs, maxAbs].
func SFloat[F Float](maxAbs float64, width uint8) Quantized[F] {
	return newQuantized[F](maxAbs, width, true)
}

func newQuantized[F Float](bound float64, width uint8, signed bool) Quantized[F] {
	if !(bound > 0) || width < 2 || width > 32 {
		panic(fmt.Sprintf("serdes: invalid quantized float bound=%v width=%d", bound, width))
	}
	return Quantized[F]{bound: bound, width: width, signed: signed}
}

func (q Quantized[F]) intMax() float64 {
	if q.signed {
		return float64(uint64(1)<<(q.width-1) - 1)
	}
	return float64(uint64(1)<<q.width - 1)
}

// MaxError is the largest reconstruction error for in-range inputs.
func (q Quantized[F]) MaxError() float64 {
	return q.bound / q.intMax()
}

func (q Quantized[F]) Serialize(w *bitstream.Writer, v F) {
	im := q.intMax()
	x := math.Round(float64(v) / q.bound * im)
	lo := 0.0
	if q.signed {
		lo = -im
	}
	switch {
	case math.IsNaN(x):
		x = 0
	case x < lo:
		x = lo
	case x > im:
		x = im
	}
	w.WriteBits(uint64(int64(x)), q.width)
}

func (q Quantized[F]) Deserialize(r *bitstream.Reader) (F, error) {
	raw, err := r.ReadBits(q.width)
	if err != nil {
		return 0, err
	}
	n := int64(raw)
	if q.signed && raw&(1<<(q.width-1)) != 0 {
		n = int64(raw | math.MaxUint64<<q.width)
	}
	return F(float64(n) / q.intMax() * q.bound), nil
}
