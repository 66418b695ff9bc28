package serdes

import (
	"fmt"
	"math"

	"github.com/gosuda/partysync/partysync/core/bitstream"
)

// fixedInt writes the low width bits of an integer. At the native width it is
// the full codec for T; narrower widths form the truncated layouts a ladder
// uses once its predicate has proven the value fits.
type fixedInt[T Integer] struct {
	width uint8
}

func (f fixedInt[T]) Serialize(w *bitstream.Writer, v T) {
	w.WriteBits(uint64(v), f.width)
}

func (f fixedInt[T]) Deserialize(r *bitstream.Reader) (T, error) {
	raw, err := r.ReadBits(f.width)
	if err != nil {
		return 0, err
	}
	if isSigned[T]() && f.width < 64 && raw&(1<<(f.width-1)) != 0 {
		raw |= math.MaxUint64 << f.width
	}
	return T(raw), nil
}

// Fixed returns the native full-width codec for T.
func Fixed[T Integer]() Serializer[T] {
	return fixedInt[T]{width: widthOf[T]()}
}

func truncated[T Integer](width uint8) Serializer[T] {
	return fixedInt[T]{width: width}
}

// Ladder chains branching serializers over the given ascending widths and
// terminates in the native codec. Each rung's predicate and truncated layout
// derive from the same width, so they agree on the rung's domain.
func Ladder[T Integer](widths ...uint8) Serializer[T] {
	native := widthOf[T]()
	var s Serializer[T] = Fixed[T]()
	for i := len(widths) - 1; i >= 0; i-- {
		width := widths[i]
		if width == 0 || width >= native || (i > 0 && widths[i-1] >= width) {
			panic(fmt.Sprintf("serdes: invalid ladder widths %v for %d-bit type", widths, native))
		}
		s = Branching[T]{
			Large: func(v T) bool { return !Fits(v, width) },
			Small: truncated[T](width),
			Big:   s,
		}
	}
	return s
}

// Fits reports whether v is representable in width bits using T's
// signedness.
func Fits[T Integer](v T, width uint8) bool {
	if width >= widthOf[T]() {
		return true
	}
	if isSigned[T]() {
		lim := int64(1) << (width - 1)
		x := int64(v)
		return x >= -lim && x < lim
	}
	return uint64(v) < uint64(1)<<width
}

func widthOf[T Integer]() uint8 {
	var v T = 1
	var n uint8
	for v != 0 {
		v <<= 1
		n++
	}
	return n
}

func isSigned[T Integer]() bool {
	var zero T
	return zero-1 < zero
}

var (
	Bool Serializer[bool] = boolSerializer{}

	U8  = Fixed[uint8]()
	U16 = Fixed[uint16]()
	U32 = Fixed[uint32]()
	U64 = Fixed[uint64]()
	I8  = Fixed[int8]()
	I16 = Fixed[int16]()
	I32 = Fixed[int32]()
	I64 = Fixed[int64]()

	PackedU16 = Ladder[uint16](8)
	PackedU32 = Ladder[uint32](8, 16)
	PackedU64 = Ladder[uint64](8, 16, 32)
	PackedI16 = Ladder[int16](8)
	PackedI32 = Ladder[int32](8, 16)
	PackedI64 = Ladder[int64](8, 16, 32)

	F32 Serializer[float32] = Converter[float32, uint32]{
		Inner: U32,
		To:    math.Float32bits,
		From:  math.Float32frombits,
	}
	F64 Serializer[float64] = Converter[float64, uint64]{
		Inner: U64,
		To:    math.Float64bits,
		From:  math.Float64frombits,
	}
)
