// Package serdes builds compact bit-level codecs out of small composable
// strategies: fixed-width primitives, branching ladders that pick the
// narrowest layout at encode time, converters between logical and wire
// types, and quantized floats.
package serdes

import "github.com/gosuda/partysync/partysync/core/bitstream"

// Serializer encodes and decodes values of T. Lossless serializers satisfy
// Deserialize(Serialize(x)) == x for every x in their domain.
type Serializer[T any] interface {
	Serialize(w *bitstream.Writer, v T)
	Deserialize(r *bitstream.Reader) (T, error)
}

// Integer is the set of fixed-size integer types the numeric codecs support.
type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Float is the set of types the quantized codecs accept.
type Float interface {
	~float32 | ~float64
}

// Encode runs s over v into a fresh byte-padded buffer.
func Encode[T any](s Serializer[T], v T) []byte {
	w := bitstream.NewWriter(nil)
	s.Serialize(w, v)
	return w.Bytes()
}

// Decode runs s over data.
func Decode[T any](s Serializer[T], data []byte) (T, error) {
	return s.Deserialize(bitstream.NewReader(data))
}

// BitLen reports how many bits s spends on v.
func BitLen[T any](s Serializer[T], v T) int {
	w := bitstream.NewWriter(nil)
	s.Serialize(w, v)
	return w.Len()
}
