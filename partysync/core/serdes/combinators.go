package serdes

import (
	"cmp"
	"maps"
	"slices"
	"unicode/utf8"

	"github.com/gosuda/partysync/partysync/core/bitstream"
	"github.com/gosuda/partysync/partysync/core/common"
)

// Branching writes one discriminator bit and then encodes with Small when
// Large(v) is false, or with Big otherwise. Large must report true exactly
// when v does not fit Small's domain.
type Branching[T any] struct {
	Large func(T) bool
	Small Serializer[T]
	Big   Serializer[T]
}

func (b Branching[T]) Serialize(w *bitstream.Writer, v T) {
	if b.Large(v) {
		w.WriteBool(true)
		b.Big.Serialize(w, v)
		return
	}
	w.WriteBool(false)
	b.Small.Serialize(w, v)
}

func (b Branching[T]) Deserialize(r *bitstream.Reader) (T, error) {
	large, err := r.ReadBool()
	if err != nil {
		var zero T
		return zero, err
	}
	if large {
		return b.Big.Deserialize(r)
	}
	return b.Small.Deserialize(r)
}

// Converter reuses the wire layout of an R codec for a logical type L.
type Converter[L, R any] struct {
	Inner Serializer[R]
	To    func(L) R
	From  func(R) L
}

func (c Converter[L, R]) Serialize(w *bitstream.Writer, v L) {
	c.Inner.Serialize(w, c.To(v))
}

func (c Converter[L, R]) Deserialize(r *bitstream.Reader) (L, error) {
	v, err := c.Inner.Deserialize(r)
	if err != nil {
		var zero L
		return zero, err
	}
	return c.From(v), nil
}

type boolSerializer struct{}

func (boolSerializer) Serialize(w *bitstream.Writer, v bool) {
	w.WriteBool(v)
}

func (boolSerializer) Deserialize(r *bitstream.Reader) (bool, error) {
	return r.ReadBool()
}

// Optional prefixes a presence bit; nil encodes as a single zero bit.
type Optional[T any] struct {
	Inner Serializer[T]
}

func (o Optional[T]) Serialize(w *bitstream.Writer, v *T) {
	w.WriteBool(v != nil)
	if v != nil {
		o.Inner.Serialize(w, *v)
	}
}

func (o Optional[T]) Deserialize(r *bitstream.Reader) (*T, error) {
	present, err := r.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	v, err := o.Inner.Deserialize(r)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// String encodes a length on the packed ladder followed by raw bytes.
// Values longer than MaxLen are cut with Truncate.
type String struct {
	MaxLen int
}

// Truncate shortens v to at most limit bytes without splitting a UTF-8
// sequence. A non-positive limit leaves v unchanged.
func Truncate(v string, limit int) string {
	if limit <= 0 || len(v) <= limit {
		return v
	}
	n := limit
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}

func (s String) Serialize(w *bitstream.Writer, v string) {
	v = Truncate(v, s.MaxLen)
	PackedU32.Serialize(w, uint32(len(v)))
	w.WriteBytes([]byte(v))
}

func (s String) Deserialize(r *bitstream.Reader) (string, error) {
	n, err := PackedU32.Deserialize(r)
	if err != nil {
		return "", err
	}
	if s.MaxLen > 0 && int(n) > s.MaxLen {
		return "", common.ErrStringTooLong
	}
	if int(n)*8 > r.Remaining() {
		return "", common.ErrShortBuffer
	}
	buf := make([]byte, n)
	if err := r.ReadBytes(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Map encodes an entry count followed by key/value pairs in ascending key
// order so equal maps always produce equal bytes.
type Map[K cmp.Ordered, V any] struct {
	Keys   Serializer[K]
	Values Serializer[V]
}

func (m Map[K, V]) Serialize(w *bitstream.Writer, v map[K]V) {
	PackedU32.Serialize(w, uint32(len(v)))
	for _, k := range slices.Sorted(maps.Keys(v)) {
		m.Keys.Serialize(w, k)
		m.Values.Serialize(w, v[k])
	}
}

func (m Map[K, V]) Deserialize(r *bitstream.Reader) (map[K]V, error) {
	n, err := PackedU32.Deserialize(r)
	if err != nil {
		return nil, err
	}
	// every entry costs at least one bit
	if int(n) > r.Remaining() {
		return nil, common.ErrShortBuffer
	}
	out := make(map[K]V, n)
	for range n {
		k, err := m.Keys.Deserialize(r)
		if err != nil {
			return nil, err
		}
		v, err := m.Values.Deserialize(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
