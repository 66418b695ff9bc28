// Package bitstream addresses byte buffers at bit granularity.
//
// Bits are written most significant first, filling each byte from its high
// bit down, so a frame written here can be read by any reader that walks the
// buffer in network order.
package bitstream

import "github.com/gosuda/partysync/partysync/core/common"

// Writer appends bits to a growable buffer.
type Writer struct {
	buf  []byte
	bits int
}

// NewWriter returns a writer that appends to dst[:0].
func NewWriter(dst []byte) *Writer {
	return &Writer{buf: dst[:0]}
}

// WriteBits writes the low width bits of v. Width is clamped to 64.
func (w *Writer) WriteBits(v uint64, width uint8) {
	if width > 64 {
		width = 64
	}
	for width > 0 {
		if w.bits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		free := 8 - uint8(w.bits%8)
		n := min(free, width)
		chunk := byte(v>>(width-n)) & byte(1<<n-1)
		w.buf[len(w.buf)-1] |= chunk << (free - n)
		w.bits += int(n)
		width -= n
	}
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteBytes writes p eight bits per byte without realigning the cursor.
func (w *Writer) WriteBytes(p []byte) {
	if w.bits%8 == 0 {
		w.buf = append(w.buf, p...)
		w.bits += len(p) * 8
		return
	}
	for _, b := range p {
		w.WriteBits(uint64(b), 8)
	}
}

// Len reports the number of bits written.
func (w *Writer) Len() int {
	return w.bits
}

// Bytes returns the written bytes. The final byte is zero padded.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reset clears the writer while keeping its buffer.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.bits = 0
}

// Reader consumes bits from a fixed buffer.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(src []byte) *Reader {
	return &Reader{buf: src}
}

// ReadBits reads width bits into the low bits of the result.
func (r *Reader) ReadBits(width uint8) (uint64, error) {
	if width > 64 {
		width = 64
	}
	if r.pos+int(width) > len(r.buf)*8 {
		return 0, common.ErrShortBuffer
	}
	var v uint64
	for width > 0 {
		avail := 8 - uint8(r.pos%8)
		n := min(avail, width)
		b := r.buf[r.pos/8] >> (avail - n) & byte(1<<n-1)
		v = v<<n | uint64(b)
		r.pos += int(n)
		width -= n
	}
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadBytes fills p from the stream.
func (r *Reader) ReadBytes(p []byte) error {
	if r.pos+len(p)*8 > len(r.buf)*8 {
		return common.ErrShortBuffer
	}
	if r.pos%8 == 0 {
		copy(p, r.buf[r.pos/8:])
		r.pos += len(p) * 8
		return nil
	}
	for i := range p {
		v, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		p[i] = byte(v)
	}
	return nil
}

// Remaining reports how many unread bits are left, padding included.
func (r *Reader) Remaining() int {
	return len(r.buf)*8 - r.pos
}

// Pos reports the number of bits consumed.
func (r *Reader) Pos() int {
	return r.pos
}
