package bitstream

import (
	"errors"
	"testing"

	"github.com/gosuda/partysync/partysync/core/common"
)

func TestWriteReadBitsRoundTrip(t *testing.T) {
	fields := []struct {
		v     uint64
		width uint8
	}{
		{1, 1},
		{5, 3},
		{0xAB, 8},
		{0x1FFF, 13},
		{0, 7},
		{0xDEADBEEFCAFEBABE, 64},
		{0x3, 2},
	}

	w := NewWriter(nil)
	total := 0
	for _, f := range fields {
		w.WriteBits(f.v, f.width)
		total += int(f.width)
	}
	if w.Len() != total {
		t.Fatalf("bit length mismatch: got %d, want %d", w.Len(), total)
	}
	if len(w.Bytes()) != (total+7)/8 {
		t.Fatalf("byte length mismatch: got %d, want %d", len(w.Bytes()), (total+7)/8)
	}

	r := NewReader(w.Bytes())
	for i, f := range fields {
		got, err := r.ReadBits(f.width)
		if err != nil {
			t.Fatalf("field %d: %v", i, err)
		}
		if got != f.v {
			t.Fatalf("field %d: got %#x, want %#x", i, got, f.v)
		}
	}
}

func TestWriteBitsIgnoresHighBits(t *testing.T) {
	w := NewWriter(nil)
	w.WriteBits(0xFF, 4)
	w.WriteBits(0, 4)
	if got := w.Bytes()[0]; got != 0xF0 {
		t.Fatalf("got %#x, want 0xf0", got)
	}
}

func TestMostSignificantBitFirst(t *testing.T) {
	w := NewWriter(nil)
	w.WriteBool(true)
	w.WriteBits(0, 6)
	w.WriteBool(true)
	if got := w.Bytes()[0]; got != 0x81 {
		t.Fatalf("got %#x, want 0x81", got)
	}
}

func TestUnalignedBytes(t *testing.T) {
	w := NewWriter(nil)
	w.WriteBits(1, 3)
	w.WriteBytes([]byte("hello"))

	r := NewReader(w.Bytes())
	if v, _ := r.ReadBits(3); v != 1 {
		t.Fatalf("prefix mismatch: %d", v)
	}
	buf := make([]byte, 5)
	if err := r.ReadBytes(buf); err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q", buf)
	}
}

func TestReadPastEnd(t *testing.T) {
	r := NewReader([]byte{0xFF})
	if _, err := r.ReadBits(7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.ReadBits(2); !errors.Is(err, common.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if err := r.ReadBytes(make([]byte, 1)); !errors.Is(err, common.ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestWriterReset(t *testing.T) {
	w := NewWriter(make([]byte, 0, 16))
	w.WriteBits(0x7F, 7)
	w.Reset()
	if w.Len() != 0 || len(w.Bytes()) != 0 {
		t.Fatal("reset should clear the writer")
	}
	w.WriteBits(1, 1)
	if w.Bytes()[0] != 0x80 {
		t.Fatalf("stale bits after reset: %#x", w.Bytes()[0])
	}
}
