package bitio

import (
	"fmt"

	"github.com/nareix/joy4/utils/bits/pio"
)

// Writer appends fields to a growing buffer and supports overwriting
// previously written fields by absolute offset.
type Writer struct {
	buf []byte
	bit uint8 // bits used in the last byte, 0 means byte aligned
}

// NewWriter returns a Writer with capacity for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the written data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes started so far. A partially written
// trailing byte counts as one.
func (w *Writer) Len() int { return len(w.buf) }

// Aligned reports whether the writer sits on a byte boundary.
func (w *Writer) Aligned() bool { return w.bit == 0 }

func (w *Writer) grow(n int) []byte {
	l := len(w.buf)
	if cap(w.buf)-l < n {
		nb := make([]byte, l, 2*cap(w.buf)+n)
		copy(nb, w.buf)
		w.buf = nb
	}
	w.buf = w.buf[:l+n]
	return w.buf[l:]
}

// PutBits appends the low n bits of v, most significant bit first.
func (w *Writer) PutBits(v uint64, n int) {
	if n <= 0 {
		return
	}
	if w.bit == 0 && n%8 == 0 {
		w.putAligned(v, n/8)
		return
	}
	for i := n - 1; i >= 0; i-- {
		if w.bit == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 != 0 {
			w.buf[len(w.buf)-1] |= 1 << (7 - w.bit)
		}
		w.bit = (w.bit + 1) % 8
	}
}

func (w *Writer) putAligned(v uint64, nbyte int) {
	b := w.grow(nbyte)
	switch nbyte {
	case 1:
		pio.PutU8(b, uint8(v))
	case 2:
		pio.PutU16BE(b, uint16(v))
	case 3:
		pio.PutU24BE(b, uint32(v))
	case 4:
		pio.PutU32BE(b, uint32(v))
	case 8:
		pio.PutU64BE(b, v)
	default:
		for i := nbyte - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
	}
}

// PutBit appends a single bit.
func (w *Writer) PutBit(v uint8) { w.PutBits(uint64(v), 1) }

// PutU8 appends an 8-bit unsigned integer.
func (w *Writer) PutU8(v uint8) { w.PutBits(uint64(v), 8) }

// PutU16 appends a big-endian 16-bit unsigned integer.
func (w *Writer) PutU16(v uint16) { w.PutBits(uint64(v), 16) }

// PutU24 appends a big-endian 24-bit unsigned integer.
func (w *Writer) PutU24(v uint32) { w.PutBits(uint64(v), 24) }

// PutU32 appends a big-endian 32-bit unsigned integer.
func (w *Writer) PutU32(v uint32) { w.PutBits(uint64(v), 32) }

// PutU64 appends a big-endian 64-bit unsigned integer.
func (w *Writer) PutU64(v uint64) { w.PutBits(v, 64) }

// PutI16 appends a big-endian 16-bit signed integer.
func (w *Writer) PutI16(v int16) { w.PutBits(uint64(uint16(v)), 16) }

// PutI32 appends a big-endian 32-bit signed integer.
func (w *Writer) PutI32(v int32) { w.PutBits(uint64(uint32(v)), 32) }

// PutBytes appends raw bytes. The writer must be byte aligned.
func (w *Writer) PutBytes(p []byte) {
	if w.bit != 0 {
		for _, c := range p {
			w.PutBits(uint64(c), 8)
		}
		return
	}
	w.buf = append(w.buf, p...)
}

// Patch overwrites a width-byte big-endian field at off with v.
// Supported widths are 1, 2, 4 and 8.
func (w *Writer) Patch(off, width int, v uint64) error {
	if off < 0 || off+width > len(w.buf) {
		return fmt.Errorf("%w: patch of %d bytes at offset %d, have %d", ErrShortBuffer, width, off, len(w.buf))
	}
	b := w.buf[off:]
	switch width {
	case 1:
		pio.PutU8(b, uint8(v))
	case 2:
		pio.PutU16BE(b, uint16(v))
	case 4:
		pio.PutU32BE(b, uint32(v))
	case 8:
		pio.PutU64BE(b, v)
	default:
		return fmt.Errorf("%w: %d bytes", ErrFieldWidth, width)
	}
	return nil
}
