// Package bitio reads and writes big-endian fields of arbitrary bit width
// over in-memory buffers, as needed by the BMFF box codecs.
package bitio

import (
	"errors"
	"fmt"

	"github.com/nareix/joy4/utils/bits/pio"
)

var (
	// ErrShortBuffer is returned when a read runs past the end of the buffer.
	ErrShortBuffer = errors.New("bitio: short buffer")

	// ErrFieldWidth is returned for bit widths outside 0..64.
	ErrFieldWidth = errors.New("bitio: invalid field width")
)

// Reader reads fields from a byte slice. The first error is sticky:
// once a read fails, every later read returns zero and the same error.
type Reader struct {
	buf []byte
	pos int   // byte position
	bit uint8 // bits already consumed in buf[pos], 0..7
	err error
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Len returns the size of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Offset returns the current position as a (byte, bit) pair.
func (r *Reader) Offset() (int, int) { return r.pos, int(r.bit) }

// Seek moves the cursor to an absolute position. The sticky error is cleared.
func (r *Reader) Seek(byteOff, bitOff int) {
	r.pos = byteOff + bitOff/8
	r.bit = uint8(bitOff % 8)
	r.err = nil
}

// Remaining returns the number of whole bytes left after the cursor.
func (r *Reader) Remaining() int {
	n := len(r.buf) - r.pos
	if r.bit != 0 {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

// HasBits reports whether at least n more bits can be read.
func (r *Reader) HasBits(n int) bool {
	avail := (len(r.buf)-r.pos)*8 - int(r.bit)
	return n <= avail
}

func (r *Reader) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return r.err
}

func (r *Reader) need(nbyte int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+nbyte > len(r.buf) {
		r.fail(fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, nbyte, r.pos, len(r.buf)-r.pos))
		return false
	}
	return true
}

// Bits reads an unsigned field of n bits (0..64), most significant bit first.
func (r *Reader) Bits(n int) (uint64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if n < 0 || n > 64 {
		return 0, r.fail(fmt.Errorf("%w: %d", ErrFieldWidth, n))
	}
	if n == 0 {
		return 0, nil
	}
	if r.bit == 0 && n%8 == 0 {
		return r.alignedUint(n / 8)
	}
	if !r.HasBits(n) {
		return 0, r.fail(fmt.Errorf("%w: need %d bits at offset %d", ErrShortBuffer, n, r.pos))
	}
	var v uint64
	for i := 0; i < n; i++ {
		b := (r.buf[r.pos] >> (7 - r.bit)) & 1
		v = v<<1 | uint64(b)
		r.bit++
		if r.bit == 8 {
			r.bit = 0
			r.pos++
		}
	}
	return v, nil
}

func (r *Reader) alignedUint(nbyte int) (uint64, error) {
	if !r.need(nbyte) {
		return 0, r.err
	}
	b := r.buf[r.pos:]
	var v uint64
	switch nbyte {
	case 1:
		v = uint64(pio.U8(b))
	case 2:
		v = uint64(pio.U16BE(b))
	case 3:
		v = uint64(pio.U24BE(b))
	case 4:
		v = uint64(pio.U32BE(b))
	case 8:
		v = pio.U64BE(b)
	default:
		for i := 0; i < nbyte; i++ {
			v = v<<8 | uint64(b[i])
		}
	}
	r.pos += nbyte
	return v, nil
}

// Bit reads a single bit.
func (r *Reader) Bit() (uint8, error) {
	v, err := r.Bits(1)
	return uint8(v), err
}

// U8 reads an 8-bit unsigned integer.
func (r *Reader) U8() (uint8, error) {
	v, err := r.Bits(8)
	return uint8(v), err
}

// U16 reads a big-endian 16-bit unsigned integer.
func (r *Reader) U16() (uint16, error) {
	v, err := r.Bits(16)
	return uint16(v), err
}

// U24 reads a big-endian 24-bit unsigned integer.
func (r *Reader) U24() (uint32, error) {
	v, err := r.Bits(24)
	return uint32(v), err
}

// U32 reads a big-endian 32-bit unsigned integer.
func (r *Reader) U32() (uint32, error) {
	v, err := r.Bits(32)
	return uint32(v), err
}

// U64 reads a big-endian 64-bit unsigned integer.
func (r *Reader) U64() (uint64, error) {
	return r.Bits(64)
}

// I16 reads a big-endian 16-bit signed integer.
func (r *Reader) I16() (int16, error) {
	v, err := r.Bits(16)
	return int16(v), err
}

// I32 reads a big-endian 32-bit signed integer.
func (r *Reader) I32() (int32, error) {
	v, err := r.Bits(32)
	return int32(v), err
}

// Bytes reads n bytes. The cursor must be byte aligned.
// The returned slice aliases the underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.bit != 0 {
		return nil, r.fail(fmt.Errorf("bitio: unaligned byte read at offset %d bit %d", r.pos, r.bit))
	}
	if n < 0 {
		return nil, r.fail(fmt.Errorf("%w: negative length %d", ErrShortBuffer, n))
	}
	if !r.need(n) {
		return nil, r.err
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

// CString reads bytes up to and including a NUL terminator, never reading
// at or past limit. It returns the bytes without the terminator and whether
// a terminator was found. Without one, everything up to limit is consumed.
func (r *Reader) CString(limit int) ([]byte, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	if limit > len(r.buf) {
		limit = len(r.buf)
	}
	start := r.pos
	for i := start; i < limit; i++ {
		if r.buf[i] == 0 {
			r.pos = i + 1
			return r.buf[start:i:i], true, nil
		}
	}
	if start > limit {
		return nil, false, r.fail(fmt.Errorf("%w: string at offset %d past limit %d", ErrShortBuffer, start, limit))
	}
	r.pos = limit
	return r.buf[start:limit:limit], false, nil
}
