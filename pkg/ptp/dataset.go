package ptp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Dataset errors.
var (
	ErrDatasetTruncated = errors.New("dataset truncated")
	ErrStringTooLong    = errors.New("string exceeds 254 UTF-16 code units")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// maxStringUnits is the longest string a u8 count can describe, excluding
// the NUL terminator.
const maxStringUnits = 254

// Encoder packs dataset fields in little-endian order.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, 128)}
}

// Bytes returns the encoded dataset and the first error encountered.
func (e *Encoder) Bytes() ([]byte, error) {
	return e.buf, e.err
}

// Uint8 appends a u8.
func (e *Encoder) Uint8(v uint8) { e.buf = append(e.buf, v) }

// Uint16 appends a u16.
func (e *Encoder) Uint16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }

// Uint32 appends a u32.
func (e *Encoder) Uint32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

// Uint64 appends a u64.
func (e *Encoder) Uint64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

// Uint16Array appends a u32 count followed by u16 elements.
func (e *Encoder) Uint16Array(vs []uint16) {
	e.Uint32(uint32(len(vs)))
	for _, v := range vs {
		e.Uint16(v)
	}
}

// Uint32Array appends a u32 count followed by u32 elements.
func (e *Encoder) Uint32Array(vs []uint32) {
	e.Uint32(uint32(len(vs)))
	for _, v := range vs {
		e.Uint32(v)
	}
}

// String appends a PTP string.
func (e *Encoder) String(s string) {
	if s == "" {
		e.Uint8(0)
		return
	}
	units, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		e.fail(fmt.Errorf("encode %q: %w", s, err))
		e.Uint8(0)
		return
	}
	n := len(units) / 2
	if n > maxStringUnits {
		e.fail(fmt.Errorf("%w: %d", ErrStringTooLong, n))
		e.Uint8(0)
		return
	}
	e.Uint8(uint8(n + 1))
	e.buf = append(e.buf, units...)
	e.Uint16(0)
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Decoder unpacks dataset fields. The first short read latches an error;
// later reads return zero values.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of undecoded bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrDatasetTruncated, n, d.off, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Uint8 reads a u8.
func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a u16.
func (d *Decoder) Uint16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// Uint32 reads a u32.
func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 reads a u64.
func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Uint16Array reads a counted u16 array.
func (d *Decoder) Uint16Array() []uint16 {
	n := int(d.Uint32())
	if d.err != nil || n == 0 {
		return nil
	}
	if n > d.Remaining()/2 {
		d.take(n * 2)
		return nil
	}
	vs := make([]uint16, n)
	for i := range vs {
		vs[i] = d.Uint16()
	}
	return vs
}

// Uint32Array reads a counted u32 array.
func (d *Decoder) Uint32Array() []uint32 {
	n := int(d.Uint32())
	if d.err != nil || n == 0 {
		return nil
	}
	if n > d.Remaining()/4 {
		d.take(n * 4)
		return nil
	}
	vs := make([]uint32, n)
	for i := range vs {
		vs[i] = d.Uint32()
	}
	return vs
}

// String reads a PTP string.
func (d *Decoder) String() string {
	n := int(d.Uint8())
	if n == 0 {
		return ""
	}
	raw := d.take(n * 2)
	if raw == nil {
		return ""
	}
	s, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		d.err = fmt.Errorf("decode string: %w", err)
		return ""
	}
	return strings.TrimRight(string(s), "\x00")
}
