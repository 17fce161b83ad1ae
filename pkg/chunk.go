package beagle

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Chunk is an append-only byte buffer with a read cursor. It's the unit of
// inter-stage transfer: a producer stage writes one logical statement into a
// Chunk and hands it off by value through a channel, after which the
// consumer owns it exclusively.
//
// Wire format, all fixed-width fields big-endian:
//
//	u8      opcode / bool (0x00 = false, 0x01 = true)
//	i32     32-bit signed integer, also used as the length prefix of strings
//	f32     32-bit IEEE-754 float
//	u64     64-bit unsigned integer, used for BiPos fields
//	string  i32 length prefix followed by that many UTF-8 bytes
//	BiPos   eight u64s, in this order: start.line, start.col, end.line,
//	        end.col, offset.line, offset.col, line_region.line,
//	        line_region.col.
//
// A Chunk is self-describing only by convention of the stage that wrote it:
// nothing in the wire format says what the next byte means, so readers must
// know the grammar of the opcode stream they're consuming.
type Chunk struct {
	buf    []byte
	cursor int
}

// NewChunk returns an empty Chunk ready for writing.
func NewChunk() *Chunk {
	return &Chunk{buf: make([]byte, 0, 16)}
}

// Bytes returns the chunk's underlying byte slice. Callers must not retain
// the slice across further writes to the chunk.
func (c *Chunk) Bytes() []byte {
	return c.buf
}

// Len returns the number of bytes written to the chunk.
func (c *Chunk) Len() int {
	return len(c.buf)
}

// CanRead reports whether at least one more byte remains unread.
func (c *Chunk) CanRead() bool {
	return c.cursor < len(c.buf)
}

// Remaining returns the number of unread bytes.
func (c *Chunk) Remaining() int {
	return len(c.buf) - c.cursor
}

// WriteByte appends a single raw byte.
func (c *Chunk) WriteByte(b byte) {
	c.buf = append(c.buf, b)
}

// WriteOpcode appends a one-byte opcode.
func (c *Chunk) WriteOpcode(op byte) {
	c.WriteByte(op)
}

// WriteBool appends a boolean as 0x00/0x01.
func (c *Chunk) WriteBool(v bool) {
	if v {
		c.WriteByte(0x01)
		return
	}
	c.WriteByte(0x00)
}

// WriteI32 appends a big-endian i32.
func (c *Chunk) WriteI32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	c.buf = append(c.buf, b[:]...)
}

// WriteF32 appends a big-endian f32.
func (c *Chunk) WriteF32(v float32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	c.buf = append(c.buf, b[:]...)
}

// WriteU64 appends a big-endian u64.
func (c *Chunk) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	c.buf = append(c.buf, b[:]...)
}

// WriteString appends an i32 length prefix followed by the UTF-8 bytes of s.
func (c *Chunk) WriteString(s string) {
	c.WriteI32(int32(len(s)))
	c.buf = append(c.buf, s...)
}

// WritePos appends a BiPos as eight u64s, per the wire format documented on
// Chunk.
func (c *Chunk) WritePos(p BiPos) {
	c.WriteU64(uint64(p.Start.Line))
	c.WriteU64(uint64(p.Start.Col))
	c.WriteU64(uint64(p.End.Line))
	c.WriteU64(uint64(p.End.Col))
	c.WriteU64(uint64(p.Offset.Line))
	c.WriteU64(uint64(p.Offset.Col))
	c.WriteU64(uint64(p.LineRegion.Line))
	c.WriteU64(uint64(p.LineRegion.Col))
}

// WriteChunk appends the entirety of other's bytes, leaving other untouched.
func (c *Chunk) WriteChunk(other *Chunk) {
	c.buf = append(c.buf, other.buf...)
}

// ReadByte consumes and returns the next raw byte.
func (c *Chunk) ReadByte() (byte, error) {
	if !c.CanRead() {
		return 0, errors.New("beagle: read past end of chunk")
	}
	b := c.buf[c.cursor]
	c.cursor++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (c *Chunk) PeekByte() (byte, error) {
	if !c.CanRead() {
		return 0, errors.New("beagle: peek past end of chunk")
	}
	return c.buf[c.cursor], nil
}

// ReadBool consumes one byte and interprets it as a boolean.
func (c *Chunk) ReadBool() (bool, error) {
	b, err := c.ReadByte()
	if err != nil {
		return false, err
	}
	return b == 0x01, nil
}

// ReadI32 consumes a big-endian i32.
func (c *Chunk) ReadI32() (int32, error) {
	if c.Remaining() < 4 {
		return 0, errors.Errorf("beagle: want 4 bytes for i32, have %d", c.Remaining())
	}
	v := binary.BigEndian.Uint32(c.buf[c.cursor : c.cursor+4])
	c.cursor += 4
	return int32(v), nil
}

// ReadF32 consumes a big-endian f32.
func (c *Chunk) ReadF32() (float32, error) {
	if c.Remaining() < 4 {
		return 0, errors.Errorf("beagle: want 4 bytes for f32, have %d", c.Remaining())
	}
	v := binary.BigEndian.Uint32(c.buf[c.cursor : c.cursor+4])
	c.cursor += 4
	return math.Float32frombits(v), nil
}

// ReadU64 consumes a big-endian u64.
func (c *Chunk) ReadU64() (uint64, error) {
	if c.Remaining() < 8 {
		return 0, errors.Errorf("beagle: want 8 bytes for u64, have %d", c.Remaining())
	}
	v := binary.BigEndian.Uint64(c.buf[c.cursor : c.cursor+8])
	c.cursor += 8
	return v, nil
}

// ReadString consumes an i32 length prefix and that many bytes of UTF-8.
func (c *Chunk) ReadString() (string, error) {
	n, err := c.ReadI32()
	if err != nil {
		return "", errors.Wrap(err, "beagle: reading string length prefix")
	}
	if n < 0 || c.Remaining() < int(n) {
		return "", errors.Errorf("beagle: invalid string length %d with %d bytes remaining", n, c.Remaining())
	}
	s := string(c.buf[c.cursor : c.cursor+int(n)])
	c.cursor += int(n)
	return s, nil
}

// ReadPos consumes a BiPos per the wire format documented on Chunk.
func (c *Chunk) ReadPos() (BiPos, error) {
	fields := make([]uint64, 8)
	for i := range fields {
		v, err := c.ReadU64()
		if err != nil {
			return BiPos{}, errors.Wrapf(err, "beagle: reading BiPos field %d", i)
		}
		fields[i] = v
	}
	return BiPos{
		Start:      Position{Line: int(fields[0]), Col: int(fields[1])},
		End:        Position{Line: int(fields[2]), Col: int(fields[3])},
		Offset:     Position{Line: int(fields[4]), Col: int(fields[5])},
		LineRegion: Position{Line: int(fields[6]), Col: int(fields[7])},
	}, nil
}

func (c *Chunk) String() string {
	return fmt.Sprintf("Chunk(%d bytes, cursor=%d)", len(c.buf), c.cursor)
}
