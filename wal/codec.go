package wal

import (
	"encoding/binary"
)

const lsaSize = 10

// coder is a cursor over a byte slice used by the explicit binary codecs in
// this package. All multi-byte fields are big-endian. Callers are expected
// to have checked the buffer length up front; the codecs never read or write
// past a correctly sized buffer.
type coder struct {
	buf []byte
	off int
}

func (c *coder) putUint8(u uint8) {
	c.buf[c.off] = u
	c.off += 1
}

func (c *coder) putUint16(u uint16) {
	binary.BigEndian.PutUint16(c.buf[c.off:], u)
	c.off += 2
}

func (c *coder) putUint32(u uint32) {
	binary.BigEndian.PutUint32(c.buf[c.off:], u)
	c.off += 4
}

func (c *coder) putUint64(u uint64) {
	binary.BigEndian.PutUint64(c.buf[c.off:], u)
	c.off += 8
}

func (c *coder) putInt16(i int16) {
	c.putUint16(uint16(i))
}

func (c *coder) putInt32(i int32) {
	c.putUint32(uint32(i))
}

func (c *coder) putInt64(i int64) {
	c.putUint64(uint64(i))
}

func (c *coder) putLsa(lsa Lsa) {
	c.putInt64(lsa.PageID)
	c.putUint16(lsa.Offset)
}

func (c *coder) putBool(b bool) {
	if b {
		c.putUint8(1)
	} else {
		c.putUint8(0)
	}
}

// putString writes s into a fixed-width, zero-padded field; s is truncated
// if it is longer than width.
func (c *coder) putString(s string, width int) {
	f := c.buf[c.off : c.off+width]
	for i := range f {
		f[i] = 0
	}
	copy(f, s)
	c.off += width
}

func (c *coder) skip(n int) {
	c.off += n
}

func (c *coder) uint8() uint8 {
	u := c.buf[c.off]
	c.off += 1
	return u
}

func (c *coder) uint16() uint16 {
	u := binary.BigEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return u
}

func (c *coder) uint32() uint32 {
	u := binary.BigEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return u
}

func (c *coder) uint64() uint64 {
	u := binary.BigEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return u
}

func (c *coder) int16() int16 {
	return int16(c.uint16())
}

func (c *coder) int32() int32 {
	return int32(c.uint32())
}

func (c *coder) int64() int64 {
	return int64(c.uint64())
}

func (c *coder) lsa() Lsa {
	pageID := c.int64()
	offset := c.uint16()
	return Lsa{PageID: pageID, Offset: offset}
}

func (c *coder) bool() bool {
	return c.uint8() != 0
}

func (c *coder) string(width int) string {
	f := c.buf[c.off : c.off+width]
	c.off += width
	for i := range f {
		if f[i] == 0 {
			return string(f[:i])
		}
	}
	return string(f)
}
