package datagram

import (
	"encoding/binary"
	"errors"
	"math"
)

const (
	defaultCapacity = 16
	// MaxStringLen is the longest string or blob a u16 length prefix can carry.
	MaxStringLen = math.MaxUint16
)

var (
	ErrValueTooLarge   = errors.New("datagram: value too large")
	ErrBufferUnderflow = errors.New("datagram: buffer underflow")
)

// Datagram is an append-only little-endian message buffer.
type Datagram struct {
	buf     []byte
	charset Charset
}

func New() *Datagram {
	return &Datagram{buf: make([]byte, 0, defaultCapacity)}
}

// NewWithType starts a datagram with a leading u16 message type tag.
func NewWithType(msgType uint16) *Datagram {
	dg := New()
	dg.WriteUint16(msgType)
	return dg
}

// FromBytes wraps b as already-written datagram contents.
func FromBytes(b []byte) *Datagram {
	return &Datagram{buf: b}
}

// SetCharset chooses the text mapping used by later WriteString calls.
func (d *Datagram) SetCharset(c Charset) { d.charset = c }

func (d *Datagram) Bytes() []byte { return d.buf }

func (d *Datagram) Len() int { return len(d.buf) }

func (d *Datagram) Cap() int { return cap(d.buf) }

func (d *Datagram) Reset() { d.buf = d.buf[:0] }

// grow reserves n more bytes, doubling capacity until they fit.
func (d *Datagram) grow(n int) []byte {
	size := len(d.buf)
	if size+n > cap(d.buf) {
		c := cap(d.buf)
		if c == 0 {
			c = defaultCapacity
		}
		for c < size+n {
			c *= 2
		}
		next := make([]byte, size, c)
		copy(next, d.buf)
		d.buf = next
	}
	d.buf = d.buf[:size+n]
	return d.buf[size:]
}

func (d *Datagram) WriteUint8(v uint8) {
	d.grow(1)[0] = v
}

func (d *Datagram) WriteInt8(v int8) {
	d.WriteUint8(uint8(v))
}

func (d *Datagram) WriteBool(v bool) {
	if v {
		d.WriteUint8(1)
		return
	}
	d.WriteUint8(0)
}

func (d *Datagram) WriteUint16(v uint16) {
	binary.LittleEndian.PutUint16(d.grow(2), v)
}

func (d *Datagram) WriteInt16(v int16) {
	d.WriteUint16(uint16(v))
}

func (d *Datagram) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(d.grow(4), v)
}

func (d *Datagram) WriteInt32(v int32) {
	d.WriteUint32(uint32(v))
}

func (d *Datagram) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(d.grow(8), v)
}

func (d *Datagram) WriteInt64(v int64) {
	d.WriteUint64(uint64(v))
}

func (d *Datagram) WriteFloat64(v float64) {
	d.WriteUint64(math.Float64bits(v))
}

// WriteChannel writes a routing address.
func (d *Datagram) WriteChannel(ch uint64) {
	d.WriteUint64(ch)
}

// WriteString writes a u16 length followed by one byte per character,
// mapped through the datagram's charset.
func (d *Datagram) WriteString(s string) error {
	s, err := d.charset.encode(s)
	if err != nil {
		return err
	}
	if len(s) > MaxStringLen {
		return ErrValueTooLarge
	}
	d.WriteUint16(uint16(len(s)))
	copy(d.grow(len(s)), s)
	return nil
}

// WriteBlob writes a u16 length followed by the raw bytes.
func (d *Datagram) WriteBlob(b []byte) error {
	if len(b) > MaxStringLen {
		return ErrValueTooLarge
	}
	d.WriteUint16(uint16(len(b)))
	copy(d.grow(len(b)), b)
	return nil
}

// WriteRaw appends b with no length prefix.
func (d *Datagram) WriteRaw(b []byte) {
	copy(d.grow(len(b)), b)
}

// WriteServerHeader writes a single-recipient address prefix and a message type.
func (d *Datagram) WriteServerHeader(to, from uint64, msgType uint16) {
	d.WriteUint8(1)
	d.WriteChannel(to)
	d.WriteChannel(from)
	d.WriteUint16(msgType)
}

// WriteControlHeader writes the message director control prefix, which
// carries no sender.
func (d *Datagram) WriteControlHeader(controlChannel uint64, msgType uint16) {
	d.WriteUint8(1)
	d.WriteChannel(controlChannel)
	d.WriteUint16(msgType)
}
