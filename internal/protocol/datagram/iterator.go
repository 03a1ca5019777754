package datagram

import (
	"encoding/binary"
	"math"
)

// Iterator reads a datagram front to back. A failed read leaves the cursor
// where it was.
type Iterator struct {
	buf     []byte
	pos     int
	charset Charset
}

func NewIterator(b []byte) *Iterator {
	return &Iterator{buf: b}
}

// SetCharset chooses the text mapping used by later ReadString calls.
func (it *Iterator) SetCharset(c Charset) { it.charset = c }

// Remaining returns the number of unread bytes.
func (it *Iterator) Remaining() int {
	return len(it.buf) - it.pos
}

// Tell returns the read cursor.
func (it *Iterator) Tell() int {
	return it.pos
}

// RemainingBytes returns the unread bytes without copying.
func (it *Iterator) RemainingBytes() []byte {
	return it.buf[it.pos:]
}

func (it *Iterator) take(n int) ([]byte, error) {
	if n < 0 || it.Remaining() < n {
		return nil, ErrBufferUnderflow
	}
	b := it.buf[it.pos : it.pos+n]
	it.pos += n
	return b, nil
}

func (it *Iterator) Skip(n int) error {
	_, err := it.take(n)
	return err
}

func (it *Iterator) ReadUint8() (uint8, error) {
	b, err := it.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (it *Iterator) ReadInt8() (int8, error) {
	v, err := it.ReadUint8()
	return int8(v), err
}

func (it *Iterator) ReadBool() (bool, error) {
	v, err := it.ReadUint8()
	return v != 0, err
}

func (it *Iterator) ReadUint16() (uint16, error) {
	b, err := it.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (it *Iterator) ReadInt16() (int16, error) {
	v, err := it.ReadUint16()
	return int16(v), err
}

func (it *Iterator) ReadUint32() (uint32, error) {
	b, err := it.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (it *Iterator) ReadInt32() (int32, error) {
	v, err := it.ReadUint32()
	return int32(v), err
}

func (it *Iterator) ReadUint64() (uint64, error) {
	b, err := it.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (it *Iterator) ReadInt64() (int64, error) {
	v, err := it.ReadUint64()
	return int64(v), err
}

func (it *Iterator) ReadFloat64() (float64, error) {
	v, err := it.ReadUint64()
	return math.Float64frombits(v), err
}

func (it *Iterator) ReadChannel() (uint64, error) {
	return it.ReadUint64()
}

// ReadString reads a u16-length string. On underflow the cursor is
// restored to before the length.
func (it *Iterator) ReadString() (string, error) {
	b, err := it.ReadBlob()
	if err != nil {
		return "", err
	}
	return it.charset.decode(string(b))
}

// ReadBlob reads a u16-length byte slice and returns a copy.
func (it *Iterator) ReadBlob() ([]byte, error) {
	start := it.pos
	n, err := it.ReadUint16()
	if err != nil {
		return nil, err
	}
	b, err := it.take(int(n))
	if err != nil {
		it.pos = start
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
