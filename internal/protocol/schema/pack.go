package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/danmuck/dorepo/internal/protocol/datagram"
)

var ErrArgMismatch = errors.New("schema: argument mismatch")

// PackArgs writes args for f using its declared encodings. Integer
// arguments may be any Go integer type as long as the value fits.
func PackArgs(dg *datagram.Datagram, f *Field, args []any) error {
	if len(args) != len(f.Params) {
		return fmt.Errorf("%w: field %s wants %d args, got %d", ErrArgMismatch, f.Name, len(f.Params), len(args))
	}
	for i, enc := range f.Params {
		if err := packValue(dg, enc, args[i]); err != nil {
			return fmt.Errorf("field %s arg %d: %w", f.Name, i, err)
		}
	}
	return nil
}

// UnpackArgs decodes one value per declared encoding.
func UnpackArgs(it *datagram.Iterator, f *Field) ([]any, error) {
	out := make([]any, 0, len(f.Params))
	for _, enc := range f.Params {
		v, err := unpackValue(it, enc)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SkipArgs advances past f's arguments without building values.
func SkipArgs(it *datagram.Iterator, f *Field) error {
	for _, enc := range f.Params {
		var err error
		switch enc {
		case Int8, Uint8, Bool:
			err = it.Skip(1)
		case Int16, Uint16:
			err = it.Skip(2)
		case Int32, Uint32:
			err = it.Skip(4)
		case Int64, Uint64, Float64:
			err = it.Skip(8)
		case String, Blob:
			var n uint16
			if n, err = it.ReadUint16(); err == nil {
				err = it.Skip(int(n))
			}
		default:
			err = fmt.Errorf("%w: invalid encoding %d", ErrArgMismatch, enc)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
	}
	return nil
}

// EncodeArgs packs args for f into a standalone buffer, e.g. for Default.
func EncodeArgs(f *Field, args ...any) ([]byte, error) {
	dg := datagram.New()
	if err := PackArgs(dg, f, args); err != nil {
		return nil, err
	}
	return dg.Bytes(), nil
}

func packValue(dg *datagram.Datagram, enc Encoding, v any) error {
	switch enc {
	case Int8, Int16, Int32, Int64:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		lo, hi := intBounds(enc)
		if n < lo || n > hi {
			return fmt.Errorf("%w: %d overflows %s", ErrArgMismatch, n, enc)
		}
		switch enc {
		case Int8:
			dg.WriteInt8(int8(n))
		case Int16:
			dg.WriteInt16(int16(n))
		case Int32:
			dg.WriteInt32(int32(n))
		default:
			dg.WriteInt64(n)
		}
	case Uint8, Uint16, Uint32, Uint64:
		n, err := asUint64(v)
		if err != nil {
			return err
		}
		if n > uintMax(enc) {
			return fmt.Errorf("%w: %d overflows %s", ErrArgMismatch, n, enc)
		}
		switch enc {
		case Uint8:
			dg.WriteUint8(uint8(n))
		case Uint16:
			dg.WriteUint16(uint16(n))
		case Uint32:
			dg.WriteUint32(uint32(n))
		default:
			dg.WriteUint64(n)
		}
	case Float64:
		switch x := v.(type) {
		case float64:
			dg.WriteFloat64(x)
		case float32:
			dg.WriteFloat64(float64(x))
		default:
			return fmt.Errorf("%w: want float64, got %T", ErrArgMismatch, v)
		}
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: want bool, got %T", ErrArgMismatch, v)
		}
		dg.WriteBool(b)
	case String:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: want string, got %T", ErrArgMismatch, v)
		}
		return dg.WriteString(s)
	case Blob:
		b, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("%w: want []byte, got %T", ErrArgMismatch, v)
		}
		return dg.WriteBlob(b)
	default:
		return fmt.Errorf("%w: invalid encoding %d", ErrArgMismatch, enc)
	}
	return nil
}

func unpackValue(it *datagram.Iterator, enc Encoding) (any, error) {
	switch enc {
	case Int8:
		return it.ReadInt8()
	case Int16:
		return it.ReadInt16()
	case Int32:
		return it.ReadInt32()
	case Int64:
		return it.ReadInt64()
	case Uint8:
		return it.ReadUint8()
	case Uint16:
		return it.ReadUint16()
	case Uint32:
		return it.ReadUint32()
	case Uint64:
		return it.ReadUint64()
	case Float64:
		return it.ReadFloat64()
	case Bool:
		return it.ReadBool()
	case String:
		return it.ReadString()
	case Blob:
		return it.ReadBlob()
	default:
		return nil, fmt.Errorf("%w: invalid encoding %d", ErrArgMismatch, enc)
	}
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrArgMismatch, x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrArgMismatch, x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("%w: want integer, got %T", ErrArgMismatch, v)
	}
}

func asUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint:
		return uint64(x), nil
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	case uint64:
		return x, nil
	}
	n, err := asInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value %d for unsigned field", ErrArgMismatch, n)
	}
	return uint64(n), nil
}

func intBounds(enc Encoding) (int64, int64) {
	switch enc {
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func uintMax(enc Encoding) uint64 {
	switch enc {
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	default:
		return math.MaxUint64
	}
}

// ParseValue converts a textual value, as found in config files, to the Go
// type UnpackArgs would produce for enc.
func ParseValue(enc Encoding, raw string) (any, error) {
	switch enc {
	case Int8, Int16, Int32, Int64:
		lo, hi := intBounds(enc)
		n, err := strconv.ParseInt(raw, 0, 64)
		if err != nil || n < lo || n > hi {
			return nil, fmt.Errorf("%w: %q is not a valid %s", ErrArgMismatch, raw, enc)
		}
		switch enc {
		case Int8:
			return int8(n), nil
		case Int16:
			return int16(n), nil
		case Int32:
			return int32(n), nil
		}
		return n, nil
	case Uint8, Uint16, Uint32, Uint64:
		n, err := strconv.ParseUint(raw, 0, 64)
		if err != nil || n > uintMax(enc) {
			return nil, fmt.Errorf("%w: %q is not a valid %s", ErrArgMismatch, raw, enc)
		}
		switch enc {
		case Uint8:
			return uint8(n), nil
		case Uint16:
			return uint16(n), nil
		case Uint32:
			return uint32(n), nil
		}
		return n, nil
	case Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid float64", ErrArgMismatch, raw)
		}
		return f, nil
	case Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a valid bool", ErrArgMismatch, raw)
		}
		return b, nil
	case String:
		return raw, nil
	case Blob:
		return []byte(raw), nil
	default:
		return nil, fmt.Errorf("%w: invalid encoding %d", ErrArgMismatch, enc)
	}
}
