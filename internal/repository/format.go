package repository

import (
	"fmt"

	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/schema"
)

// FormatGenerate builds a create-with-required message for obj addressed
// from one channel to another. Each required field is taken from the stored
// value, then the getter capability, then the declared default. Naming
// other fields switches to the _OTHER form.
func FormatGenerate(obj *distobj.Object, parent, zone uint32, to, from uint64, other ...string) (*datagram.Datagram, error) {
	return formatGenerate(datagram.New(), obj, parent, zone, to, from, other)
}

// formatGenerate writes into an empty dg so callers can pick its charset.
func formatGenerate(dg *datagram.Datagram, obj *distobj.Object, parent, zone uint32, to, from uint64, other []string) (*datagram.Datagram, error) {
	if obj.Class == nil {
		return nil, fmt.Errorf("%w: object %d has no class", ErrUnknownClass, obj.ID)
	}
	dg.WriteServerHeader(to, from, uint16(generateType(other)))
	dg.WriteUint32(obj.ID)
	dg.WriteUint32(parent)
	dg.WriteUint32(zone)
	dg.WriteUint16(obj.Class.Number)
	for _, f := range obj.Class.RequiredFields() {
		if err := packField(dg, obj, f); err != nil {
			return nil, err
		}
	}
	if len(other) == 0 {
		return dg, nil
	}
	if len(other) > 0xFFFF {
		return nil, fmt.Errorf("repository: too many other fields: %d", len(other))
	}
	dg.WriteUint16(uint16(len(other)))
	for _, name := range other {
		f, ok := obj.Class.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: class=%s field=%s", ErrUnknownField, obj.Class.Name, name)
		}
		dg.WriteUint16(f.Tag)
		if err := packField(dg, obj, f); err != nil {
			return nil, err
		}
	}
	return dg, nil
}

func generateType(other []string) protocol.MsgType {
	if len(other) > 0 {
		return protocol.StateServerCreateObjectWithRequiredOther
	}
	return protocol.StateServerCreateObjectWithRequired
}

func packField(dg *datagram.Datagram, obj *distobj.Object, f *schema.Field) error {
	if args, ok := obj.Value(f.Tag); ok {
		return schema.PackArgs(dg, f, args)
	}
	if get, ok := obj.Capabilities().Getter(f.Tag); ok {
		args, err := get(obj)
		if err != nil {
			return fmt.Errorf("repository: getter %s.%s: %w", obj.ClassName(), f.Name, err)
		}
		return schema.PackArgs(dg, f, args)
	}
	if f.HasDefault() {
		dg.WriteRaw(f.Default)
		return nil
	}
	return fmt.Errorf("%w: class=%s field=%s id=%d", ErrFieldMissing, obj.ClassName(), f.Name, obj.ID)
}

// FormatClientUpdate builds [120][doId][u16 field][args].
func FormatClientUpdate(obj *distobj.Object, field string, args ...any) (*datagram.Datagram, error) {
	return formatClientUpdate(datagram.New(), obj, field, args)
}

func formatClientUpdate(dg *datagram.Datagram, obj *distobj.Object, field string, args []any) (*datagram.Datagram, error) {
	f, err := resolveField(obj, field)
	if err != nil {
		return nil, err
	}
	dg.WriteUint16(uint16(protocol.ClientObjectSetField))
	dg.WriteUint32(obj.ID)
	dg.WriteUint16(f.Tag)
	if err := schema.PackArgs(dg, f, args); err != nil {
		return nil, err
	}
	return dg, nil
}

// FormatServerUpdate builds the routed form with tag 2020.
func FormatServerUpdate(to, from uint64, obj *distobj.Object, field string, args ...any) (*datagram.Datagram, error) {
	return formatServerUpdate(datagram.New(), to, from, obj, field, args)
}

func formatServerUpdate(dg *datagram.Datagram, to, from uint64, obj *distobj.Object, field string, args []any) (*datagram.Datagram, error) {
	f, err := resolveField(obj, field)
	if err != nil {
		return nil, err
	}
	dg.WriteServerHeader(to, from, uint16(protocol.StateServerObjectSetField))
	dg.WriteUint32(obj.ID)
	dg.WriteUint16(f.Tag)
	if err := schema.PackArgs(dg, f, args); err != nil {
		return nil, err
	}
	return dg, nil
}

func resolveField(obj *distobj.Object, name string) (*schema.Field, error) {
	if obj.Class == nil {
		return nil, fmt.Errorf("%w: object %d has no class", ErrUnknownClass, obj.ID)
	}
	f, ok := obj.Class.FieldByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: class=%s field=%s", ErrUnknownField, obj.Class.Name, name)
	}
	return f, nil
}
