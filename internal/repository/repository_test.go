package repository

import (
	"net"
	"testing"
	"time"

	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/protocol"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/frame"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/danmuck/dorepo/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

const (
	avatarNumber  = 1
	zoneNumber    = 2
	counterNumber = 3
)

// testSchema declares Avatar{name, setPos, hp=100, chat, setNamePos},
// Zone{} and Counter{value=7}.
func testSchema(t *testing.T) *schema.Registry {
	t.Helper()
	avatar, err := schema.NewClass("Avatar", avatarNumber,
		&schema.Field{Name: "name", Tag: 10, Kind: schema.Parameter, Keywords: schema.Required | schema.Broadcast, Params: []schema.Encoding{schema.String}},
		&schema.Field{Name: "setPos", Tag: 11, Kind: schema.Atomic, Keywords: schema.Required | schema.RAM, Params: []schema.Encoding{schema.Int32, schema.Int32}},
		&schema.Field{Name: "hp", Tag: 12, Kind: schema.Parameter, Keywords: schema.Required, Params: []schema.Encoding{schema.Uint16}, Default: []byte{100, 0}},
		&schema.Field{Name: "chat", Tag: 13, Kind: schema.Atomic, Keywords: schema.Broadcast, Params: []schema.Encoding{schema.String}},
		&schema.Field{Name: "setNamePos", Tag: 14, Kind: schema.Molecular, Components: []uint16{10, 11}},
	)
	require.NoError(t, err)
	zone, err := schema.NewClass("Zone", zoneNumber)
	require.NoError(t, err)
	counter, err := schema.NewClass("Counter", counterNumber,
		&schema.Field{Name: "value", Tag: 7, Kind: schema.Parameter, Params: []schema.Encoding{schema.Uint32}},
	)
	require.NoError(t, err)

	reg := schema.NewRegistry()
	for _, c := range []*schema.Class{avatar, zone, counter} {
		require.NoError(t, reg.Register(c))
	}
	return reg
}

func classByName(t *testing.T, reg *schema.Registry, name string) *schema.Class {
	t.Helper()
	c, ok := reg.ClassByName(name)
	require.True(t, ok, name)
	return c
}

// recorder collects hook and handler calls in order.
type recorder struct {
	calls []string
	pos   [][]any
	chats []string
}

func (r *recorder) hooks() distobj.Hooks {
	return distobj.Hooks{
		Generate: func(*distobj.Object) { r.calls = append(r.calls, "generate") },
		Announce: func(*distobj.Object) { r.calls = append(r.calls, "announce") },
		Disable:  func(*distobj.Object) { r.calls = append(r.calls, "disable") },
		Delete:   func(*distobj.Object) { r.calls = append(r.calls, "delete") },
	}
}

// avatarFactory registers Avatar with setPos and chat handlers.
func avatarFactory(t *testing.T, reg *schema.Registry, rec *recorder) *distobj.Registry {
	t.Helper()
	avatar := classByName(t, reg, "Avatar")
	caps := distobj.NewCapabilities(avatar)
	require.NoError(t, caps.OnField("setPos", func(_ *distobj.Object, args []any) error {
		rec.pos = append(rec.pos, args)
		return nil
	}))
	require.NoError(t, caps.OnField("chat", func(_ *distobj.Object, args []any) error {
		rec.chats = append(rec.chats, args[0].(string))
		return nil
	}))
	factory := distobj.NewRegistry()
	require.NoError(t, factory.Register(avatar, distobj.Definition{Capabilities: caps, Hooks: rec.hooks()}))
	return factory
}

func writeAvatarRequired(t *testing.T, dg *datagram.Datagram, name string, x, y int32, hp uint16) {
	t.Helper()
	require.NoError(t, dg.WriteString(name))
	dg.WriteInt32(x)
	dg.WriteInt32(y)
	dg.WriteUint16(hp)
}

func writeEnterHeader(dg *datagram.Datagram, id, parent, zone uint32, class uint16) {
	dg.WriteUint32(id)
	dg.WriteUint32(parent)
	dg.WriteUint32(zone)
	dg.WriteUint16(class)
}

// peer is the far end of a net.Pipe. Frames written by the repository are
// collected on a channel.
type peer struct {
	conn   net.Conn
	frames chan []byte
}

func startPeer(conn net.Conn) *peer {
	p := &peer{conn: conn, frames: make(chan []byte, 64)}
	go func() {
		defer close(p.frames)
		for {
			payload, err := frame.ReadFrame(conn)
			if err != nil {
				return
			}
			p.frames <- payload
		}
	}()
	return p
}

func (p *peer) next(t *testing.T) []byte {
	t.Helper()
	select {
	case payload, ok := <-p.frames:
		require.True(t, ok, "peer stream closed")
		return payload
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func (p *peer) send(t *testing.T, payload []byte) {
	t.Helper()
	require.NoError(t, frame.WriteFrame(p.conn, payload))
}

func TestFormatClientUpdateIsTwelveBytes(t *testing.T) {
	testlog.Start(t)
	reg := testSchema(t)
	obj := distobj.NewObject(classByName(t, reg, "Counter"))
	obj.ID = 42

	dg, err := FormatClientUpdate(obj, "value", uint32(0xDEADBEEF))
	require.NoError(t, err)
	require.Equal(t, 12, dg.Len())
	require.Equal(t, []byte{120, 0, 42, 0, 0, 0, 7, 0, 0xEF, 0xBE, 0xAD, 0xDE}, dg.Bytes())

	it := datagram.NewIterator(dg.Bytes())
	tag, err := it.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(protocol.ClientObjectSetField), tag)
	id, err := it.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(42), id)
	fieldTag, err := it.ReadUint16()
	require.NoError(t, err)
	f, ok := obj.Class.FieldByTag(fieldTag)
	require.True(t, ok)
	args, err := schema.UnpackArgs(it, f)
	require.NoError(t, err)
	require.Equal(t, []any{uint32(0xDEADBEEF)}, args)
	require.Zero(t, it.Remaining())
}

func TestFormatUpdateRejectsBadArgs(t *testing.T) {
	testlog.Start(t)
	reg := testSchema(t)
	obj := distobj.NewObject(classByName(t, reg, "Avatar"))
	obj.ID = 9

	_, err := FormatClientUpdate(obj, "setPos", int32(1))
	require.ErrorIs(t, err, schema.ErrArgMismatch)
	_, err = FormatServerUpdate(9, 4000, obj, "name", 5)
	require.ErrorIs(t, err, schema.ErrArgMismatch)
	_, err = FormatClientUpdate(obj, "missing")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestFormatGenerateResolvesStoredGetterDefault(t *testing.T) {
	testlog.Start(t)
	reg := testSchema(t)
	avatar := classByName(t, reg, "Avatar")
	caps := distobj.NewCapabilities(avatar)
	require.NoError(t, caps.GetField("setPos", func(*distobj.Object) ([]any, error) {
		return []any{int32(-1), int32(2)}, nil
	}))
	obj := distobj.NewObject(avatar)
	obj.ID = 77
	obj.SetCapabilities(caps)
	require.NoError(t, obj.SetValueByName("name", "ann"))

	dg, err := FormatGenerate(obj, 10, 20, 10000, 4000)
	require.NoError(t, err)

	it := datagram.NewIterator(dg.Bytes())
	addr, err := frame.ReadAddress(it)
	require.NoError(t, err)
	require.Equal(t, []uint64{10000}, addr.Recipients)
	require.Equal(t, uint64(4000), addr.Sender)
	tag, _ := it.ReadUint16()
	require.Equal(t, uint16(protocol.StateServerCreateObjectWithRequired), tag)
	id, _ := it.ReadUint32()
	parent, _ := it.ReadUint32()
	zone, _ := it.ReadUint32()
	class, _ := it.ReadUint16()
	require.Equal(t, []any{uint32(77), uint32(10), uint32(20), uint16(avatarNumber)}, []any{id, parent, zone, class})
	name, _ := it.ReadString()
	x, _ := it.ReadInt32()
	y, _ := it.ReadInt32()
	hp, err := it.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, "ann", name)
	require.Equal(t, int32(-1), x)
	require.Equal(t, int32(2), y)
	require.Equal(t, uint16(100), hp)
	require.Zero(t, it.Remaining())
}

func TestFormatGenerateOtherFields(t *testing.T) {
	testlog.Start(t)
	reg := testSchema(t)
	obj := distobj.NewObject(classByName(t, reg, "Avatar"))
	obj.ID = 5
	require.NoError(t, obj.SetValueByName("name", "ann"))
	require.NoError(t, obj.SetValueByName("setPos", int32(1), int32(2)))
	require.NoError(t, obj.SetValueByName("chat", "hi"))

	dg, err := FormatGenerate(obj, 1, 2, 10000, 4000, "chat")
	require.NoError(t, err)
	it := datagram.NewIterator(dg.Bytes())
	_, err = frame.ReadAddress(it)
	require.NoError(t, err)
	tag, _ := it.ReadUint16()
	require.Equal(t, uint16(protocol.StateServerCreateObjectWithRequiredOther), tag)
	// doId, parent, zone, class, name(2+3), setPos(8), hp(2)
	require.NoError(t, it.Skip(4+4+4+2+5+8+2))
	n, _ := it.ReadUint16()
	require.Equal(t, uint16(1), n)
	ftag, _ := it.ReadUint16()
	require.Equal(t, uint16(13), ftag)
	chat, err := it.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hi", chat)

	_, err = FormatGenerate(obj, 1, 2, 10000, 4000, "nope")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestFormatGenerateFieldMissing(t *testing.T) {
	testlog.Start(t)
	reg := testSchema(t)
	obj := distobj.NewObject(classByName(t, reg, "Avatar"))
	obj.ID = 5
	require.NoError(t, obj.SetValueByName("name", "ann"))

	_, err := FormatGenerate(obj, 1, 2, 10000, 4000)
	require.ErrorIs(t, err, ErrFieldMissing)
	require.Contains(t, err.Error(), "setPos")
}

func TestNewRequiresSchema(t *testing.T) {
	testlog.Start(t)
	_, err := NewClient(Options{})
	require.Error(t, err)
	_, err = NewServer(ServerOptions{Options: Options{Schema: testSchema(t), ChannelMin: 10, ChannelMax: 1}})
	require.Error(t, err)
}

func TestSendWithoutConnection(t *testing.T) {
	testlog.Start(t)
	c, err := NewClient(Options{Schema: testSchema(t)})
	require.NoError(t, err)
	require.ErrorIs(t, c.SendHeartbeat(), ErrNotConnected)
	require.False(t, c.Connected())
	require.ErrorIs(t, c.Run(t.Context()), ErrNotConnected)
	require.NoError(t, c.Close())
}
