package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/testutil/testlog"
)

func avatarClass(t *testing.T) *Class {
	t.Helper()
	name := &Field{Name: "setName", Tag: 10, Kind: Atomic, Keywords: Required | Broadcast | RAM, Params: []Encoding{String}}
	pos := &Field{Name: "setPos", Tag: 11, Kind: Atomic, Keywords: Required | Broadcast, Params: []Encoding{Int16, Int16, Int16}}
	hp := &Field{Name: "hp", Tag: 12, Kind: Parameter, Keywords: Required, Params: []Encoding{Uint32}}
	chat := &Field{Name: "chat", Tag: 13, Kind: Atomic, Keywords: ClSend | Broadcast, Params: []Encoding{String}}
	mol := &Field{Name: "setNamePos", Tag: 14, Kind: Molecular, Keywords: Required, Components: []uint16{10, 11}}
	c, err := NewClass("Avatar", 3, name, pos, hp, chat, mol)
	if err != nil {
		t.Fatalf("new class: %v", err)
	}
	return c
}

func TestRequiredFieldsSkipMolecularAndKeepOrder(t *testing.T) {
	testlog.Start(t)
	c := avatarClass(t)
	req := c.RequiredFields()
	if len(req) != 3 {
		t.Fatalf("unexpected required count: %d", len(req))
	}
	if req[0].Name != "setName" || req[1].Name != "setPos" || req[2].Name != "hp" {
		t.Fatalf("unexpected required order: %s %s %s", req[0].Name, req[1].Name, req[2].Name)
	}
}

func TestMolecularParamsResolved(t *testing.T) {
	testlog.Start(t)
	c := avatarClass(t)
	mol, ok := c.FieldByName("setNamePos")
	if !ok {
		t.Fatalf("molecular field missing")
	}
	want := []Encoding{String, Int16, Int16, Int16}
	if len(mol.Params) != len(want) {
		t.Fatalf("unexpected params: %v", mol.Params)
	}
	for i := range want {
		if mol.Params[i] != want[i] {
			t.Fatalf("param %d: got %s want %s", i, mol.Params[i], want[i])
		}
	}
}

func TestNewClassRejectsDuplicateTag(t *testing.T) {
	testlog.Start(t)
	_, err := NewClass("Bad", 1,
		&Field{Name: "a", Tag: 1, Kind: Parameter, Params: []Encoding{Uint8}},
		&Field{Name: "b", Tag: 1, Kind: Parameter, Params: []Encoding{Uint8}},
	)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "b" || ve.Reason != "duplicate tag" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestNewClassRejectsBadComponent(t *testing.T) {
	testlog.Start(t)
	_, err := NewClass("Bad", 1,
		&Field{Name: "m", Tag: 1, Kind: Molecular, Components: []uint16{99}},
	)
	if err == nil {
		t.Fatalf("expected error for unknown component")
	}
}

func TestRegistryLookupAndDuplicates(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	c := avatarClass(t)
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(c); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if got, ok := r.ClassByNumber(3); !ok || got != c {
		t.Fatalf("lookup by number failed")
	}
	if got, ok := r.ClassByName("Avatar"); !ok || got != c {
		t.Fatalf("lookup by name failed")
	}
	if _, ok := r.ClassByNumber(4); ok {
		t.Fatalf("unexpected class for number 4")
	}
}

func TestPackUnpackArgs(t *testing.T) {
	testlog.Start(t)
	c := avatarClass(t)
	pos, _ := c.FieldByName("setPos")

	dg := datagram.New()
	if err := PackArgs(dg, pos, []any{1, -2, int16(300)}); err != nil {
		t.Fatalf("pack: %v", err)
	}
	if dg.Len() != 6 {
		t.Fatalf("unexpected packed length: %d", dg.Len())
	}
	args, err := UnpackArgs(datagram.NewIterator(dg.Bytes()), pos)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if args[0].(int16) != 1 || args[1].(int16) != -2 || args[2].(int16) != 300 {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestPackArgsRejectsMismatch(t *testing.T) {
	testlog.Start(t)
	c := avatarClass(t)
	pos, _ := c.FieldByName("setPos")
	hp, _ := c.FieldByName("hp")

	if err := PackArgs(datagram.New(), pos, []any{1, 2}); !errors.Is(err, ErrArgMismatch) {
		t.Fatalf("expected arity mismatch, got %v", err)
	}
	if err := PackArgs(datagram.New(), pos, []any{1, 2, 40000}); !errors.Is(err, ErrArgMismatch) {
		t.Fatalf("expected overflow mismatch, got %v", err)
	}
	if err := PackArgs(datagram.New(), hp, []any{-1}); !errors.Is(err, ErrArgMismatch) {
		t.Fatalf("expected sign mismatch, got %v", err)
	}
	if err := PackArgs(datagram.New(), hp, []any{"x"}); !errors.Is(err, ErrArgMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestSkipArgsMatchesPackedWidth(t *testing.T) {
	testlog.Start(t)
	c := avatarClass(t)
	mol, _ := c.FieldByName("setNamePos")

	dg := datagram.New()
	if err := PackArgs(dg, mol, []any{"toon", 1, 2, 3}); err != nil {
		t.Fatalf("pack: %v", err)
	}
	dg.WriteUint8(0xAB)
	it := datagram.NewIterator(dg.Bytes())
	if err := SkipArgs(it, mol); err != nil {
		t.Fatalf("skip: %v", err)
	}
	tail, err := it.ReadUint8()
	if err != nil || tail != 0xAB {
		t.Fatalf("skip landed wrong: %x %v", tail, err)
	}
}

func TestParseHelpers(t *testing.T) {
	testlog.Start(t)
	enc, err := ParseEncoding("UINT32")
	if err != nil || enc != Uint32 {
		t.Fatalf("parse encoding: %v %v", enc, err)
	}
	if _, err := ParseEncoding("varint"); err == nil {
		t.Fatalf("expected unknown encoding error")
	}
	kw, err := ParseKeywords([]string{"required", "broadcast"})
	if err != nil || kw != Required|Broadcast {
		t.Fatalf("parse keywords: %v %v", kw, err)
	}
	v, err := ParseValue(Int16, "-12")
	if err != nil || v.(int16) != -12 {
		t.Fatalf("parse value: %v %v", v, err)
	}
	if _, err := ParseValue(Uint8, "300"); err == nil {
		t.Fatalf("expected uint8 overflow")
	}
}
