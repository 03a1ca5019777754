package dotable

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/danmuck/dorepo/internal/testutil/testlog"
)

type event struct {
	kind  string
	child uint32
	zone  uint32
}

type fakeObject struct {
	id     uint32
	parent uint32
	zone   uint32
	events []event
}

func (o *fakeObject) DoID() uint32                      { return o.id }
func (o *fakeObject) Location() (uint32, uint32)        { return o.parent, o.zone }
func (o *fakeObject) StoreLocation(parent, zone uint32) { o.parent, o.zone = parent, zone }

func (o *fakeObject) ChildArrive(c Object, zone uint32) {
	o.events = append(o.events, event{"arrive", c.DoID(), zone})
}

func (o *fakeObject) ChildArriveZone(c Object, zone uint32) {
	o.events = append(o.events, event{"arrive_zone", c.DoID(), zone})
}

func (o *fakeObject) ChildLeave(c Object, zone uint32) {
	o.events = append(o.events, event{"leave", c.DoID(), zone})
}

func (o *fakeObject) ChildLeaveZone(c Object, zone uint32) {
	o.events = append(o.events, event{"leave_zone", c.DoID(), zone})
}

func TestZoneChangeUnderSameParent(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	parent := &fakeObject{id: 10}
	child := &fakeObject{id: 5}
	tbl.Insert(parent, 0, 0, false)
	tbl.Insert(child, 10, 20, false)
	parent.events = nil

	tbl.SetLocation(child, 10, 30)

	want := []event{{"leave_zone", 5, 20}, {"arrive_zone", 5, 30}}
	if fmt.Sprint(parent.events) != fmt.Sprint(want) {
		t.Fatalf("unexpected events: %v", parent.events)
	}
	if ids := tbl.InZone(10, 20); len(ids) != 0 {
		t.Fatalf("old bucket still holds %v", ids)
	}
	if ids := tbl.InZone(10, 30); len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("new bucket: %v", ids)
	}
	if child.parent != 10 || child.zone != 30 {
		t.Fatalf("object location not stored: %d/%d", child.parent, child.zone)
	}
}

func TestParentChangeNotifiesBothParents(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	a := &fakeObject{id: 100}
	b := &fakeObject{id: 200}
	child := &fakeObject{id: 7}
	tbl.Insert(a, 0, 0, false)
	tbl.Insert(b, 0, 0, false)
	tbl.Insert(child, 100, 1, false)
	a.events = nil

	tbl.SetLocation(child, 200, 2)

	if fmt.Sprint(a.events) != fmt.Sprint([]event{{"leave", 7, 1}}) {
		t.Fatalf("old parent events: %v", a.events)
	}
	if fmt.Sprint(b.events) != fmt.Sprint([]event{{"arrive", 7, 2}, {"arrive_zone", 7, 2}}) {
		t.Fatalf("new parent events: %v", b.events)
	}
}

func TestSameLocationIsNoop(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	parent := &fakeObject{id: 10}
	child := &fakeObject{id: 5}
	tbl.Insert(parent, 0, 0, false)
	tbl.Insert(child, 10, 20, false)
	parent.events = nil

	tbl.SetLocation(child, 10, 20)
	if len(parent.events) != 0 {
		t.Fatalf("unexpected events: %v", parent.events)
	}
	if ids := tbl.InZone(10, 20); len(ids) != 1 {
		t.Fatalf("bucket changed: %v", ids)
	}
}

func TestInsertUsesObjectOwnLocation(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	child := &fakeObject{id: 9, parent: 4, zone: 8}
	tbl.Insert(child, 0, 0, false)
	if ids := tbl.InZone(4, 8); len(ids) != 1 || ids[0] != 9 {
		t.Fatalf("object not indexed at own location: %v", ids)
	}
}

func TestSentinelLocationsAreNotIndexed(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	child := &fakeObject{id: 3}
	tbl.Insert(child, 50, 60, false)
	tbl.SetLocation(child, InvalidLocation, InvalidLocation)
	if tbl.IndexedLen() != 0 {
		t.Fatalf("sentinel location indexed")
	}
	if len(tbl.Zones(50)) != 0 {
		t.Fatalf("stale zone under parent 50: %v", tbl.Zones(50))
	}
	if _, ok := tbl.Get(3); !ok {
		t.Fatalf("object should remain in the primary table")
	}
}

func TestOwnerViewIndependentOfPrimary(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	prim := &fakeObject{id: 1}
	owner := &fakeObject{id: 1}
	tbl.Insert(prim, 2, 3, false)
	tbl.Insert(owner, 2, 3, true)
	if tbl.Len() != 1 || tbl.OwnerLen() != 1 {
		t.Fatalf("unexpected table sizes: %d %d", tbl.Len(), tbl.OwnerLen())
	}
	tbl.RemoveOwnerView(1)
	if _, ok := tbl.Get(1); !ok {
		t.Fatalf("primary entry removed with owner view")
	}
	if _, ok := tbl.GetOwnerView(1); ok {
		t.Fatalf("owner view still present")
	}
}

func TestDuplicateInsertOverwrites(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	first := &fakeObject{id: 11}
	second := &fakeObject{id: 11}
	tbl.Insert(first, 1, 1, false)
	tbl.Insert(second, 1, 2, false)
	got, _ := tbl.Get(11)
	if got != second {
		t.Fatalf("expected last write to win")
	}
	if ids := tbl.InZone(1, 1); len(ids) != 0 {
		t.Fatalf("stale bucket entry: %v", ids)
	}
	if ids := tbl.InZone(1, 2); len(ids) != 1 {
		t.Fatalf("missing bucket entry: %v", ids)
	}
}

func TestLocationInvariantUnderRandomOps(t *testing.T) {
	testlog.Start(t)
	tbl := New()
	rng := rand.New(rand.NewSource(42))
	locs := []uint32{0, 1, 2, 3, InvalidLocation}
	objs := map[uint32]*fakeObject{}

	for step := 0; step < 3000; step++ {
		id := uint32(rng.Intn(40) + 1)
		p := locs[rng.Intn(len(locs))]
		z := locs[rng.Intn(len(locs))]
		switch rng.Intn(3) {
		case 0:
			obj := &fakeObject{id: id}
			objs[id] = obj
			tbl.Insert(obj, p, z, false)
		case 1:
			if obj, ok := objs[id]; ok {
				tbl.SetLocation(obj, p, z)
			}
		case 2:
			if obj, ok := objs[id]; ok {
				tbl.Remove(obj)
				delete(objs, id)
			}
		}
		checkIndex(t, step, tbl, objs)
	}
}

func checkIndex(t *testing.T, step int, tbl *Table, objs map[uint32]*fakeObject) {
	t.Helper()
	indexed := 0
	for parent, byZone := range tbl.zones {
		for zone, bucket := range byZone {
			for id := range bucket {
				indexed++
				obj, ok := objs[id]
				if !ok {
					t.Fatalf("step %d: removed id %d still indexed", step, id)
				}
				if obj.parent != parent || obj.zone != zone {
					t.Fatalf("step %d: id %d in bucket %d/%d but at %d/%d", step, id, parent, zone, obj.parent, obj.zone)
				}
			}
		}
	}
	want := 0
	for _, obj := range objs {
		if ValidLocation(obj.parent, obj.zone) {
			want++
		}
	}
	if indexed != want || tbl.IndexedLen() != want {
		t.Fatalf("step %d: indexed=%d stored=%d want %d", step, indexed, tbl.IndexedLen(), want)
	}
}
