// Package dotable indexes distributed objects by id and by (parent, zone).
//
// A Table is not safe for concurrent use. The owning repository serializes
// every mutation behind its dispatch lock.
package dotable

import (
	"math"
	"sort"

	"github.com/rs/zerolog/log"
)

// Object is the slice of a distributed object the table needs.
type Object interface {
	DoID() uint32
	Location() (parent, zone uint32)
	StoreLocation(parent, zone uint32)
}

// ChildObserver is implemented by objects that want to hear about children
// moving under them.
type ChildObserver interface {
	ChildArrive(child Object, zone uint32)
	ChildArriveZone(child Object, zone uint32)
	ChildLeave(child Object, zone uint32)
	ChildLeaveZone(child Object, zone uint32)
}

const (
	NoLocation      uint32 = 0
	InvalidLocation uint32 = math.MaxUint32
)

// ValidLocation reports whether (parent, zone) may be indexed.
func ValidLocation(parent, zone uint32) bool {
	return parent != NoLocation && parent != InvalidLocation &&
		zone != NoLocation && zone != InvalidLocation
}

type location struct {
	parent uint32
	zone   uint32
}

type Table struct {
	primary map[uint32]Object
	owner   map[uint32]Object
	zones   map[uint32]map[uint32]map[uint32]struct{}
	// stored records the bucket each indexed id currently sits in.
	stored map[uint32]location
}

func New() *Table {
	return &Table{
		primary: make(map[uint32]Object),
		owner:   make(map[uint32]Object),
		zones:   make(map[uint32]map[uint32]map[uint32]struct{}),
		stored:  make(map[uint32]location),
	}
}

// Insert adds obj to the primary or owner-view table. A present id is
// overwritten. A zero parent or zone falls back to the object's own.
func (t *Table) Insert(obj Object, parent, zone uint32, ownerView bool) {
	id := obj.DoID()
	tbl, name := t.primary, "primary"
	if ownerView {
		tbl, name = t.owner, "owner"
	}
	prev, dup := tbl[id]
	if dup {
		log.Warn().Msgf("dotable.Insert overwrite table=%s id=%d prev=%T next=%T", name, id, prev, obj)
	}
	tbl[id] = obj
	if ownerView {
		return
	}
	if dup && prev != obj {
		t.unindex(id)
	}
	ownParent, ownZone := obj.Location()
	if parent == NoLocation {
		parent = ownParent
	}
	if zone == NoLocation {
		zone = ownZone
	}
	if ValidLocation(parent, zone) {
		t.SetLocation(obj, parent, zone)
	}
}

// SetLocation moves obj to (newParent, newZone), notifying the old and new
// parent objects when they are present in the primary table.
func (t *Table) SetLocation(obj Object, newParent, newZone uint32) {
	id := obj.DoID()
	oldParent, oldZone := obj.Location()
	prev, indexed := t.stored[id]

	switch {
	case oldParent != newParent:
		if p, ok := t.observer(oldParent); ok {
			p.ChildLeave(obj, oldZone)
		}
		t.unindex(id)
	case oldZone != newZone:
		if p, ok := t.observer(oldParent); ok {
			p.ChildLeaveZone(obj, oldZone)
		}
		t.unindex(id)
	default:
		if indexed && prev == (location{newParent, newZone}) {
			return
		}
		if !ValidLocation(newParent, newZone) {
			t.unindex(id)
			obj.StoreLocation(newParent, newZone)
			return
		}
		// Object fields already carry the location but it was never indexed.
		t.unindex(id)
		t.index(id, newParent, newZone)
		obj.StoreLocation(newParent, newZone)
		return
	}

	if ValidLocation(newParent, newZone) {
		t.index(id, newParent, newZone)
	}
	obj.StoreLocation(newParent, newZone)

	if oldParent != newParent && newParent != NoLocation && newParent != InvalidLocation {
		if p, ok := t.observer(newParent); ok {
			p.ChildArrive(obj, newZone)
		} else {
			log.Debug().Msgf("dotable.SetLocation parent not present id=%d parent=%d", id, newParent)
		}
	}
	if oldZone != newZone && newParent != NoLocation && newParent != InvalidLocation {
		if p, ok := t.observer(newParent); ok {
			p.ChildArriveZone(obj, newZone)
		}
	}
}

// Remove drops obj from the primary table and the location index.
func (t *Table) Remove(obj Object) {
	id := obj.DoID()
	if _, ok := t.primary[id]; !ok {
		log.Warn().Msgf("dotable.Remove not present id=%d", id)
	}
	delete(t.primary, id)
	if _, ok := t.stored[id]; ok {
		t.unindex(id)
	}
}

func (t *Table) RemoveOwnerView(id uint32) {
	if _, ok := t.owner[id]; !ok {
		log.Warn().Msgf("dotable.RemoveOwnerView not present id=%d", id)
		return
	}
	delete(t.owner, id)
}

func (t *Table) Get(id uint32) (Object, bool) {
	obj, ok := t.primary[id]
	return obj, ok
}

func (t *Table) GetOwnerView(id uint32) (Object, bool) {
	obj, ok := t.owner[id]
	return obj, ok
}

// InZone returns the ids indexed under (parent, zone) in ascending order.
func (t *Table) InZone(parent, zone uint32) []uint32 {
	bucket := t.zones[parent][zone]
	out := make([]uint32, 0, len(bucket))
	for id := range bucket {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Zones lists the non-empty zones under parent in ascending order.
func (t *Table) Zones(parent uint32) []uint32 {
	byZone := t.zones[parent]
	out := make([]uint32, 0, len(byZone))
	for zone := range byZone {
		out = append(out, zone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stored reports the bucket id is indexed under, if any.
func (t *Table) Stored(id uint32) (parent, zone uint32, ok bool) {
	loc, ok := t.stored[id]
	return loc.parent, loc.zone, ok
}

func (t *Table) Len() int { return len(t.primary) }

func (t *Table) OwnerLen() int { return len(t.owner) }

func (t *Table) IndexedLen() int { return len(t.stored) }

// Snapshot returns primary-table objects ordered by id.
func (t *Table) Snapshot() []Object {
	out := make([]Object, 0, len(t.primary))
	for _, obj := range t.primary {
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DoID() < out[j].DoID() })
	return out
}

func (t *Table) observer(id uint32) (ChildObserver, bool) {
	obj, ok := t.primary[id]
	if !ok {
		return nil, false
	}
	obs, ok := obj.(ChildObserver)
	return obs, ok
}

func (t *Table) index(id, parent, zone uint32) {
	if _, dup := t.stored[id]; dup {
		log.Warn().Msgf("dotable.index duplicate id=%d parent=%d zone=%d", id, parent, zone)
		t.unindex(id)
	}
	byZone, ok := t.zones[parent]
	if !ok {
		byZone = make(map[uint32]map[uint32]struct{})
		t.zones[parent] = byZone
	}
	bucket, ok := byZone[zone]
	if !ok {
		bucket = make(map[uint32]struct{})
		byZone[zone] = bucket
	}
	bucket[id] = struct{}{}
	t.stored[id] = location{parent, zone}
}

func (t *Table) unindex(id uint32) {
	loc, ok := t.stored[id]
	if !ok {
		return
	}
	delete(t.stored, id)
	byZone := t.zones[loc.parent]
	bucket := byZone[loc.zone]
	if _, present := bucket[id]; !present {
		log.Warn().Msgf("dotable.unindex missing from bucket id=%d parent=%d zone=%d", id, loc.parent, loc.zone)
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(byZone, loc.zone)
	}
	if len(byZone) == 0 {
		delete(t.zones, loc.parent)
	}
}
