package repository

import (
	"fmt"

	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/protocol/datagram"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

func (r *Repository) newPolicy() *distobj.Policy {
	if r.role == distobj.RoleAuthority {
		return distobj.AuthorityPolicy()
	}
	return distobj.ClientPolicy()
}

func (r *Repository) lookup(id uint32, ownerView bool) (*distobj.Object, bool) {
	if ownerView {
		return r.OwnerView(id)
	}
	return r.Object(id)
}

// enter handles every enter-with-required variant. The cursor sits on the
// doId. The payload is decoded in full before the object or the table is
// touched, so a short frame leaves nothing behind.
func (r *Repository) enter(it *datagram.Iterator, ownerView, withOther bool) error {
	id, err := it.ReadUint32()
	if err != nil {
		return err
	}
	parent, err := it.ReadUint32()
	if err != nil {
		return err
	}
	zone, err := it.ReadUint32()
	if err != nil {
		return err
	}
	number, err := it.ReadUint16()
	if err != nil {
		return err
	}
	class, ok := r.schema.ClassByNumber(number)
	if !ok {
		return fmt.Errorf("%w: number=%d id=%d", ErrUnknownClass, number, id)
	}

	if obj, ok := r.lookup(id, ownerView); ok {
		return r.refresh(obj, class, parent, zone, ownerView, withOther, it)
	}

	obj, err := r.factory.New(class)
	if err != nil {
		return fmt.Errorf("repository: build %s id=%d: %w", class.Name, id, err)
	}
	updates, err := stage(class, obj.Capabilities(), it, withOther)
	if err != nil {
		return err
	}
	obj.ID = id
	obj.SetPolicy(r.newPolicy())
	if r.role == distobj.RoleAuthority {
		obj.DoNotDeallocateID = true
	}
	if err := obj.Transition(distobj.Generating); err != nil {
		return err
	}
	if ownerView {
		obj.StoreLocation(parent, zone)
	}
	r.table.Insert(obj, parent, zone, ownerView)
	obj.RunGenerate()
	r.apply(obj, updates)
	if err := obj.Transition(distobj.Generated); err != nil {
		return err
	}
	obj.RunAnnounce()
	log.Debug().Msgf("repository.enter generated id=%d class=%s parent=%d zone=%d owner=%t", id, class.Name, parent, zone, ownerView)
	if r.events.OnGenerate != nil {
		r.events.OnGenerate(obj)
	}
	return nil
}

// refresh regenerates a known object in place.
func (r *Repository) refresh(obj *distobj.Object, class *schema.Class, parent, zone uint32, ownerView, withOther bool, it *datagram.Iterator) error {
	updates, err := stage(class, obj.Capabilities(), it, withOther)
	if err != nil {
		return err
	}
	if obj.State() != distobj.Generating {
		if err := obj.Transition(distobj.Generating); err != nil {
			return err
		}
	}
	obj.Class = class
	if ownerView {
		obj.StoreLocation(parent, zone)
	} else {
		r.table.SetLocation(obj, parent, zone)
	}
	r.apply(obj, updates)
	if err := obj.Transition(distobj.Generated); err != nil {
		return err
	}
	obj.RunAnnounce()
	log.Debug().Msgf("repository.refresh id=%d class=%s parent=%d zone=%d", obj.ID, class.Name, parent, zone)
	return nil
}

// update is one decoded field value waiting to be applied. A nil handler
// means the value is only stored.
type update struct {
	field   *schema.Field
	args    []any
	handler distobj.Handler
}

// stage decodes the required fields and, with withOther, the
// [u16 n] n x ([u16 field][value]) tail.
func stage(class *schema.Class, caps *distobj.Capabilities, it *datagram.Iterator, withOther bool) ([]update, error) {
	var out []update
	var err error
	for _, f := range class.RequiredFields() {
		if out, err = stageField(out, class, caps, f, it); err != nil {
			return nil, err
		}
	}
	if !withOther {
		return out, nil
	}
	n, err := it.ReadUint16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(n); i++ {
		if out, err = stageTagged(out, class, caps, it); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// stageTagged reads one [u16 field][value] pair.
func stageTagged(out []update, class *schema.Class, caps *distobj.Capabilities, it *datagram.Iterator) ([]update, error) {
	tag, err := it.ReadUint16()
	if err != nil {
		return nil, err
	}
	f, ok := class.FieldByTag(tag)
	if !ok {
		return nil, fmt.Errorf("%w: class=%s tag=%d", ErrUnknownField, class.Name, tag)
	}
	return stageField(out, class, caps, f, it)
}

// stageField decodes one field value at the cursor. Actions without a
// handler are skipped by width and molecular fields without one are split
// into their components.
func stageField(out []update, class *schema.Class, caps *distobj.Capabilities, f *schema.Field, it *datagram.Iterator) ([]update, error) {
	handler, hasHandler := caps.Handler(f.Tag)
	switch {
	case f.Kind == schema.Molecular && !hasHandler:
		var err error
		for _, tag := range f.Components {
			comp, _ := class.FieldByTag(tag)
			if out, err = stageField(out, class, caps, comp, it); err != nil {
				return nil, err
			}
		}
		return out, nil
	case f.Kind != schema.Parameter && !hasHandler:
		if err := schema.SkipArgs(it, f); err != nil {
			return nil, err
		}
		return out, nil
	}
	args, err := schema.UnpackArgs(it, f)
	if err != nil {
		return nil, err
	}
	return append(out, update{field: f, args: args, handler: handler}), nil
}

// apply stores and dispatches staged values in wire order. Parameters are
// always stored; actions only when Required or RAM.
func (r *Repository) apply(obj *distobj.Object, updates []update) {
	for _, u := range updates {
		if u.field.Kind == schema.Parameter || u.field.Is(schema.Required) || u.field.Is(schema.RAM) {
			obj.SetValue(u.field.Tag, u.args)
		}
		if u.handler != nil {
			r.call(obj, u.field, u.handler, u.args)
		}
	}
}

// call runs a field handler. Handler errors are logged, never fatal to the
// frame.
func (r *Repository) call(obj *distobj.Object, f *schema.Field, h distobj.Handler, args []any) {
	if err := h(obj, args); err != nil {
		log.Warn().Msgf("repository.call handler failed id=%d field=%s err=%v", obj.ID, f.Name, err)
	}
}

// fieldUpdate handles [doId][u16 field][value].
func (r *Repository) fieldUpdate(it *datagram.Iterator) error {
	id, err := it.ReadUint32()
	if err != nil {
		return err
	}
	obj, ok := r.Object(id)
	if !ok {
		obj, ok = r.OwnerView(id)
	}
	if !ok {
		log.Debug().Msgf("repository.fieldUpdate unknown object id=%d", id)
		return nil
	}
	if !obj.Generated() && !obj.NeverDisable {
		log.Debug().Msgf("repository.fieldUpdate object not generated id=%d state=%s", id, obj.State())
		return nil
	}
	updates, err := stageTagged(nil, obj.Class, obj.Capabilities(), it)
	if err != nil {
		return fmt.Errorf("id=%d: %w", id, err)
	}
	r.apply(obj, updates)
	return nil
}

// location handles [doId][parent][zone]; trailing bytes are ignored.
func (r *Repository) location(it *datagram.Iterator) error {
	id, err := it.ReadUint32()
	if err != nil {
		return err
	}
	parent, err := it.ReadUint32()
	if err != nil {
		return err
	}
	zone, err := it.ReadUint32()
	if err != nil {
		return err
	}
	obj, ok := r.Object(id)
	if !ok {
		log.Debug().Msgf("repository.location unknown object id=%d", id)
		return nil
	}
	r.table.SetLocation(obj, parent, zone)
	return nil
}

// exitMsg handles [doId] for every leaving variant.
func (r *Repository) exitMsg(it *datagram.Iterator, ownerView bool) error {
	id, err := it.ReadUint32()
	if err != nil {
		return err
	}
	obj, ok := r.lookup(id, ownerView)
	if !ok {
		log.Debug().Msgf("repository.exit unknown object id=%d owner=%t", id, ownerView)
		return nil
	}
	r.finalize(obj, ownerView)
	return nil
}

// finalize disables (client role) and deletes obj, removes it from the
// table and releases its id when this process allocated it.
func (r *Repository) finalize(obj *distobj.Object, ownerView bool) {
	if obj.Policy().Role() == distobj.RoleClient && obj.Generated() {
		r.transition(obj, distobj.Disabling)
		obj.RunDisable()
		r.transition(obj, distobj.Disabled)
	}
	obj.RunDelete()
	if ownerView {
		r.table.RemoveOwnerView(obj.ID)
	} else {
		r.table.Remove(obj)
	}
	r.transition(obj, distobj.Deleted)
	if !obj.DoNotDeallocateID && r.onRelease != nil {
		r.onRelease(obj.ID)
	}
	log.Debug().Msgf("repository.finalize id=%d class=%s owner=%t", obj.ID, obj.ClassName(), ownerView)
	if r.events.OnDelete != nil {
		r.events.OnDelete(obj)
	}
}

func (r *Repository) transition(obj *distobj.Object, next distobj.State) {
	if err := obj.Transition(next); err != nil {
		log.Warn().Msgf("repository.transition %v", err)
	}
}
