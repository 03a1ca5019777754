package distobj

import (
	"fmt"

	"github.com/danmuck/dorepo/internal/dotable"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

// Hooks are optional host callbacks. They run on the dispatch goroutine with
// the repository lock held.
type Hooks struct {
	Generate      func(o *Object)
	Announce      func(o *Object)
	Disable       func(o *Object)
	Delete        func(o *Object)
	ChildArrive   func(o, child *Object, zone uint32)
	ChildLeave    func(o, child *Object, zone uint32)
	ChildZoneMove func(o, child *Object, zone uint32, arriving bool)
}

// Object is the single record shared by both roles. Role differences live
// in the attached Policy.
type Object struct {
	ID                uint32
	Class             *schema.Class
	ParentID          uint32
	ZoneID            uint32
	NeverDisable      bool
	DoNotDeallocateID bool
	// Impl carries host state for hooks and capabilities.
	Impl any

	state  State
	policy *Policy
	caps   *Capabilities
	hooks  Hooks
	values map[uint16][]any
}

func NewObject(class *schema.Class) *Object {
	return &Object{
		Class:  class,
		state:  New,
		policy: ClientPolicy(),
		values: make(map[uint16][]any),
	}
}

var (
	_ dotable.Object        = (*Object)(nil)
	_ dotable.ChildObserver = (*Object)(nil)
)

func (o *Object) DoID() uint32 { return o.ID }

func (o *Object) Location() (uint32, uint32) { return o.ParentID, o.ZoneID }

func (o *Object) StoreLocation(parent, zone uint32) {
	o.ParentID = parent
	o.ZoneID = zone
}

func (o *Object) ClassName() string {
	if o.Class == nil {
		return ""
	}
	return o.Class.Name
}

func (o *Object) State() State { return o.state }

func (o *Object) SetPolicy(p *Policy) { o.policy = p }

func (o *Object) Policy() *Policy { return o.policy }

func (o *Object) Capabilities() *Capabilities { return o.caps }

func (o *Object) SetCapabilities(c *Capabilities) { o.caps = c }

func (o *Object) SetHooks(h Hooks) { o.hooks = h }

// Transition moves the object to next if the policy permits it.
func (o *Object) Transition(next State) error {
	if o.policy != nil && !o.policy.Allows(o.state, next) {
		return fmt.Errorf("%w: id=%d %s -> %s (%s)", ErrTransition, o.ID, o.state, next, o.policy.Role())
	}
	o.state = next
	return nil
}

// Generated reports whether the object is generating or generated.
func (o *Object) Generated() bool {
	return o.state == Generating || o.state == Generated
}

// SetValue stores decoded arguments for a field.
func (o *Object) SetValue(tag uint16, args []any) {
	o.values[tag] = args
}

func (o *Object) Value(tag uint16) ([]any, bool) {
	v, ok := o.values[tag]
	return v, ok
}

// SetValueByName stores args under the named field of the object's class.
func (o *Object) SetValueByName(name string, args ...any) error {
	if o.Class == nil {
		return fmt.Errorf("distobj: object %d has no class", o.ID)
	}
	f, ok := o.Class.FieldByName(name)
	if !ok {
		return fmt.Errorf("distobj: class %s has no field %q", o.Class.Name, name)
	}
	if len(args) != len(f.Params) {
		return fmt.Errorf("%w: field %s wants %d args, got %d", schema.ErrArgMismatch, name, len(f.Params), len(args))
	}
	o.values[f.Tag] = args
	return nil
}

// Values returns stored values keyed by field name.
func (o *Object) Values() map[string][]any {
	out := make(map[string][]any, len(o.values))
	for tag, v := range o.values {
		name := fmt.Sprint(tag)
		if o.Class != nil {
			if f, ok := o.Class.FieldByTag(tag); ok {
				name = f.Name
			}
		}
		out[name] = v
	}
	return out
}

func (o *Object) RunGenerate() {
	if o.hooks.Generate != nil {
		o.hooks.Generate(o)
	}
}

func (o *Object) RunAnnounce() {
	if o.hooks.Announce != nil {
		o.hooks.Announce(o)
	}
}

func (o *Object) RunDisable() {
	if o.hooks.Disable != nil {
		o.hooks.Disable(o)
	}
}

func (o *Object) RunDelete() {
	if o.hooks.Delete != nil {
		o.hooks.Delete(o)
	}
}

func (o *Object) ChildArrive(child dotable.Object, zone uint32) {
	if c, ok := o.child(child); ok && o.hooks.ChildArrive != nil {
		o.hooks.ChildArrive(o, c, zone)
	}
}

func (o *Object) ChildLeave(child dotable.Object, zone uint32) {
	if c, ok := o.child(child); ok && o.hooks.ChildLeave != nil {
		o.hooks.ChildLeave(o, c, zone)
	}
}

func (o *Object) ChildArriveZone(child dotable.Object, zone uint32) {
	if c, ok := o.child(child); ok && o.hooks.ChildZoneMove != nil {
		o.hooks.ChildZoneMove(o, c, zone, true)
	}
}

func (o *Object) ChildLeaveZone(child dotable.Object, zone uint32) {
	if c, ok := o.child(child); ok && o.hooks.ChildZoneMove != nil {
		o.hooks.ChildZoneMove(o, c, zone, false)
	}
}

func (o *Object) child(child dotable.Object) (*Object, bool) {
	c, ok := child.(*Object)
	if !ok {
		log.Debug().Msgf("distobj.child foreign child type=%T parent=%d", child, o.ID)
	}
	return c, ok
}
