package distobj

import (
	"fmt"

	"github.com/danmuck/dorepo/internal/protocol/schema"
)

// Handler receives decoded arguments for an action field.
type Handler func(o *Object, args []any) error

// Getter supplies arguments for a required field when generating an object
// that has no stored value for it.
type Getter func(o *Object) ([]any, error)

// Capabilities maps field tags of one class to handlers and getters. Names
// are resolved to tags when bound, so dispatch is a map lookup by tag.
type Capabilities struct {
	class    *schema.Class
	handlers map[uint16]Handler
	getters  map[uint16]Getter
}

func NewCapabilities(class *schema.Class) *Capabilities {
	return &Capabilities{
		class:    class,
		handlers: make(map[uint16]Handler),
		getters:  make(map[uint16]Getter),
	}
}

func (c *Capabilities) Class() *schema.Class { return c.class }

func (c *Capabilities) OnField(name string, h Handler) error {
	f, err := c.resolve(name)
	if err != nil {
		return err
	}
	c.handlers[f.Tag] = h
	return nil
}

func (c *Capabilities) GetField(name string, g Getter) error {
	f, err := c.resolve(name)
	if err != nil {
		return err
	}
	c.getters[f.Tag] = g
	return nil
}

func (c *Capabilities) Handler(tag uint16) (Handler, bool) {
	if c == nil {
		return nil, false
	}
	h, ok := c.handlers[tag]
	return h, ok
}

func (c *Capabilities) Getter(tag uint16) (Getter, bool) {
	if c == nil {
		return nil, false
	}
	g, ok := c.getters[tag]
	return g, ok
}

func (c *Capabilities) resolve(name string) (*schema.Field, error) {
	f, ok := c.class.FieldByName(name)
	if !ok {
		return nil, fmt.Errorf("distobj: class %s has no field %q", c.class.Name, name)
	}
	return f, nil
}
