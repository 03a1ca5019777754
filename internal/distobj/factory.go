package distobj

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/rs/zerolog/log"
)

var ErrNilClass = errors.New("distobj: nil class")

// Factory builds the local object for a class seen on the wire.
type Factory interface {
	New(class *schema.Class) (*Object, error)
}

// Definition is what a host registers for one class.
type Definition struct {
	Capabilities *Capabilities
	Hooks        Hooks
	NeverDisable bool
	// Init runs after the object is built and may set Impl or default values.
	Init func(o *Object) error
}

// Registry is a Factory keyed by class name. Classes without a definition
// still produce plain objects that store parameters and skip actions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(class *schema.Class, def Definition) error {
	if class == nil {
		return ErrNilClass
	}
	if def.Capabilities != nil && def.Capabilities.Class() != class {
		return fmt.Errorf("distobj: capabilities for %s bound to %s", class.Name, def.Capabilities.Class().Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[class.Name]; dup {
		return fmt.Errorf("distobj: class %s already registered", class.Name)
	}
	r.defs[class.Name] = def
	log.Debug().Msgf("distobj.Register class=%s", class.Name)
	return nil
}

func (r *Registry) New(class *schema.Class) (*Object, error) {
	if class == nil {
		return nil, ErrNilClass
	}
	r.mu.RLock()
	def, ok := r.defs[class.Name]
	r.mu.RUnlock()

	o := NewObject(class)
	if !ok {
		log.Debug().Msgf("distobj.New generic object class=%s", class.Name)
		return o, nil
	}
	o.caps = def.Capabilities
	o.hooks = def.Hooks
	o.NeverDisable = def.NeverDisable
	if def.Init != nil {
		if err := def.Init(o); err != nil {
			return nil, fmt.Errorf("distobj: init %s: %w", class.Name, err)
		}
	}
	return o, nil
}

// Names lists registered class names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
