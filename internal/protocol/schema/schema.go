package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Encoding is the wire representation of one field argument.
type Encoding uint8

const (
	Invalid Encoding = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float64
	Bool
	String
	Blob
)

var encodingNames = map[Encoding]string{
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float64: "float64",
	Bool:    "bool",
	String:  "string",
	Blob:    "blob",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

func ParseEncoding(raw string) (Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for enc, n := range encodingNames {
		if n == name {
			return enc, nil
		}
	}
	return Invalid, fmt.Errorf("schema: unknown encoding %q", raw)
}

// Kind classifies the shape of a field.
type Kind uint8

const (
	// Parameter fields hold a single stored value.
	Parameter Kind = iota
	// Atomic fields are actions carrying an argument list.
	Atomic
	// Molecular fields bundle several atomic fields of the same class.
	Molecular
)

func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "parameter", "param":
		return Parameter, nil
	case "atomic", "action":
		return Atomic, nil
	case "molecular":
		return Molecular, nil
	default:
		return Parameter, fmt.Errorf("schema: unknown field kind %q", raw)
	}
}

// Keyword is a bit set of field delivery keywords.
type Keyword uint16

const (
	Required Keyword = 1 << iota
	Broadcast
	OwnRecv
	RAM
	DB
	AIRecv
	ClSend
	ClRecv
)

var keywordNames = map[string]Keyword{
	"required":  Required,
	"broadcast": Broadcast,
	"ownrecv":   OwnRecv,
	"ram":       RAM,
	"db":        DB,
	"airecv":    AIRecv,
	"clsend":    ClSend,
	"clrecv":    ClRecv,
}

func ParseKeywords(raw []string) (Keyword, error) {
	var out Keyword
	for _, name := range raw {
		kw, ok := keywordNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("schema: unknown keyword %q", name)
		}
		out |= kw
	}
	return out, nil
}

// Field describes one field of a class. Default holds the packed default
// arguments, or nil when the field has none.
type Field struct {
	Name       string
	Tag        uint16
	Kind       Kind
	Keywords   Keyword
	Params     []Encoding
	Default    []byte
	Components []uint16
}

func (f *Field) Is(kw Keyword) bool { return f.Keywords&kw != 0 }

func (f *Field) Required() bool { return f.Is(Required) }

func (f *Field) HasDefault() bool { return f.Default != nil }

// Class is an ordered field list with a stable wire number.
type Class struct {
	Name   string
	Number uint16
	Fields []*Field

	byTag  map[uint16]*Field
	byName map[string]*Field
}

type ValidationError struct {
	Class  string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema: class=%s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("schema: class=%s field=%s: %s", e.Class, e.Field, e.Reason)
}

// NewClass indexes fields and resolves molecular parameter lists. Field
// order is preserved; it is the order required fields go on the wire.
func NewClass(name string, number uint16, fields ...*Field) (*Class, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ValidationError{Class: name, Reason: "missing name"}
	}
	c := &Class{
		Name:   name,
		Number: number,
		Fields: fields,
		byTag:  make(map[uint16]*Field, len(fields)),
		byName: make(map[string]*Field, len(fields)),
	}
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, ValidationError{Class: name, Field: fmt.Sprint(f.Tag), Reason: "missing field name"}
		}
		if _, dup := c.byTag[f.Tag]; dup {
			return nil, ValidationError{Class: name, Field: f.Name, Reason: "duplicate tag"}
		}
		if _, dup := c.byName[f.Name]; dup {
			return nil, ValidationError{Class: name, Field: f.Name, Reason: "duplicate name"}
		}
		c.byTag[f.Tag] = f
		c.byName[f.Name] = f
	}
	for _, f := range fields {
		switch f.Kind {
		case Parameter:
			if len(f.Params) != 1 {
				return nil, ValidationError{Class: name, Field: f.Name, Reason: "parameter field needs exactly one encoding"}
			}
		case Molecular:
			if len(f.Components) == 0 {
				return nil, ValidationError{Class: name, Field: f.Name, Reason: "molecular field has no components"}
			}
			params := make([]Encoding, 0, len(f.Components))
			for _, tag := range f.Components {
				comp, ok := c.byTag[tag]
				if !ok || comp.Kind == Molecular {
					return nil, ValidationError{Class: name, Field: f.Name, Reason: fmt.Sprintf("bad component %d", tag)}
				}
				params = append(params, comp.Params...)
			}
			f.Params = params
		}
		for _, enc := range f.Params {
			if _, ok := encodingNames[enc]; !ok {
				return nil, ValidationError{Class: name, Field: f.Name, Reason: "invalid encoding"}
			}
		}
	}
	return c, nil
}

func (c *Class) FieldByTag(tag uint16) (*Field, bool) {
	f, ok := c.byTag[tag]
	return f, ok
}

func (c *Class) FieldByName(name string) (*Field, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// RequiredFields returns the required, non-molecular fields in declaration
// order.
func (c *Class) RequiredFields() []*Field {
	out := make([]*Field, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.Required() && f.Kind != Molecular {
			out = append(out, f)
		}
	}
	return out
}

// FieldSchema resolves classes by wire number or name.
type FieldSchema interface {
	ClassByNumber(number uint16) (*Class, bool)
	ClassByName(name string) (*Class, bool)
}

// Registry is an in-memory FieldSchema.
type Registry struct {
	byNumber map[uint16]*Class
	byName   map[string]*Class
}

func NewRegistry() *Registry {
	return &Registry{
		byNumber: make(map[uint16]*Class),
		byName:   make(map[string]*Class),
	}
}

func (r *Registry) Register(c *Class) error {
	if _, dup := r.byNumber[c.Number]; dup {
		log.Error().Msgf("schema.Register duplicate number class=%s number=%d", c.Name, c.Number)
		return ValidationError{Class: c.Name, Reason: fmt.Sprintf("duplicate class number %d", c.Number)}
	}
	if _, dup := r.byName[c.Name]; dup {
		log.Error().Msgf("schema.Register duplicate name class=%s", c.Name)
		return ValidationError{Class: c.Name, Reason: "duplicate class name"}
	}
	r.byNumber[c.Number] = c
	r.byName[c.Name] = c
	log.Debug().Msgf("schema.Register class=%s number=%d fields=%d", c.Name, c.Number, len(c.Fields))
	return nil
}

func (r *Registry) ClassByNumber(number uint16) (*Class, bool) {
	c, ok := r.byNumber[number]
	return c, ok
}

func (r *Registry) ClassByName(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Classes returns every registered class ordered by number.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, 0, len(r.byNumber))
	for _, c := range r.byNumber {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out
}
