package shopobject

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Registry holds the object types a bazaar instance accepts. Registration order is
// preserved and used wherever types are listed.
type Registry struct {
	order []Type
	byID  map[string]Type
}

func NewRegistry() *Registry {
	return &Registry{
		byID: map[string]Type{},
	}
}

// Register adds an object type. The type id must not collide with an already
// registered id or alias.
func (r *Registry) Register(t Type) error {
	id := strings.ToLower(t.ID())
	if id == "" {
		return eris.New("object type id must not be empty")
	}
	if _, ok := r.byID[id]; ok {
		return eris.Errorf("object type %q is already registered", id)
	}
	if other, ok := r.match(id); ok {
		return eris.Errorf("object type %q collides with an alias of %q", id, other.ID())
	}
	for _, alias := range t.Aliases() {
		if other, ok := r.match(alias); ok {
			return eris.Errorf("alias %q of object type %q is already taken by %q",
				alias, id, other.ID())
		}
	}
	r.byID[id] = t
	r.order = append(r.order, t)
	return nil
}

// Get returns the type with the exact id, case insensitive.
func (r *Registry) Get(id string) (Type, bool) {
	t, ok := r.byID[strings.ToLower(id)]
	return t, ok
}

// Match resolves user input to a type. Exact ids win over aliases; aliases are
// checked in registration order.
func (r *Registry) Match(input string) (Type, bool) {
	return r.match(input)
}

func (r *Registry) match(input string) (Type, bool) {
	input = strings.ToLower(input)
	if t, ok := r.byID[input]; ok {
		return t, true
	}
	for _, t := range r.order {
		for _, alias := range t.Aliases() {
			if strings.ToLower(alias) == input {
				return t, true
			}
		}
	}
	return nil, false
}

// All returns the registered types in registration order.
func (r *Registry) All() []Type {
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}

// IDs returns the registered type ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.order))
	for _, t := range r.order {
		ids = append(ids, t.ID())
	}
	return ids
}
