package check

import "fmt"

// UnknownComponentError is returned when a component selector does not match
// a registered category.
type UnknownComponentError struct {
	Name  string
	Known []string
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("unknown component %q (known: %v)", e.Name, e.Known)
}

// Registry maps component names to check categories, preserving registration
// order for full runs.
type Registry struct {
	order  []string
	groups map[string]Category
}

func NewRegistry() *Registry {
	return &Registry{groups: map[string]Category{}}
}

func (r *Registry) Register(c Category) {
	if _, ok := r.groups[c.Name]; !ok {
		r.order = append(r.order, c.Name)
	}
	r.groups[c.Name] = c
}

// Get returns the named category or an UnknownComponentError.
func (r *Registry) Get(name string) (Category, error) {
	c, ok := r.groups[name]
	if !ok {
		return Category{}, &UnknownComponentError{Name: name, Known: r.Names()}
	}
	return c, nil
}

// All returns every category in registration order.
func (r *Registry) All() []Category {
	out := make([]Category, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.groups[name])
	}
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
