package hit

import "fmt"

// Hit is the validated outcome of a search: an ordered, append-only sequence of
// uniquely named properties. An empty Hit is valid and means "nothing found".
type Hit struct {
	props []Property
}

// New validates every property and the uniqueness of their names in one pass,
// then returns a Hit preserving the given order.
func New(props ...Property) (*Hit, error) {
	if err := validate(props); err != nil {
		return nil, err
	}
	h := &Hit{props: make([]Property, len(props))}
	copy(h.props, props)
	return h, nil
}

// Empty returns a Hit without properties.
func Empty() *Hit {
	return &Hit{props: []Property{}}
}

// Append adds p to the end of the hit after the same checks New applies.
func (h *Hit) Append(p Property) error {
	if !p.IsValid() {
		return fmt.Errorf("%w: property at position %d", ErrInvalidPropertyType, len(h.props))
	}
	for _, existing := range h.props {
		if existing.name == p.name {
			return fmt.Errorf("%w: %q is already present", ErrDuplicatePropertyName, p.name)
		}
	}
	h.props = append(h.props, p)
	return nil
}

// Properties returns a copy of the properties in order.
func (h *Hit) Properties() []Property {
	out := make([]Property, len(h.props))
	copy(out, h.props)
	return out
}

// Len returns the number of properties.
func (h *Hit) Len() int { return len(h.props) }

// Get returns the property with the given name.
func (h *Hit) Get(name string) (Property, bool) {
	for _, p := range h.props {
		if p.name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Validate re-checks the hit invariants.
func (h *Hit) Validate() error {
	return validate(h.props)
}

func validate(props []Property) error {
	seen := make(map[string]struct{}, len(props))
	for i, p := range props {
		if !p.IsValid() {
			return fmt.Errorf("%w: property at position %d", ErrInvalidPropertyType, i)
		}
		if _, dup := seen[p.name]; dup {
			return fmt.Errorf("%w: %q must be unique within a hit", ErrDuplicatePropertyName, p.name)
		}
		seen[p.name] = struct{}{}
	}
	return nil
}
