package hit

import (
	"errors"
	"fmt"
	"math"
)

// Type is the kind of value a Property carries.
type Type string

// Supported property types.
const (
	String Type = "string"
	Number Type = "number"
	URI    Type = "uri"
	IP     Type = "ip"
	LatLng Type = "lat_lng"
)

// Types lists every supported property type in declaration order.
var Types = []Type{String, Number, URI, IP, LatLng}

var (
	// ErrUnsupportedType signals a property type outside Types.
	ErrUnsupportedType = errors.New("unsupported property type")
	// ErrTypeValueMismatch signals a value whose shape does not match the declared type.
	ErrTypeValueMismatch = errors.New("property type and value do not match")
	// ErrDuplicatePropertyName signals a second property with a name already in the hit.
	ErrDuplicatePropertyName = errors.New("duplicate property name")
	// ErrInvalidPropertyType signals an element that is not a validated Property.
	ErrInvalidPropertyType = errors.New("invalid property")
)

// Supported reports whether t is one of the supported property types.
func (t Type) Supported() bool {
	switch t {
	case String, Number, URI, IP, LatLng:
		return true
	}
	return false
}

func (t Type) textual() bool {
	return t == String || t == URI || t == IP
}

// Coordinates is the structured value of a lat_lng property.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Property is a typed, named value of a Hit. The zero Property is invalid;
// build one with NewProperty or a typed helper.
type Property struct {
	kind   Type
	name   string
	text   string
	number int64
	coords Coordinates
}

// NewProperty validates and creates a Property.
//
// string, uri and ip take a Go string; number takes any integer type that fits
// in int64; lat_lng takes Coordinates (or a non-nil *Coordinates).
func NewProperty(t Type, name string, value any) (Property, error) {
	if !t.Supported() {
		return Property{}, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedType, t, Types)
	}

	p := Property{kind: t, name: name}
	switch {
	case t.textual():
		s, ok := value.(string)
		if !ok {
			return Property{}, mismatch(t, value)
		}
		p.text = s
	case t == Number:
		n, ok := toInt64(value)
		if !ok {
			return Property{}, mismatch(t, value)
		}
		p.number = n
	case t == LatLng:
		switch c := value.(type) {
		case Coordinates:
			p.coords = c
		case *Coordinates:
			if c == nil {
				return Property{}, mismatch(t, value)
			}
			p.coords = *c
		default:
			return Property{}, mismatch(t, value)
		}
	}
	return p, nil
}

// StringProperty creates a string property.
func StringProperty(name, value string) Property {
	return Property{kind: String, name: name, text: value}
}

// NumberProperty creates a number property.
func NumberProperty(name string, value int64) Property {
	return Property{kind: Number, name: name, number: value}
}

// URIProperty creates a uri property.
func URIProperty(name, value string) Property {
	return Property{kind: URI, name: name, text: value}
}

// IPProperty creates an ip property.
func IPProperty(name, value string) Property {
	return Property{kind: IP, name: name, text: value}
}

// LatLngProperty creates a lat_lng property.
func LatLngProperty(name string, lat, lng float64) Property {
	return Property{kind: LatLng, name: name, coords: Coordinates{Lat: lat, Lng: lng}}
}

// Type returns the property type.
func (p Property) Type() Type { return p.kind }

// Name returns the property name.
func (p Property) Name() string { return p.name }

// Value returns the value as string, int64 or Coordinates depending on Type.
func (p Property) Value() any {
	switch {
	case p.kind.textual():
		return p.text
	case p.kind == Number:
		return p.number
	case p.kind == LatLng:
		return p.coords
	}
	return nil
}

// Text returns the value of a string, uri or ip property.
func (p Property) Text() (string, bool) { return p.text, p.kind.textual() }

// Int returns the value of a number property.
func (p Property) Int() (int64, bool) { return p.number, p.kind == Number }

// Coordinates returns the value of a lat_lng property.
func (p Property) Coordinates() (Coordinates, bool) { return p.coords, p.kind == LatLng }

// IsValid reports whether p was produced by a constructor.
func (p Property) IsValid() bool { return p.kind.Supported() }

func mismatch(t Type, value any) error {
	return fmt.Errorf("%w: type %s, value %v (%T)", ErrTypeValueMismatch, t, value, value)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
