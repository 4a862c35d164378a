package hit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// wireProperty is the external shape of a property: {"type", "name", "value"}.
type wireProperty struct {
	Type  Type            `json:"type"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the property as {"type", "name", "value"}.
func (p Property) MarshalJSON() ([]byte, error) {
	if !p.IsValid() {
		return nil, ErrInvalidPropertyType
	}
	value, err := json.Marshal(p.Value())
	if err != nil {
		return nil, fmt.Errorf("marshal %s value: %w", p.kind, err)
	}
	return json.Marshal(wireProperty{Type: p.kind, Name: p.name, Value: value})
}

// UnmarshalJSON decodes and validates a property. Numbers must be integers and
// lat_lng values must carry both lat and lng.
func (p *Property) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return fmt.Errorf("%w: null", ErrInvalidPropertyType)
	}
	var w wireProperty
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPropertyType, err)
	}
	if !w.Type.Supported() {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, w.Type)
	}

	value, err := decodeValue(w.Type, w.Value)
	if err != nil {
		return err
	}

	prop, err := NewProperty(w.Type, w.Name, value)
	if err != nil {
		return err
	}
	*p = prop
	return nil
}

func decodeValue(t Type, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: type %s has no value", ErrTypeValueMismatch, t)
	}

	switch {
	case t.textual():
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: type %s expects a string: %s", ErrTypeValueMismatch, t, raw)
		}
		return s, nil
	case t == Number:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		tok, err := dec.Token()
		n, ok := tok.(json.Number)
		if err != nil || !ok || dec.More() {
			return nil, fmt.Errorf("%w: type number expects an integer: %s", ErrTypeValueMismatch, raw)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: type number expects an integer: %s", ErrTypeValueMismatch, raw)
		}
		return i, nil
	default:
		var c struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		}
		if err := json.Unmarshal(raw, &c); err != nil || c.Lat == nil || c.Lng == nil {
			return nil, fmt.Errorf("%w: type lat_lng expects {lat, lng}: %s", ErrTypeValueMismatch, raw)
		}
		return Coordinates{Lat: *c.Lat, Lng: *c.Lng}, nil
	}
}

// MarshalJSON encodes the hit as an array of properties; an empty hit is [].
func (h *Hit) MarshalJSON() ([]byte, error) {
	props := h.props
	if props == nil {
		props = []Property{}
	}
	return json.Marshal(props)
}

// UnmarshalJSON decodes an array of properties and validates it like New.
// A JSON null decodes to an empty hit.
func (h *Hit) UnmarshalJSON(data []byte) error {
	var props []Property
	if err := json.Unmarshal(data, &props); err != nil {
		return err
	}
	decoded, err := New(props...)
	if err != nil {
		return err
	}
	*h = *decoded
	return nil
}
