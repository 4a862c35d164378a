package codec

import (
	"fmt"

	"github.com/kailas-cloud/asynccts/internal/domain/hit"
)

// storedProperty is the persisted form of a hit.Property. Integer keys keep
// stored hits compact.
type storedProperty struct {
	Type   string  `cbor:"1,keyasint"`
	Name   string  `cbor:"2,keyasint"`
	Text   string  `cbor:"3,keyasint,omitempty"`
	Number int64   `cbor:"4,keyasint,omitempty"`
	Lat    float64 `cbor:"5,keyasint,omitempty"`
	Lng    float64 `cbor:"6,keyasint,omitempty"`
}

// EncodeHit encodes h as a CBOR array of properties in order.
func EncodeHit(h *hit.Hit) ([]byte, error) {
	if h == nil {
		h = hit.Empty()
	}
	props := h.Properties()
	out := make([]storedProperty, 0, len(props))
	for _, p := range props {
		sp := storedProperty{Type: string(p.Type()), Name: p.Name()}
		switch p.Type() {
		case hit.Number:
			sp.Number, _ = p.Int()
		case hit.LatLng:
			c, _ := p.Coordinates()
			sp.Lat, sp.Lng = c.Lat, c.Lng
		default:
			sp.Text, _ = p.Text()
		}
		out = append(out, sp)
	}
	return Marshal(out)
}

// DecodeHit decodes a hit written by EncodeHit, re-validating every property.
func DecodeHit(data []byte) (*hit.Hit, error) {
	var stored []storedProperty
	if err := Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	props := make([]hit.Property, 0, len(stored))
	for i, sp := range stored {
		var value any
		switch hit.Type(sp.Type) {
		case hit.Number:
			value = sp.Number
		case hit.LatLng:
			value = hit.Coordinates{Lat: sp.Lat, Lng: sp.Lng}
		default:
			value = sp.Text
		}
		p, err := hit.NewProperty(hit.Type(sp.Type), sp.Name, value)
		if err != nil {
			return nil, fmt.Errorf("decode property %d: %w", i, err)
		}
		props = append(props, p)
	}
	return hit.New(props...)
}
