package hit

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew_PreservesOrder(t *testing.T) {
	h, err := New(
		StringProperty("test", "test"),
		NumberProperty("count", 4),
		IPProperty("addr", "10.0.0.1"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", h.Len())
	}
	names := []string{"test", "count", "addr"}
	for i, p := range h.Properties() {
		if p.Name() != names[i] {
			t.Errorf("property %d = %q, want %q", i, p.Name(), names[i])
		}
	}
}

func TestNew_DuplicateName(t *testing.T) {
	_, err := New(StringProperty("a", "x"), NumberProperty("a", 1))
	if !errors.Is(err, ErrDuplicatePropertyName) {
		t.Fatalf("expected ErrDuplicatePropertyName, got %v", err)
	}
}

func TestNew_InvalidElement(t *testing.T) {
	_, err := New(StringProperty("a", "x"), Property{})
	if !errors.Is(err, ErrInvalidPropertyType) {
		t.Fatalf("expected ErrInvalidPropertyType, got %v", err)
	}
}

func TestNew_CopiesInput(t *testing.T) {
	props := []Property{StringProperty("a", "x")}
	h, err := New(props...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	props[0] = StringProperty("b", "y")
	if p, _ := h.Get("a"); p.Name() != "a" {
		t.Error("hit must not alias the caller's slice")
	}
}

func TestAppend(t *testing.T) {
	h := Empty()
	if err := h.Append(StringProperty("a", "x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Append(StringProperty("a", "y")); !errors.Is(err, ErrDuplicatePropertyName) {
		t.Errorf("expected ErrDuplicatePropertyName, got %v", err)
	}
	if err := h.Append(Property{}); !errors.Is(err, ErrInvalidPropertyType) {
		t.Errorf("expected ErrInvalidPropertyType, got %v", err)
	}
	if h.Len() != 1 {
		t.Errorf("failed appends must not change the hit, Len() = %d", h.Len())
	}
}

func TestGet(t *testing.T) {
	h, _ := New(URIProperty("link", "https://x.test"))
	if _, ok := h.Get("missing"); ok {
		t.Error("Get(missing) must report false")
	}
	p, ok := h.Get("link")
	if !ok || p.Type() != URI {
		t.Errorf("Get(link) = %+v, %v", p, ok)
	}
}

func TestEmpty_MarshalsAsArray(t *testing.T) {
	data, err := json.Marshal(Empty())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("got %s, want []", data)
	}

	var zero Hit
	data, err = json.Marshal(&zero)
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("zero hit: got %s, want []", data)
	}
}

func TestMarshalJSON_Shape(t *testing.T) {
	h, _ := New(
		StringProperty("test", "test"),
		NumberProperty("n", 5),
		LatLngProperty("geo", 1.5, 2),
	)
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"type":"string","name":"test","value":"test"},` +
		`{"type":"number","name":"n","value":5},` +
		`{"type":"lat_lng","name":"geo","value":{"lat":1.5,"lng":2}}]`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}
}

func TestUnmarshalJSON_RoundTrip(t *testing.T) {
	in, _ := New(
		IPProperty("ip", "192.168.0.1"),
		NumberProperty("port", 443),
		LatLngProperty("geo", -33.86, 151.2),
	)
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Hit
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Len() != in.Len() {
		t.Fatalf("Len() = %d, want %d", out.Len(), in.Len())
	}
	for i, p := range out.Properties() {
		if p != in.Properties()[i] {
			t.Errorf("property %d = %+v, want %+v", i, p, in.Properties()[i])
		}
	}
}

func TestUnmarshalJSON_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"number as text", `[{"type":"number","name":"count","value":"5"}]`, ErrTypeValueMismatch},
		{"number as float", `[{"type":"number","name":"count","value":5.5}]`, ErrTypeValueMismatch},
		{"number as padded text", `[{"type":"number","name":"count","value": "5" }]`, ErrTypeValueMismatch},
		{"number as null", `[{"type":"number","name":"count","value":null}]`, ErrTypeValueMismatch},
		{"number as bool", `[{"type":"number","name":"count","value":true}]`, ErrTypeValueMismatch},
		{"unsupported type", `[{"type":"color","name":"c","value":"red"}]`, ErrUnsupportedType},
		{"duplicate name", `[{"type":"string","name":"a","value":"x"},{"type":"string","name":"a","value":"y"}]`, ErrDuplicatePropertyName},
		{"lat_lng missing lng", `[{"type":"lat_lng","name":"g","value":{"lat":1}}]`, ErrTypeValueMismatch},
		{"missing value", `[{"type":"ip","name":"i"}]`, ErrTypeValueMismatch},
		{"loose record", `["test"]`, ErrInvalidPropertyType},
		{"null element", `[null]`, ErrInvalidPropertyType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h Hit
			err := json.Unmarshal([]byte(tt.payload), &h)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestUnmarshalJSON_Null(t *testing.T) {
	var h Hit
	if err := h.UnmarshalJSON([]byte("null")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}
