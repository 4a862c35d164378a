package artifact

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/kailas-cloud/asynccts/internal/domain"
)

// Key identifies "the same question" across requests: an artifact type and value.
// Two keys are equal when both fields are byte-for-byte equal. Key is comparable
// and safe to use as a map key.
type Key struct {
	typ   string
	value string
}

// New builds a Key. No normalization is applied.
func New(typ, value string) Key {
	return Key{typ: typ, value: value}
}

// Type returns the artifact type, e.g. "net.uri".
func (k Key) Type() string { return k.typ }

// Value returns the artifact value, e.g. "https://example.com".
func (k Key) Value() string { return k.value }

// IsZero reports whether both fields are empty.
func (k Key) IsZero() bool { return k.typ == "" && k.value == "" }

// Validate checks that both fields are present.
func (k Key) Validate() error {
	if k.typ == "" {
		return fmt.Errorf("%w: type is required", domain.ErrInvalidArtifact)
	}
	if k.value == "" {
		return fmt.Errorf("%w: value is required", domain.ErrInvalidArtifact)
	}
	return nil
}

// Digest returns a stable hex digest of the key for use in storage key names.
// The type is length-prefixed so ("a", "bc") and ("ab", "c") never collide.
func (k Key) Digest() string {
	h := blake3.New()
	var n [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(n[:], uint64(len(k.typ)))
	_, _ = h.Write(n[:l])
	_, _ = h.Write([]byte(k.typ))
	_, _ = h.Write([]byte(k.value))
	return hex.EncodeToString(h.Sum(nil))
}

func (k Key) String() string {
	return k.typ + " " + k.value
}
