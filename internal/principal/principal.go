// Package principal provides the concrete address type standing in for the
// spec's abstract "authenticated caller". Verification of the authentication
// itself is delegated to the host (see internal/hostauth); this package only
// encodes and compares the 20-byte identifiers the host hands back.
package principal

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// HRP is the human-readable prefix used for bech32-encoded principals.
const HRP = "gld"

// Principal is a 20-byte caller identifier with a stable bech32 text form.
type Principal struct {
	bytes [20]byte
}

// Zero is the unset principal value.
var Zero Principal

// New constructs a Principal from exactly 20 bytes.
func New(b []byte) (Principal, error) {
	if len(b) != 20 {
		return Principal{}, fmt.Errorf("principal: address must be 20 bytes, got %d", len(b))
	}
	var p Principal
	copy(p.bytes[:], b)
	return p, nil
}

// MustNew constructs a Principal and panics on invalid input. Intended for
// tests and static fixtures only.
func MustNew(b []byte) Principal {
	p, err := New(b)
	if err != nil {
		panic(err)
	}
	return p
}

// Random generates a Principal from a cryptographically random source. Used
// by demos and tests that need disposable identities.
func Random() (Principal, error) {
	var raw [20]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Principal{}, err
	}
	return Principal{bytes: raw}, nil
}

// Bytes returns a defensive copy of the underlying address bytes.
func (p Principal) Bytes() []byte {
	return append([]byte(nil), p.bytes[:]...)
}

// IsZero reports whether the principal is the unset value.
func (p Principal) IsZero() bool {
	return p == Zero
}

// Equal reports whether two principals reference the same address.
func (p Principal) Equal(o Principal) bool {
	return p.bytes == o.bytes
}

// String renders the bech32 text form, e.g. "gld1...".
func (p Principal) String() string {
	conv, err := bech32.ConvertBits(p.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(HRP, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Parse decodes a bech32 principal string produced by String.
func Parse(s string) (Principal, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Principal{}, fmt.Errorf("principal: invalid bech32 string: %w", err)
	}
	if hrp != HRP {
		return Principal{}, fmt.Errorf("principal: unexpected prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Principal{}, fmt.Errorf("principal: error converting bits: %w", err)
	}
	return New(conv)
}

// MarshalJSON encodes the principal using its bech32 text form.
func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a bech32 text form produced by MarshalJSON.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	if text == "" {
		*p = Principal{}
		return nil
	}
	decoded, err := Parse(text)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// Less provides a stable byte-wise ordering of principals.
func Less(a, b Principal) bool {
	for i := range a.bytes {
		if a.bytes[i] != b.bytes[i] {
			return a.bytes[i] < b.bytes[i]
		}
	}
	return false
}
