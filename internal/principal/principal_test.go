package principal

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestStringParseRoundTrip(t *testing.T) {
	p, err := Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	text := p.String()
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Equal(p) {
		t.Fatalf("parsed principal does not equal original")
	}
}

func TestParseRejectsWrongPrefix(t *testing.T) {
	p, err := Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	// Re-encode the same bytes under a foreign HRP to check the prefix guard.
	conv, err := bech32.ConvertBits(p.Bytes(), 8, 5, true)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	foreign, err := bech32.Encode("xyz", conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Parse(foreign); err == nil {
		t.Fatalf("expected Parse to reject a non-%q prefix", HRP)
	}
}

func TestNewRejectsWrongLength(t *testing.T) {
	if _, err := New([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected New to reject a non-20-byte input")
	}
}

func TestIsZero(t *testing.T) {
	var zero Principal
	if !zero.IsZero() {
		t.Fatalf("expected the zero value to report IsZero")
	}
	p, err := Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	if p.IsZero() {
		t.Fatalf("expected a random principal to not be zero")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	p, err := Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Principal
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.Equal(p) {
		t.Fatalf("JSON round trip changed the principal")
	}
}

func TestJSONUnmarshalEmptyStringIsZero(t *testing.T) {
	var got Principal
	if err := json.Unmarshal([]byte(`""`), &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("expected an empty string to unmarshal to the zero principal")
	}
}

func TestLessIsAntisymmetric(t *testing.T) {
	a := MustNew([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	b := MustNew([]byte{2, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	if !Less(a, b) {
		t.Fatalf("expected a < b")
	}
	if Less(b, a) {
		t.Fatalf("expected b to not be less than a")
	}
	if Less(a, a) {
		t.Fatalf("expected a principal to never be less than itself")
	}
}
