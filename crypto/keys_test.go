package crypto

import (
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := NewAddress(PMPrefix, raw)
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(PMPrefix)+"1") {
		t.Fatalf("expected pm prefix, got %q", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if decoded.Prefix() != PMPrefix {
		t.Fatalf("expected prefix %q, got %q", PMPrefix, decoded.Prefix())
	}
	if decoded.Raw() != addr.Raw() {
		t.Fatal("round trip lost the address bytes")
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("expected error for malformed input")
	}
	// Valid bech32 but the wrong payload length.
	short := NewAddress(PMPrefix, make([]byte, 20))
	mangled := short.String()[:20]
	if _, err := DecodeAddress(mangled); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestKeyDerivedAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	if addr.Prefix() != PMPrefix {
		t.Fatalf("expected pm prefix, got %q", addr.Prefix())
	}
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode derived address: %v", err)
	}
	if decoded.Raw() != addr.Raw() {
		t.Fatal("derived address failed the round trip")
	}
}
