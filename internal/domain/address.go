package domain

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLength is the size of an address in bytes.
const AddressLength = 32

// Address identifies an account, a token or a pool. Rendered in base58.
type Address [AddressLength]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("address %q: expected %d bytes, got %d", s, AddressLength, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on bad input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromLabel derives a stable address from a human label.
// Used for dev accounts and scenario files.
func AddressFromLabel(label string) Address {
	return Address(sha256.Sum256([]byte("fsp-account:" + label)))
}

// String returns the base58 representation.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Short returns an abbreviated form for logs.
func (a Address) Short() string {
	s := a.String()
	if len(s) <= 10 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}

// Bytes returns a copy of the raw bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
