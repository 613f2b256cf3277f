package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"filippo.io/edwards25519"

	"fsp-staking/internal/domain"
)

// ErrNoOffCurveAddress is returned when no bump yields an off-curve address.
var ErrNoOffCurveAddress = errors.New("no off-curve address for seeds")

const derivationMarker = "FixedStakingPool"

// DerivePoolAddress computes the address of the nonce-th pool deployed by a
// factory. Formula: SHA256("pool"|factory|nonce|bump|marker), searching bump
// from 255 down until the hash is not a valid ed25519 point, so no key pair
// can ever sign for a pool.
func DerivePoolAddress(factory domain.Address, nonce uint64) (domain.Address, uint8, error) {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return deriveOffCurve([][]byte{[]byte("pool"), factory[:], nonceBytes[:]})
}

func deriveOffCurve(seeds [][]byte) (domain.Address, uint8, error) {
	for bump := 255; bump > 0; bump-- {
		data := make([]byte, 0, 96)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, derivationMarker...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return domain.Address(hash), uint8(bump), nil
		}
	}
	return domain.Address{}, 0, ErrNoOffCurveAddress
}

// IsOnCurve reports whether b encodes a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
