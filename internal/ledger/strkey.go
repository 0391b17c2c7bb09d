package ledger

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Account addresses use the strkey format: one version byte, the 32-byte
// ed25519 public key, and a CRC16-XMODEM checksum, base32-encoded without
// padding. Account keys carry version byte 6<<3, which yields the 'G' prefix.
const accountVersionByte = 6 << 3

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DecodeAddress decodes a strkey account address and returns the raw
// 32-byte ed25519 public key.
func DecodeAddress(address string) ([]byte, error) {
	raw, err := strkeyEncoding.DecodeString(address)
	if err != nil {
		return nil, fmt.Errorf("decode base32: %w", err)
	}
	if len(raw) != 35 {
		return nil, fmt.Errorf("invalid decoded length %d", len(raw))
	}
	if raw[0] != accountVersionByte {
		return nil, fmt.Errorf("invalid version byte 0x%02x", raw[0])
	}

	payload := raw[:33]
	want := binary.LittleEndian.Uint16(raw[33:])
	if crc16(payload) != want {
		return nil, errors.New("checksum mismatch")
	}

	return raw[1:33], nil
}

// ValidAddress reports whether address is a well-formed strkey account
// address whose public key is a valid ed25519 curve point.
func ValidAddress(address string) bool {
	key, err := DecodeAddress(address)
	if err != nil {
		return false
	}
	return isOnCurve(key)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// crc16 computes the CRC16-XMODEM checksum (polynomial 0x1021, zero seed).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
