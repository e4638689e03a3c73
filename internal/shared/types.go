package shared

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Address identifies an account on the ledger. Callers are authenticated by
// the hosting environment before any operation runs; the core treats an
// Address as already proven.
type Address string

// String returns the raw address text.
func (a Address) String() string { return string(a) }

// HashLen is the size in bytes of a proof digest.
const HashLen = 32

// Hash is a 32-byte proof digest, hex-encoded in JSON.
type Hash [HashLen]byte

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("shared: parse hash: %w", err)
	}
	if len(raw) != HashLen {
		return Hash{}, fmt.Errorf("shared: parse hash: want %d bytes, got %d", HashLen, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// String returns the lowercase hex encoding.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into the hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
