package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte SHA-256 digest: coin ids, puzzle hashes, announcement ids.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64-char hex string, with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	var out Hash
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != 64 {
		return out, fmt.Errorf("hash: expected 64 hex chars, got %d", len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	return out, nil
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var out Hash
	if len(b) != len(out) {
		return out, fmt.Errorf("hash: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// stdHash is SHA-256 over the concatenation of parts.
func stdHash(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// StdHash exposes stdHash to puzzle drivers.
func StdHash(parts ...[]byte) Hash {
	return stdHash(parts...)
}
