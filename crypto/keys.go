package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const keyDerivationDST = "smartcoin-key-derivation/"

// PrivateKey signs AGG_SIG obligations for wallets and test drivers.
type PrivateKey struct {
	key ed25519.PrivateKey
}

func NewPrivateKey() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: priv}, nil
}

// KeyFromSeed derives a deterministic key; seed must be 32 bytes.
func KeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("key: seed must be 32 bytes")
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// DeriveKey expands a secret and an index into a child key with SHAKE256.
func DeriveKey(secret []byte, index uint32) *PrivateKey {
	h := sha3.NewShake256()
	_, _ = h.Write([]byte(keyDerivationDST))
	_, _ = h.Write(secret)
	_, _ = h.Write([]byte{byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index)})
	seed := make([]byte, ed25519.SeedSize)
	_, _ = h.Read(seed)
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}
}

func (k *PrivateKey) PublicKey() []byte {
	pub, _ := k.key.Public().(ed25519.PublicKey)
	return append([]byte(nil), pub...)
}

func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.key, msg)
}
