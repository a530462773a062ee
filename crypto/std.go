package crypto

import (
	"crypto/ed25519"

	"golang.org/x/crypto/sha3"
)

// StdProvider is the default provider backed by the Go standard library and x/crypto.
type StdProvider struct{}

func (StdProvider) SHA3_256(input []byte) ([32]byte, error) {
	h := sha3.New256()
	_, _ = h.Write(input)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func (StdProvider) VerifyEd25519(pubkey []byte, msg []byte, sig []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), msg, sig)
}
