package crypto

// CryptoProvider is the narrow crypto interface used by consensus code.
// Signature algebra stays behind it; consensus never touches key material.
// Coin ids and announcements are plain SHA-256 and do not go through it.
type CryptoProvider interface {
	SHA3_256(input []byte) ([32]byte, error)
	// VerifyEd25519 checks one (pubkey, message, signature) triple.
	VerifyEd25519(pubkey []byte, msg []byte, sig []byte) bool
}
