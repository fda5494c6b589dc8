package crypto

// CryptoProvider is the narrow crypto interface used by covenant code.
// Implementations must be stateless or safe for concurrent use.
type CryptoProvider interface {
	// Hash160 is RIPEMD160(SHA256(input)), the party identity commitment.
	Hash160(input []byte) [20]byte
	// Hash256 is SHA256(SHA256(input)), used for output commitments and sighash.
	Hash256(input []byte) [32]byte
	SHA3_256(input []byte) [32]byte
	// VerifyECDSA checks a DER signature over digest32 against a compressed
	// or uncompressed secp256k1 public key. Malformed inputs verify false.
	VerifyECDSA(pubkey []byte, derSig []byte, digest32 [32]byte) bool
}
