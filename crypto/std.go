package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 is fixed by the identity format.
	"golang.org/x/crypto/sha3"
)

// StdProvider is the pure-Go provider backed by btcec and x/crypto.
type StdProvider struct{}

func (p StdProvider) Hash160(input []byte) [20]byte {
	s := sha256.Sum256(input)
	h := ripemd160.New()
	_, _ = h.Write(s[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (p StdProvider) Hash256(input []byte) [32]byte {
	return [32]byte(chainhash.DoubleHashH(input))
}

func (p StdProvider) SHA3_256(input []byte) [32]byte {
	h := sha3.New256()
	_, _ = h.Write(input)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (p StdProvider) VerifyECDSA(pubkey []byte, derSig []byte, digest32 [32]byte) bool {
	if len(pubkey) == 0 || len(derSig) == 0 {
		return false
	}
	pk, err := btcec.ParsePubKey(pubkey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(derSig)
	if err != nil {
		return false
	}
	return sig.Verify(digest32[:], pk)
}
