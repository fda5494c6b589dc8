package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Keypair is a secp256k1 signing key used by tooling and tests. Production
// signing happens outside this module.
type Keypair struct {
	priv *btcec.PrivateKey
}

func NewKeypair() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromBytes derives a key from a 32-byte scalar.
func KeypairFromBytes(secret []byte) (*Keypair, error) {
	if len(secret) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("keypair: secret must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(secret))
	}
	priv, _ := btcec.PrivKeyFromBytes(secret)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("keypair: zero scalar")
	}
	return &Keypair{priv: priv}, nil
}

// PubkeyBytes returns the 33-byte compressed public key.
func (k *Keypair) PubkeyBytes() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// SignDigest32 returns a low-S DER signature over digest.
func (k *Keypair) SignDigest32(digest [32]byte) []byte {
	return ecdsa.Sign(k.priv, digest[:]).Serialize()
}

// SecretBytes returns the 32-byte private scalar.
func (k *Keypair) SecretBytes() []byte {
	return k.priv.Serialize()
}
