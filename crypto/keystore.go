package crypto

import (
	"crypto/aes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
)

const (
	KeyStoreVersionV1 = "ESKSv1"
	keyStoreWrapAlg   = "AES-256-KW"
)

// KeyStore is a party signing key at rest, wrapped under an operator KEK.
// PKH is hash160(pubkey), the identity a record commits to.
type KeyStore struct {
	Version      string `json:"version"`
	PubkeyHex    string `json:"pubkey"`
	PKHHex       string `json:"pkh"`
	WrapAlg      string `json:"wrap_alg"`
	WrappedSKHex string `json:"wrapped_sk"`
}

func mustLen(b []byte, n int, name string) error {
	if len(b) != n {
		return fmt.Errorf("%s must be %d bytes (got %d)", name, n, len(b))
	}
	return nil
}

// WrapKeypair seals kp under a 32-byte AES-256 key-encryption key.
func WrapKeypair(p CryptoProvider, kp *Keypair, kek []byte) (*KeyStore, error) {
	if err := mustLen(kek, 32, "kek"); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	wrapped, err := josecipher.KeyWrap(block, kp.SecretBytes())
	if err != nil {
		return nil, fmt.Errorf("keystore: wrap: %w", err)
	}
	pub := kp.PubkeyBytes()
	pkh := p.Hash160(pub)
	return &KeyStore{
		Version:      KeyStoreVersionV1,
		PubkeyHex:    hex.EncodeToString(pub),
		PKHHex:       hex.EncodeToString(pkh[:]),
		WrapAlg:      keyStoreWrapAlg,
		WrappedSKHex: hex.EncodeToString(wrapped),
	}, nil
}

// Unwrap recovers the keypair and checks it against the stored pubkey.
func (ks *KeyStore) Unwrap(kek []byte) (*Keypair, error) {
	if err := ks.validate(); err != nil {
		return nil, err
	}
	if err := mustLen(kek, 32, "kek"); err != nil {
		return nil, err
	}
	wrapped, err := hex.DecodeString(ks.WrappedSKHex)
	if err != nil {
		return nil, fmt.Errorf("keystore: wrapped_sk: %w", err)
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	secret, err := josecipher.KeyUnwrap(block, wrapped)
	if err != nil {
		return nil, fmt.Errorf("keystore: unwrap: %w", err)
	}
	kp, err := KeypairFromBytes(secret)
	if err != nil {
		return nil, err
	}
	if hex.EncodeToString(kp.PubkeyBytes()) != strings.ToLower(ks.PubkeyHex) {
		return nil, fmt.Errorf("keystore: unwrapped key does not match pubkey")
	}
	return kp, nil
}

func (ks *KeyStore) validate() error {
	if ks.Version != KeyStoreVersionV1 {
		return fmt.Errorf("unsupported keystore version: %q", ks.Version)
	}
	if strings.ToUpper(ks.WrapAlg) != keyStoreWrapAlg {
		return fmt.Errorf("unsupported wrap_alg: %q", ks.WrapAlg)
	}
	return nil
}

func ReadKeyStore(path string) (*KeyStore, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided
	if err != nil {
		return nil, err
	}
	var ks KeyStore
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, fmt.Errorf("keystore json: %w", err)
	}
	if err := ks.validate(); err != nil {
		return nil, err
	}
	return &ks, nil
}

func WriteKeyStore(path string, ks *KeyStore) error {
	b, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}
