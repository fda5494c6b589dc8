package crypto

import (
	"bytes"
	"testing"
)

func TestKeypairSignVerifyRoundtrip(t *testing.T) {
	p := StdProvider{}
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	pub := kp.PubkeyBytes()
	if len(pub) != 33 {
		t.Fatalf("pubkey len=%d, want 33", len(pub))
	}
	digest := p.Hash256([]byte("energy"))
	sig := kp.SignDigest32(digest)
	if !p.VerifyECDSA(pub, sig, digest) {
		t.Fatalf("expected signature to verify")
	}

	other := digest
	other[0] ^= 0x01
	if p.VerifyECDSA(pub, sig, other) {
		t.Fatalf("signature verified over a different digest")
	}
}

func TestKeypairFromBytes(t *testing.T) {
	secret := bytes.Repeat([]byte{0x11}, 32)
	a, err := KeypairFromBytes(secret)
	if err != nil {
		t.Fatalf("KeypairFromBytes: %v", err)
	}
	b, err := KeypairFromBytes(secret)
	if err != nil {
		t.Fatalf("KeypairFromBytes: %v", err)
	}
	if !bytes.Equal(a.PubkeyBytes(), b.PubkeyBytes()) {
		t.Fatalf("same secret produced different pubkeys")
	}
	if _, err := KeypairFromBytes(secret[:31]); err == nil {
		t.Fatalf("expected error for short secret")
	}
	if _, err := KeypairFromBytes(make([]byte, 32)); err == nil {
		t.Fatalf("expected error for zero scalar")
	}
}
