package crypto

import (
	"encoding/hex"
	"testing"
)

func TestStdSHA3_256_KnownVector(t *testing.T) {
	p := StdProvider{}
	sum := p.SHA3_256([]byte("abc"))
	// SHA3-256("abc")
	const want = "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"
	if got := hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("digest mismatch: got=%s want=%s", got, want)
	}
}

func TestStdHash160_EmptyVector(t *testing.T) {
	p := StdProvider{}
	sum := p.Hash160(nil)
	const want = "b472a266d0bd89c13706a4132ccfb16f7c3b9fcb"
	if got := hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("hash160 mismatch: got=%s want=%s", got, want)
	}
}

func TestStdHash256_EmptyVector(t *testing.T) {
	p := StdProvider{}
	sum := p.Hash256(nil)
	const want = "5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456"
	if got := hex.EncodeToString(sum[:]); got != want {
		t.Fatalf("hash256 mismatch: got=%s want=%s", got, want)
	}
}

func TestStdVerifyECDSA_RejectsMalformed(t *testing.T) {
	p := StdProvider{}
	var d [32]byte
	if p.VerifyECDSA(nil, []byte{0x30}, d) {
		t.Fatalf("empty pubkey verified")
	}
	if p.VerifyECDSA(make([]byte, 33), []byte{0x30, 0x00}, d) {
		t.Fatalf("zero pubkey verified")
	}
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	if p.VerifyECDSA(kp.PubkeyBytes(), []byte{0x30, 0x01, 0x02}, d) {
		t.Fatalf("truncated DER verified")
	}
}
