package covenant

import (
	"fmt"

	"energytrade.dev/settle/crypto"
)

// splitSig separates the DER body from the trailing sighash byte.
func splitSig(sig Sig) ([]byte, byte, error) {
	if len(sig) < 2 || len(sig) > MAX_DER_SIG_BYTES+1 {
		return nil, 0, spenderr(ERR_BAD_SIGNATURE, "signature length invalid")
	}
	return sig[:len(sig)-1], sig[len(sig)-1], nil
}

func checkSig(p crypto.CryptoProvider, sig Sig, pub PubKey, digest [32]byte) error {
	der, hashType, err := splitSig(sig)
	if err != nil {
		return err
	}
	if hashType != SIGHASH_ALL_FORKID {
		return spenderr(ERR_BAD_SIGNATURE, "sighash type not allowed")
	}
	if !p.VerifyECDSA(pub, der, digest) {
		return spenderr(ERR_BAD_SIGNATURE, "signature invalid")
	}
	return nil
}

// VerifyPartySig binds pub to the identity on file, then checks sig over digest.
func VerifyPartySig(p crypto.CryptoProvider, sig Sig, pub PubKey, identity PubKeyHash, digest [32]byte) error {
	if PubKeyHash(p.Hash160(pub)) != identity {
		return spenderr(ERR_IDENTITY_MISMATCH, "public key does not match identity commitment")
	}
	return checkSig(p, sig, pub, digest)
}

// VerifyQuorum requires sigs[i] to validate against committee[i] for every slot.
func VerifyQuorum(p crypto.CryptoProvider, sigs [N_REGULATORS]Sig, committee RegulatorCommittee, digest [32]byte) error {
	for i := range committee {
		if err := checkSig(p, sigs[i], committee[i], digest); err != nil {
			return spenderr(ERR_QUORUM_NOT_MET, fmt.Sprintf("regulator slot %d: %v", i, err))
		}
	}
	return nil
}
