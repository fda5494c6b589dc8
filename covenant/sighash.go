package covenant

import "energytrade.dev/settle/crypto"

type Transition string

const (
	TransitionDeposit        Transition = "deposit"
	TransitionPurchase       Transition = "purchase"
	TransitionConfirm        Transition = "confirm"
	TransitionCancel         Transition = "cancel"
	TransitionDeadlineRefund Transition = "deadline_refund"
)

// transitionID is the byte committed in the signing preimage. Signatures for
// one transition never validate for another.
func transitionID(t Transition) (byte, bool) {
	switch t {
	case TransitionDeposit:
		return 0x01, true
	case TransitionPurchase:
		return 0x02, true
	case TransitionConfirm:
		return 0x03, true
	case TransitionCancel:
		return 0x04, true
	case TransitionDeadlineRefund:
		return 0x05, true
	default:
		return 0, false
	}
}

// SpendContext is the caller-supplied authorization context for one
// transition. The predicates only read it.
type SpendContext struct {
	Outpoint Outpoint
	// Value is the amount currently held by the record.
	Value uint64
	// HashOutputs commits to the proposed successor outputs (see HashOutputs).
	HashOutputs  [32]byte
	Locktime     uint32
	Sequence     uint32
	ChangeAmount uint64
	ChangePKH    PubKeyHash
}

// SighashDigest is the message every signature of a transition signs.
// param carries the transition's numeric argument (energy amount or delta).
func SighashDigest(
	p crypto.CryptoProvider,
	t Transition,
	entry TxOutput,
	ctx SpendContext,
	param uint64,
) ([32]byte, error) {
	tid, ok := transitionID(t)
	if !ok {
		return [32]byte{}, spenderr(ERR_UNKNOWN_TRANSITION, string(t))
	}
	entryHash := p.Hash256(TxOutputBytes(entry))

	preimage := make([]byte, 0, 17+1+1+32+4+32+8+4+32+4+8+20+8)
	preimage = append(preimage, []byte("ENERGYv1-sighash/")...)
	preimage = append(preimage, tid, SIGHASH_ALL_FORKID)
	preimage = append(preimage, ctx.Outpoint.Txid[:]...)
	preimage = appendU32le(preimage, ctx.Outpoint.Vout)
	preimage = append(preimage, entryHash[:]...)
	preimage = appendU64le(preimage, ctx.Value)
	preimage = appendU32le(preimage, ctx.Sequence)
	preimage = append(preimage, ctx.HashOutputs[:]...)
	preimage = appendU32le(preimage, ctx.Locktime)
	preimage = appendU64le(preimage, ctx.ChangeAmount)
	preimage = append(preimage, ctx.ChangePKH[:]...)
	preimage = appendU64le(preimage, param)

	return p.Hash256(preimage), nil
}
