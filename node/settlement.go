package node

import (
	"encoding/binary"

	"energytrade.dev/settle/covenant"
	"energytrade.dev/settle/crypto"
)

// SettleRequest is one spend of a stored record. Outputs is the full output
// set of the spend; its commitment is what the signatures cover.
type SettleRequest struct {
	Outpoint     covenant.Outpoint
	Transition   covenant.Transition
	Sigs         []covenant.Sig
	PubKeys      []covenant.PubKey
	Param        uint64
	Outputs      []covenant.TxOutput
	Locktime     uint32
	Sequence     uint32
	ChangeAmount uint64
	ChangePKH    covenant.PubKeyHash
}

// SpendContext derives the authorization context for req against a record
// holding value.
func (req SettleRequest) SpendContext(p crypto.CryptoProvider, value uint64) covenant.SpendContext {
	return covenant.SpendContext{
		Outpoint:     req.Outpoint,
		Value:        value,
		HashOutputs:  covenant.HashOutputs(p, req.Outputs),
		Locktime:     req.Locktime,
		Sequence:     req.Sequence,
		ChangeAmount: req.ChangeAmount,
		ChangePKH:    req.ChangePKH,
	}
}

// SettlementTxid identifies a settlement. Signatures are excluded so the id is
// fixed before anyone signs; a successor record created by the settlement
// lives at (txid, 0).
func SettlementTxid(p crypto.CryptoProvider, req SettleRequest) [32]byte {
	b := make([]byte, 0, 128)
	b = append(b, []byte("ENERGYv1-settle/")...)
	b = append(b, req.Outpoint.Txid[:]...)
	b = binary.LittleEndian.AppendUint32(b, req.Outpoint.Vout)
	b = append(b, covenant.CompactSize(len(req.Transition)).Encode()...)
	b = append(b, req.Transition...)
	b = binary.LittleEndian.AppendUint64(b, req.Param)
	b = binary.LittleEndian.AppendUint32(b, req.Locktime)
	b = binary.LittleEndian.AppendUint32(b, req.Sequence)
	b = binary.LittleEndian.AppendUint64(b, req.ChangeAmount)
	b = append(b, req.ChangePKH[:]...)
	b = append(b, covenant.CompactSize(len(req.Outputs)).Encode()...)
	for _, o := range req.Outputs {
		b = append(b, covenant.TxOutputBytes(o)...)
	}
	return p.SHA3_256(b)
}
