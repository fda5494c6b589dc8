package covenant

import (
	"encoding/binary"

	"energytrade.dev/settle/crypto"
)

type Outpoint struct {
	Txid [32]byte
	Vout uint32
}

type TxOutput struct {
	Value        uint64
	CovenantType uint16
	CovenantData []byte
}

// TxOutputBytes is the canonical layout hashed into output commitments:
// value u64le | covenant_type u16le | CompactSize(len) | covenant_data.
func TxOutputBytes(o TxOutput) []byte {
	out := make([]byte, 0, 8+2+9+len(o.CovenantData))
	out = appendU64le(out, o.Value)
	out = appendU16le(out, o.CovenantType)
	out = append(out, CompactSize(len(o.CovenantData)).Encode()...)
	out = append(out, o.CovenantData...)
	return out
}

// ParseTxOutput decodes one output and reports the number of bytes consumed.
func ParseTxOutput(b []byte) (TxOutput, int, error) {
	if len(b) < 8+2+1 {
		return TxOutput{}, 0, spenderr(ERR_PARSE, "output truncated")
	}
	value := binary.LittleEndian.Uint64(b[0:8])
	covType := binary.LittleEndian.Uint16(b[8:10])
	n, used, err := DecodeCompactSize(b[10:])
	if err != nil {
		return TxOutput{}, 0, err
	}
	off := 10 + used
	if uint64(n) > uint64(len(b)-off) {
		return TxOutput{}, 0, spenderr(ERR_PARSE, "output covenant_data truncated")
	}
	end := off + int(n)
	return TxOutput{
		Value:        value,
		CovenantType: covType,
		CovenantData: append([]byte(nil), b[off:end]...),
	}, end, nil
}

// P2PKHOutput pays amount to the holder of the key behind pkh.
func P2PKHOutput(pkh PubKeyHash, amount uint64) TxOutput {
	return TxOutput{
		Value:        amount,
		CovenantType: COV_TYPE_P2PKH,
		CovenantData: append([]byte(nil), pkh[:]...),
	}
}

// HashOutputs commits to an ordered output set: hash256 of the concatenated
// canonical encodings.
func HashOutputs(p crypto.CryptoProvider, outs []TxOutput) [32]byte {
	buf := make([]byte, 0, 64*len(outs))
	for _, o := range outs {
		buf = append(buf, TxOutputBytes(o)...)
	}
	return p.Hash256(buf)
}
