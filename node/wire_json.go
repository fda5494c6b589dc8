package node

import (
	"encoding/hex"
	"fmt"
	"strings"

	"energytrade.dev/settle/covenant"
)

// JSON shapes shared by the HTTP API and escrow-cli. Byte strings are hex.

type OutputJSON struct {
	Value        uint64 `json:"value"`
	CovenantType uint16 `json:"covenant_type"`
	CovenantData string `json:"covenant_data"`
}

type OutpointJSON struct {
	Txid string `json:"txid"`
	Vout uint32 `json:"vout"`
}

type SettleRequestJSON struct {
	Txid         string       `json:"txid"`
	Vout         uint32       `json:"vout"`
	Transition   string       `json:"transition"`
	Sigs         []string     `json:"sigs"`
	PubKeys      []string     `json:"pubkeys"`
	Param        uint64       `json:"param"`
	Outputs      []OutputJSON `json:"outputs"`
	Locktime     uint32       `json:"locktime"`
	Sequence     uint32       `json:"sequence"`
	ChangeAmount uint64       `json:"change_amount"`
	ChangePKH    string       `json:"change_pkh,omitempty"`
}

func OutputToJSON(o covenant.TxOutput) OutputJSON {
	return OutputJSON{
		Value:        o.Value,
		CovenantType: o.CovenantType,
		CovenantData: hex.EncodeToString(o.CovenantData),
	}
}

func (o OutputJSON) Decode() (covenant.TxOutput, error) {
	data, err := DecodeHex(o.CovenantData)
	if err != nil {
		return covenant.TxOutput{}, fmt.Errorf("covenant_data: %w", err)
	}
	return covenant.TxOutput{Value: o.Value, CovenantType: o.CovenantType, CovenantData: data}, nil
}

func OutpointToJSON(p covenant.Outpoint) OutpointJSON {
	return OutpointJSON{Txid: hex.EncodeToString(p.Txid[:]), Vout: p.Vout}
}

func DecodeOutpoint(txidHex string, vout uint32) (covenant.Outpoint, error) {
	txid, err := DecodeHex32(txidHex)
	if err != nil {
		return covenant.Outpoint{}, fmt.Errorf("txid: %w", err)
	}
	return covenant.Outpoint{Txid: txid, Vout: vout}, nil
}

func (j SettleRequestJSON) Decode() (SettleRequest, error) {
	point, err := DecodeOutpoint(j.Txid, j.Vout)
	if err != nil {
		return SettleRequest{}, err
	}
	req := SettleRequest{
		Outpoint:     point,
		Transition:   covenant.Transition(j.Transition),
		Param:        j.Param,
		Locktime:     j.Locktime,
		Sequence:     j.Sequence,
		ChangeAmount: j.ChangeAmount,
	}
	for i, s := range j.Sigs {
		b, err := DecodeHex(s)
		if err != nil {
			return SettleRequest{}, fmt.Errorf("sigs[%d]: %w", i, err)
		}
		req.Sigs = append(req.Sigs, covenant.Sig(b))
	}
	for i, s := range j.PubKeys {
		b, err := DecodeHex(s)
		if err != nil {
			return SettleRequest{}, fmt.Errorf("pubkeys[%d]: %w", i, err)
		}
		req.PubKeys = append(req.PubKeys, covenant.PubKey(b))
	}
	for i, o := range j.Outputs {
		out, err := o.Decode()
		if err != nil {
			return SettleRequest{}, fmt.Errorf("outputs[%d]: %w", i, err)
		}
		req.Outputs = append(req.Outputs, out)
	}
	if j.ChangePKH != "" {
		b, err := DecodeHex(j.ChangePKH)
		if err != nil {
			return SettleRequest{}, fmt.Errorf("change_pkh: %w", err)
		}
		if len(b) != covenant.PUBKEY_HASH_BYTES {
			return SettleRequest{}, fmt.Errorf("change_pkh must be %d bytes", covenant.PUBKEY_HASH_BYTES)
		}
		copy(req.ChangePKH[:], b)
	}
	return req, nil
}

// DecodeHex accepts an optional 0x prefix and embedded whitespace.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

func DecodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := DecodeHex(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
