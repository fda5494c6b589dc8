package main

import (
	"encoding/hex"
	"errors"

	"energytrade.dev/settle/covenant"
	"energytrade.dev/settle/crypto"
	"energytrade.dev/settle/node"
)

type Request struct {
	Op string `json:"op"`

	// Record is the output holding the record being spent or parsed.
	Record *node.OutputJSON `json:"record,omitempty"`
	// Spend carries the transition, its arguments and the spend's outputs.
	Spend   *node.SettleRequestJSON `json:"spend,omitempty"`
	Outputs []node.OutputJSON       `json:"outputs,omitempty"`

	CancelRequiresMinimumEnergy *bool `json:"cancel_requires_minimum_energy,omitempty"`

	// sign takes secret_key, or a keystore (inline or keystore_path) plus kek.
	// keystore_wrap also writes the result to keystore_path when set.
	SecretKeyHex string           `json:"secret_key,omitempty"`
	KeyStore     *crypto.KeyStore `json:"keystore,omitempty"`
	KeyStorePath string           `json:"keystore_path,omitempty"`
	KEKHex       string           `json:"kek,omitempty"`
	DigestHex    string           `json:"digest,omitempty"`
}

type Response struct {
	Ok        bool             `json:"ok"`
	Err       string           `json:"err,omitempty"`
	DigestHex string           `json:"digest,omitempty"`
	TxidHex   string           `json:"txid,omitempty"`
	Accept    *bool            `json:"accept,omitempty"`
	Payout    uint64           `json:"payout,omitempty"`
	Successor *node.OutputJSON `json:"successor,omitempty"`
	Record    *RecordJSON      `json:"parsed,omitempty"`
	SigHex    string           `json:"sig,omitempty"`
	PubKeyHex string           `json:"pubkey,omitempty"`
	PKHHex    string           `json:"pkh,omitempty"`
	KeyStore  *crypto.KeyStore `json:"keystore,omitempty"`
}

// RecordJSON is the decoded view of either record kind.
type RecordJSON struct {
	Kind string `json:"kind"`

	Seller          string `json:"seller,omitempty"`
	Buyer           string `json:"buyer,omitempty"`
	UnitPrice       uint64 `json:"unit_price,omitempty"`
	DeliveredEnergy uint64 `json:"delivered_energy,omitempty"`

	Producer            string   `json:"producer,omitempty"`
	Consumer            string   `json:"consumer,omitempty"`
	Regulators          []string `json:"regulators,omitempty"`
	Deadline            uint32   `json:"deadline,omitempty"`
	MinimumEnergyAmount uint64   `json:"minimum_energy_amount,omitempty"`
}

func fail(err error) Response {
	if code := covenant.CodeOf(err); code != "" {
		return Response{Ok: false, Err: string(code)}
	}
	return Response{Ok: false, Err: err.Error()}
}

var (
	errMissingRecord = errors.New("record required")
	errMissingSpend  = errors.New("spend required")
)

func runRequest(p crypto.CryptoProvider, req Request) Response {
	switch req.Op {
	// settlement_txid is the id the node assigns when it commits spend; a
	// deposit successor is created at (txid, 0).
	case "settlement_txid":
		spend, err := decodeSpend(req)
		if err != nil {
			return fail(err)
		}
		txid := node.SettlementTxid(p, spend)
		return Response{Ok: true, TxidHex: hex.EncodeToString(txid[:])}

	case "hash_outputs":
		outs := make([]covenant.TxOutput, 0, len(req.Outputs))
		for _, o := range req.Outputs {
			out, err := o.Decode()
			if err != nil {
				return fail(err)
			}
			outs = append(outs, out)
		}
		h := covenant.HashOutputs(p, outs)
		return Response{Ok: true, DigestHex: hex.EncodeToString(h[:])}

	case "sighash":
		entry, spend, err := decodeRecordAndSpend(req)
		if err != nil {
			return fail(err)
		}
		d, err := covenant.SighashDigest(p, spend.Transition, entry, spend.SpendContext(p, entry.Value), spend.Param)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, DigestHex: hex.EncodeToString(d[:])}

	case "evaluate":
		entry, spend, err := decodeRecordAndSpend(req)
		if err != nil {
			return fail(err)
		}
		policy := covenant.DefaultTradePolicy()
		if req.CancelRequiresMinimumEnergy != nil {
			policy.CancelRequiresMinimumEnergy = *req.CancelRequiresMinimumEnergy
		}
		v := covenant.Evaluate(p, entry, covenant.SpendRequest{
			Transition: spend.Transition,
			Sigs:       spend.Sigs,
			PubKeys:    spend.PubKeys,
			Param:      spend.Param,
			Ctx:        spend.SpendContext(p, entry.Value),
		}, policy)
		accept := v.Accept
		resp := Response{Ok: true, Accept: &accept, Payout: v.Payout}
		if v.Err != nil {
			resp.Err = string(v.Err.Code)
		}
		if v.Successor != nil {
			succ := node.OutputToJSON(v.Successor.Output(entry.Value))
			resp.Successor = &succ
		}
		return resp

	case "parse_record":
		if req.Record == nil {
			return fail(errMissingRecord)
		}
		entry, err := req.Record.Decode()
		if err != nil {
			return fail(err)
		}
		if err := covenant.ValidateRecordOutput(entry); err != nil {
			return fail(err)
		}
		rec, err := describeRecord(entry)
		if err != nil {
			return fail(err)
		}
		return Response{Ok: true, Record: rec}

	case "sign":
		kp, err := signingKey(req)
		if err != nil {
			return fail(err)
		}
		digest, err := node.DecodeHex32(req.DigestHex)
		if err != nil {
			return fail(err)
		}
		sig := append(kp.SignDigest32(digest), covenant.SIGHASH_ALL_FORKID)
		pub := kp.PubkeyBytes()
		pkh := p.Hash160(pub)
		return Response{
			Ok:        true,
			SigHex:    hex.EncodeToString(sig),
			PubKeyHex: hex.EncodeToString(pub),
			PKHHex:    hex.EncodeToString(pkh[:]),
		}

	case "keystore_wrap":
		secret, err := node.DecodeHex(req.SecretKeyHex)
		if err != nil {
			return fail(err)
		}
		kp, err := crypto.KeypairFromBytes(secret)
		if err != nil {
			return fail(err)
		}
		kek, err := node.DecodeHex(req.KEKHex)
		if err != nil {
			return fail(err)
		}
		ks, err := crypto.WrapKeypair(p, kp, kek)
		if err != nil {
			return fail(err)
		}
		if req.KeyStorePath != "" {
			if err := crypto.WriteKeyStore(req.KeyStorePath, ks); err != nil {
				return fail(err)
			}
		}
		return Response{Ok: true, KeyStore: ks, PKHHex: ks.PKHHex, PubKeyHex: ks.PubkeyHex}

	default:
		return Response{Ok: false, Err: "unknown op"}
	}
}

func signingKey(req Request) (*crypto.Keypair, error) {
	ks := req.KeyStore
	if ks == nil && req.KeyStorePath != "" {
		loaded, err := crypto.ReadKeyStore(req.KeyStorePath)
		if err != nil {
			return nil, err
		}
		ks = loaded
	}
	if ks != nil {
		kek, err := node.DecodeHex(req.KEKHex)
		if err != nil {
			return nil, err
		}
		return ks.Unwrap(kek)
	}
	secret, err := node.DecodeHex(req.SecretKeyHex)
	if err != nil {
		return nil, err
	}
	return crypto.KeypairFromBytes(secret)
}

func decodeSpend(req Request) (node.SettleRequest, error) {
	if req.Spend == nil {
		return node.SettleRequest{}, errMissingSpend
	}
	return req.Spend.Decode()
}

func decodeRecordAndSpend(req Request) (covenant.TxOutput, node.SettleRequest, error) {
	if req.Record == nil {
		return covenant.TxOutput{}, node.SettleRequest{}, errMissingRecord
	}
	entry, err := req.Record.Decode()
	if err != nil {
		return covenant.TxOutput{}, node.SettleRequest{}, err
	}
	spend, err := decodeSpend(req)
	return entry, spend, err
}

func describeRecord(o covenant.TxOutput) (*RecordJSON, error) {
	switch o.CovenantType {
	case covenant.COV_TYPE_ENERGY_ESCROW:
		r, err := covenant.ParseEscrowCovenantData(o.CovenantData)
		if err != nil {
			return nil, err
		}
		return &RecordJSON{
			Kind:            "energy_escrow",
			Seller:          hex.EncodeToString(r.Seller[:]),
			Buyer:           hex.EncodeToString(r.Buyer[:]),
			UnitPrice:       r.UnitPrice,
			DeliveredEnergy: r.DeliveredEnergy,
		}, nil
	default:
		r, err := covenant.ParseTradeSettlementCovenantData(o.CovenantData)
		if err != nil {
			return nil, err
		}
		out := &RecordJSON{
			Kind:                "trade_settlement",
			Producer:            hex.EncodeToString(r.Producer[:]),
			Consumer:            hex.EncodeToString(r.Consumer[:]),
			Deadline:            r.Deadline,
			MinimumEnergyAmount: r.MinimumEnergyAmount,
		}
		for _, k := range r.Regulators {
			out.Regulators = append(out.Regulators, hex.EncodeToString(k))
		}
		return out, nil
	}
}
