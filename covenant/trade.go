package covenant

import (
	"encoding/binary"
	"fmt"

	"energytrade.dev/settle/crypto"
)

// TradeSettlementRecord is the immutable state of a COV_TYPE_TRADE_SETTLEMENT
// output. Exactly one of confirm, cancel or deadline_refund consumes it.
type TradeSettlementRecord struct {
	Producer            PubKeyHash
	Consumer            PubKeyHash
	Regulators          RegulatorCommittee
	Deadline            uint32
	MinimumEnergyAmount uint64
}

// TradePolicy holds the settlement knobs that are not fixed by the record.
type TradePolicy struct {
	// CancelRequiresMinimumEnergy applies the confirm-side energy minimum to
	// cancel as well.
	CancelRequiresMinimumEnergy bool
}

func DefaultTradePolicy() TradePolicy {
	return TradePolicy{CancelRequiresMinimumEnergy: true}
}

func NewTradeSettlementRecord(
	producer, consumer PubKeyHash,
	regulators RegulatorCommittee,
	deadline uint32,
	minimumEnergyAmount uint64,
) (*TradeSettlementRecord, error) {
	r := &TradeSettlementRecord{
		Producer:            producer,
		Consumer:            consumer,
		Deadline:            deadline,
		MinimumEnergyAmount: minimumEnergyAmount,
	}
	for i, k := range regulators {
		if err := checkCompressedPubKey(k); err != nil {
			return nil, spenderr(ERR_PARSE, fmt.Sprintf("regulator %d: %v", i, err))
		}
		r.Regulators[i] = append(PubKey(nil), k...)
	}
	return r, nil
}

func checkCompressedPubKey(k PubKey) error {
	if len(k) != COMPRESSED_PUBKEY_BYTES {
		return fmt.Errorf("pubkey length %d, want %d", len(k), COMPRESSED_PUBKEY_BYTES)
	}
	if k[0] != 0x02 && k[0] != 0x03 {
		return fmt.Errorf("pubkey prefix 0x%02x not compressed", k[0])
	}
	return nil
}

// CovenantData is producer(20) | consumer(20) | regulators 3x33 | deadline u32le | minimum_energy u64le.
func (r TradeSettlementRecord) CovenantData() []byte {
	b := make([]byte, 0, TRADE_SETTLEMENT_COVENANT_DATA_BYTES)
	b = append(b, r.Producer[:]...)
	b = append(b, r.Consumer[:]...)
	for _, k := range r.Regulators {
		b = append(b, k...)
	}
	b = appendU32le(b, r.Deadline)
	b = appendU64le(b, r.MinimumEnergyAmount)
	return b
}

func (r TradeSettlementRecord) Output(value uint64) TxOutput {
	return TxOutput{
		Value:        value,
		CovenantType: COV_TYPE_TRADE_SETTLEMENT,
		CovenantData: r.CovenantData(),
	}
}

func ParseTradeSettlementCovenantData(covData []byte) (*TradeSettlementRecord, error) {
	if covData == nil {
		return nil, spenderr(ERR_PARSE, "nil TRADE_SETTLEMENT covenant_data")
	}
	if len(covData) != TRADE_SETTLEMENT_COVENANT_DATA_BYTES {
		return nil, spenderr(ERR_PARSE, "TRADE_SETTLEMENT covenant_data length mismatch")
	}
	var producer, consumer PubKeyHash
	copy(producer[:], covData[0:20])
	copy(consumer[:], covData[20:40])
	off := 40
	var regs RegulatorCommittee
	for i := range regs {
		regs[i] = PubKey(covData[off : off+COMPRESSED_PUBKEY_BYTES])
		off += COMPRESSED_PUBKEY_BYTES
	}
	deadline := binary.LittleEndian.Uint32(covData[off : off+4])
	minEnergy := binary.LittleEndian.Uint64(covData[off+4 : off+12])
	return NewTradeSettlementRecord(producer, consumer, regs, deadline, minEnergy)
}

// CooperativeArgs are the arguments of confirm and cancel.
type CooperativeArgs struct {
	ConsumerSig    Sig
	ConsumerPubKey PubKey
	RegulatorSigs  [N_REGULATORS]Sig
	EnergyAmount   uint64
}

type RefundArgs struct {
	ConsumerSig    Sig
	ConsumerPubKey PubKey
}

func (r TradeSettlementRecord) cooperative(
	p crypto.CryptoProvider,
	t Transition,
	entry TxOutput,
	ctx SpendContext,
	args CooperativeArgs,
	beneficiary PubKeyHash,
	enforceMinimum bool,
) error {
	digest, err := SighashDigest(p, t, entry, ctx, args.EnergyAmount)
	if err != nil {
		return err
	}
	if err := VerifyPartySig(p, args.ConsumerSig, args.ConsumerPubKey, r.Consumer, digest); err != nil {
		return err
	}
	if err := VerifyQuorum(p, args.RegulatorSigs, r.Regulators, digest); err != nil {
		return err
	}
	if enforceMinimum && args.EnergyAmount < r.MinimumEnergyAmount {
		return spenderr(ERR_INSUFFICIENT_ENERGY, fmt.Sprintf("energy %d below minimum %d", args.EnergyAmount, r.MinimumEnergyAmount))
	}
	return VerifyOutputCommitment(p, ctx, P2PKHOutput(beneficiary, ctx.Value), false)
}

// Confirm pays the full held value to the producer. Requires the consumer and
// every regulator.
func (r TradeSettlementRecord) Confirm(p crypto.CryptoProvider, entry TxOutput, ctx SpendContext, args CooperativeArgs) error {
	return r.cooperative(p, TransitionConfirm, entry, ctx, args, r.Producer, true)
}

// Cancel refunds the full held value to the consumer under the same quorum.
func (r TradeSettlementRecord) Cancel(p crypto.CryptoProvider, entry TxOutput, ctx SpendContext, args CooperativeArgs, policy TradePolicy) error {
	return r.cooperative(p, TransitionCancel, entry, ctx, args, r.Consumer, policy.CancelRequiresMinimumEnergy)
}

// DeadlineRefund lets the consumer alone reclaim the held value once the
// declared locktime has passed the deadline.
func (r TradeSettlementRecord) DeadlineRefund(p crypto.CryptoProvider, entry TxOutput, ctx SpendContext, args RefundArgs) error {
	digest, err := SighashDigest(p, TransitionDeadlineRefund, entry, ctx, 0)
	if err != nil {
		return err
	}
	if err := VerifyPartySig(p, args.ConsumerSig, args.ConsumerPubKey, r.Consumer, digest); err != nil {
		return err
	}
	if err := CheckDeadline(ctx.Locktime, ctx.Sequence, r.Deadline); err != nil {
		return err
	}
	return VerifyOutputCommitment(p, ctx, P2PKHOutput(r.Consumer, ctx.Value), false)
}
