package covenant

import (
	"encoding/binary"

	"energytrade.dev/settle/crypto"
)

// EscrowRecord is the state committed by a COV_TYPE_ENERGY_ESCROW output.
// DeliveredEnergy is the only field a transition changes.
type EscrowRecord struct {
	Seller          PubKeyHash
	Buyer           PubKeyHash
	UnitPrice       uint64
	DeliveredEnergy uint64
}

// NewEscrowRecord returns a fresh record with no delivered energy.
func NewEscrowRecord(seller, buyer PubKeyHash, unitPrice uint64) EscrowRecord {
	return EscrowRecord{Seller: seller, Buyer: buyer, UnitPrice: unitPrice}
}

// CovenantData is seller(20) | buyer(20) | unit_price u64le | delivered_energy u64le.
func (r EscrowRecord) CovenantData() []byte {
	b := make([]byte, 0, ESCROW_COVENANT_DATA_BYTES)
	b = append(b, r.Seller[:]...)
	b = append(b, r.Buyer[:]...)
	b = appendU64le(b, r.UnitPrice)
	b = appendU64le(b, r.DeliveredEnergy)
	return b
}

// Output places the record state in an output holding value.
func (r EscrowRecord) Output(value uint64) TxOutput {
	return TxOutput{
		Value:        value,
		CovenantType: COV_TYPE_ENERGY_ESCROW,
		CovenantData: r.CovenantData(),
	}
}

func ParseEscrowCovenantData(covData []byte) (*EscrowRecord, error) {
	if covData == nil {
		return nil, spenderr(ERR_PARSE, "nil ENERGY_ESCROW covenant_data")
	}
	if len(covData) != ESCROW_COVENANT_DATA_BYTES {
		return nil, spenderr(ERR_PARSE, "ENERGY_ESCROW covenant_data length mismatch")
	}
	var r EscrowRecord
	copy(r.Seller[:], covData[0:20])
	copy(r.Buyer[:], covData[20:40])
	r.UnitPrice = binary.LittleEndian.Uint64(covData[40:48])
	r.DeliveredEnergy = binary.LittleEndian.Uint64(covData[48:56])
	return &r, nil
}

type DepositArgs struct {
	SellerSig    Sig
	SellerPubKey PubKey
	EnergyDelta  uint64
}

type PurchaseArgs struct {
	BuyerSig    Sig
	BuyerPubKey PubKey
}

// Deposit authorizes the seller to add delivered energy. The only valid
// successor output is this record with the new total and the same held value.
func (r EscrowRecord) Deposit(p crypto.CryptoProvider, entry TxOutput, ctx SpendContext, args DepositArgs) (EscrowRecord, error) {
	digest, err := SighashDigest(p, TransitionDeposit, entry, ctx, args.EnergyDelta)
	if err != nil {
		return EscrowRecord{}, err
	}
	if err := VerifyPartySig(p, args.SellerSig, args.SellerPubKey, r.Seller, digest); err != nil {
		return EscrowRecord{}, err
	}

	next := r
	next.DeliveredEnergy, err = addU64(r.DeliveredEnergy, args.EnergyDelta)
	if err != nil {
		return EscrowRecord{}, err
	}

	if err := VerifyOutputCommitment(p, ctx, next.Output(ctx.Value), false); err != nil {
		return EscrowRecord{}, err
	}
	return next, nil
}

// Payout is DeliveredEnergy * UnitPrice.
func (r EscrowRecord) Payout() (uint64, error) {
	return mulU64(r.DeliveredEnergy, r.UnitPrice)
}

// Purchase authorizes the buyer to settle: the seller receives the payout and
// any declared change returns to the spender. The record is consumed.
func (r EscrowRecord) Purchase(p crypto.CryptoProvider, entry TxOutput, ctx SpendContext, args PurchaseArgs) (uint64, error) {
	digest, err := SighashDigest(p, TransitionPurchase, entry, ctx, 0)
	if err != nil {
		return 0, err
	}
	if err := VerifyPartySig(p, args.BuyerSig, args.BuyerPubKey, r.Buyer, digest); err != nil {
		return 0, err
	}
	payout, err := r.Payout()
	if err != nil {
		return 0, err
	}
	if err := VerifyOutputCommitment(p, ctx, P2PKHOutput(r.Seller, payout), true); err != nil {
		return 0, err
	}
	return payout, nil
}
