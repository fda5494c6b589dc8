package covenant

import (
	"testing"

	"energytrade.dev/settle/crypto"
)

var testProvider = crypto.StdProvider{}

func mustErrCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	code := CodeOf(err)
	if code == "" {
		t.Fatalf("expected *SpendError, got %T (%v)", err, err)
	}
	return code
}

func mustKeypair(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return kp
}

func identityOf(kp *crypto.Keypair) PubKeyHash {
	return PubKeyHash(testProvider.Hash160(kp.PubkeyBytes()))
}

func signWith(kp *crypto.Keypair, digest [32]byte) Sig {
	return append(Sig(kp.SignDigest32(digest)), SIGHASH_ALL_FORKID)
}

func mustDigest(t *testing.T, tr Transition, entry TxOutput, ctx SpendContext, param uint64) [32]byte {
	t.Helper()
	d, err := SighashDigest(testProvider, tr, entry, ctx, param)
	if err != nil {
		t.Fatalf("SighashDigest: %v", err)
	}
	return d
}

func testOutpoint(tag byte) Outpoint {
	var op Outpoint
	op.Txid[0] = tag
	op.Txid[31] = 0xee
	op.Vout = uint32(tag)
	return op
}

// spendContextFor builds a context whose output commitment is exactly outs.
func spendContextFor(entry TxOutput, outs []TxOutput) SpendContext {
	return SpendContext{
		Outpoint:    testOutpoint(0x01),
		Value:       entry.Value,
		HashOutputs: HashOutputs(testProvider, outs),
		Sequence:    SEQUENCE_FINAL,
	}
}

type tradeFixture struct {
	producer *crypto.Keypair
	consumer *crypto.Keypair
	regs     [N_REGULATORS]*crypto.Keypair
	rec      *TradeSettlementRecord
	entry    TxOutput
}

func newTradeFixture(t *testing.T, deadline uint32, minEnergy uint64) *tradeFixture {
	t.Helper()
	f := &tradeFixture{
		producer: mustKeypair(t),
		consumer: mustKeypair(t),
	}
	var committee RegulatorCommittee
	for i := range f.regs {
		f.regs[i] = mustKeypair(t)
		committee[i] = f.regs[i].PubkeyBytes()
	}
	rec, err := NewTradeSettlementRecord(identityOf(f.producer), identityOf(f.consumer), committee, deadline, minEnergy)
	if err != nil {
		t.Fatalf("NewTradeSettlementRecord: %v", err)
	}
	f.rec = rec
	f.entry = rec.Output(5_000)
	return f
}

func (f *tradeFixture) payTo(pkh PubKeyHash) SpendContext {
	return spendContextFor(f.entry, []TxOutput{P2PKHOutput(pkh, f.entry.Value)})
}

func (f *tradeFixture) coopArgs(t *testing.T, tr Transition, ctx SpendContext, energy uint64) CooperativeArgs {
	t.Helper()
	d := mustDigest(t, tr, f.entry, ctx, energy)
	args := CooperativeArgs{
		ConsumerSig:    signWith(f.consumer, d),
		ConsumerPubKey: f.consumer.PubkeyBytes(),
		EnergyAmount:   energy,
	}
	for i, kp := range f.regs {
		args.RegulatorSigs[i] = signWith(kp, d)
	}
	return args
}

func (f *tradeFixture) refundArgs(t *testing.T, ctx SpendContext) RefundArgs {
	t.Helper()
	d := mustDigest(t, TransitionDeadlineRefund, f.entry, ctx, 0)
	return RefundArgs{
		ConsumerSig:    signWith(f.consumer, d),
		ConsumerPubKey: f.consumer.PubkeyBytes(),
	}
}

type escrowFixture struct {
	seller *crypto.Keypair
	buyer  *crypto.Keypair
	rec    EscrowRecord
	entry  TxOutput
}

func newEscrowFixture(t *testing.T, unitPrice, delivered uint64) *escrowFixture {
	t.Helper()
	f := &escrowFixture{seller: mustKeypair(t), buyer: mustKeypair(t)}
	f.rec = NewEscrowRecord(identityOf(f.seller), identityOf(f.buyer), unitPrice)
	f.rec.DeliveredEnergy = delivered
	f.entry = f.rec.Output(1)
	return f
}

func (f *escrowFixture) depositArgs(t *testing.T, ctx SpendContext, delta uint64) DepositArgs {
	t.Helper()
	d := mustDigest(t, TransitionDeposit, f.entry, ctx, delta)
	return DepositArgs{
		SellerSig:    signWith(f.seller, d),
		SellerPubKey: f.seller.PubkeyBytes(),
		EnergyDelta:  delta,
	}
}

func (f *escrowFixture) purchaseArgs(t *testing.T, ctx SpendContext) PurchaseArgs {
	t.Helper()
	d := mustDigest(t, TransitionPurchase, f.entry, ctx, 0)
	return PurchaseArgs{
		BuyerSig:    signWith(f.buyer, d),
		BuyerPubKey: f.buyer.PubkeyBytes(),
	}
}
