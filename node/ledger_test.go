package node

import (
	"io"
	"sync"
	"testing"

	"energytrade.dev/settle/covenant"
	"energytrade.dev/settle/crypto"
	"energytrade.dev/settle/node/store"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testProvider = crypto.StdProvider{}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := store.Open(t.TempDir(), "testnet")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLedger(db, testProvider, covenant.DefaultTradePolicy(), quietLogger())
}

func mustKeypair(t *testing.T) *crypto.Keypair {
	t.Helper()
	kp, err := crypto.NewKeypair()
	require.NoError(t, err)
	return kp
}

func pkhOf(kp *crypto.Keypair) covenant.PubKeyHash {
	return covenant.PubKeyHash(testProvider.Hash160(kp.PubkeyBytes()))
}

func fundingPoint(tag byte) covenant.Outpoint {
	var p covenant.Outpoint
	p.Txid[0] = 0xf0
	p.Txid[1] = tag
	return p
}

// sign fills req.Sigs and req.PubKeys[0]; signers[0] is the party whose
// pubkey is revealed.
func sign(t *testing.T, entry covenant.TxOutput, req *SettleRequest, signers ...*crypto.Keypair) {
	t.Helper()
	ctx := req.SpendContext(testProvider, entry.Value)
	d, err := covenant.SighashDigest(testProvider, req.Transition, entry, ctx, req.Param)
	require.NoError(t, err)
	req.Sigs = nil
	for _, kp := range signers {
		req.Sigs = append(req.Sigs, append(covenant.Sig(kp.SignDigest32(d)), covenant.SIGHASH_ALL_FORKID))
	}
	req.PubKeys = []covenant.PubKey{signers[0].PubkeyBytes()}
}

type tradeParties struct {
	producer, consumer *crypto.Keypair
	regs               []*crypto.Keypair
	rec                *covenant.TradeSettlementRecord
}

func newTradeParties(t *testing.T, deadline uint32, minEnergy uint64) *tradeParties {
	t.Helper()
	tp := &tradeParties{producer: mustKeypair(t), consumer: mustKeypair(t)}
	var committee covenant.RegulatorCommittee
	for i := range committee {
		kp := mustKeypair(t)
		tp.regs = append(tp.regs, kp)
		committee[i] = kp.PubkeyBytes()
	}
	rec, err := covenant.NewTradeSettlementRecord(pkhOf(tp.producer), pkhOf(tp.consumer), committee, deadline, minEnergy)
	require.NoError(t, err)
	tp.rec = rec
	return tp
}

func (tp *tradeParties) quorum() []*crypto.Keypair {
	return append([]*crypto.Keypair{tp.consumer}, tp.regs...)
}

func (tp *tradeParties) cooperative(t *testing.T, point covenant.Outpoint, entry covenant.TxOutput, tr covenant.Transition, to covenant.PubKeyHash, energy uint64) SettleRequest {
	t.Helper()
	req := SettleRequest{
		Outpoint:   point,
		Transition: tr,
		Param:      energy,
		Outputs:    []covenant.TxOutput{covenant.P2PKHOutput(to, entry.Value)},
		Sequence:   covenant.SEQUENCE_FINAL,
	}
	sign(t, entry, &req, tp.quorum()...)
	return req
}

func TestLedger_ConfirmThenCancelIsDoubleSpend(t *testing.T) {
	l := newTestLedger(t)
	tp := newTradeParties(t, 1_000, 100)
	point := fundingPoint(1)
	entry := tp.rec.Output(5_000)
	require.NoError(t, l.Fund(point, entry))

	confirm := tp.cooperative(t, point, entry, covenant.TransitionConfirm, tp.rec.Producer, 150)
	cancel := tp.cooperative(t, point, entry, covenant.TransitionCancel, tp.rec.Consumer, 150)

	st, err := l.Settle(confirm)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), st.Payout)
	require.Empty(t, st.Created)
	require.Equal(t, SettlementTxid(testProvider, confirm), st.Txid)

	_, err = l.Settle(cancel)
	require.Equal(t, covenant.ERR_ALREADY_SPENT, covenant.CodeOf(err))
	_, err = l.Settle(confirm)
	require.Equal(t, covenant.ERR_ALREADY_SPENT, covenant.CodeOf(err))

	live, receipt, err := l.Record(point)
	require.NoError(t, err)
	require.Nil(t, live)
	require.Equal(t, covenant.TransitionConfirm, receipt.Transition)
	require.Equal(t, st.Txid, receipt.SettlementTxid)
}

func TestLedger_ConcurrentSpendsSettleOnce(t *testing.T) {
	l := newTestLedger(t)
	tp := newTradeParties(t, 1_000, 0)
	point := fundingPoint(2)
	entry := tp.rec.Output(10)
	require.NoError(t, l.Fund(point, entry))

	reqs := []SettleRequest{
		tp.cooperative(t, point, entry, covenant.TransitionConfirm, tp.rec.Producer, 0),
		tp.cooperative(t, point, entry, covenant.TransitionCancel, tp.rec.Consumer, 0),
	}
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Settle(reqs[i%len(reqs)])
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.Equal(t, covenant.ERR_ALREADY_SPENT, covenant.CodeOf(err))
	}
	require.Equal(t, 1, accepted)
}

func TestLedger_RejectionLeavesRecordLive(t *testing.T) {
	l := newTestLedger(t)
	tp := newTradeParties(t, 1_000, 100)
	point := fundingPoint(3)
	entry := tp.rec.Output(5_000)
	require.NoError(t, l.Fund(point, entry))

	short := tp.cooperative(t, point, entry, covenant.TransitionConfirm, tp.rec.Producer, 99)
	_, err := l.Settle(short)
	require.Equal(t, covenant.ERR_INSUFFICIENT_ENERGY, covenant.CodeOf(err))

	stolen := tp.cooperative(t, point, entry, covenant.TransitionConfirm, covenant.PubKeyHash{0xee}, 100)
	_, err = l.Settle(stolen)
	require.Equal(t, covenant.ERR_OUTPUT_MISMATCH, covenant.CodeOf(err))

	live, _, err := l.Record(point)
	require.NoError(t, err)
	require.NotNil(t, live)

	_, err = l.Settle(tp.cooperative(t, point, entry, covenant.TransitionConfirm, tp.rec.Producer, 100))
	require.NoError(t, err)
}

func TestLedger_MissingRecord(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Settle(SettleRequest{Outpoint: fundingPoint(9), Transition: covenant.TransitionConfirm})
	require.Equal(t, covenant.ERR_MISSING_RECORD, covenant.CodeOf(err))
	_, _, err = l.Record(fundingPoint(9))
	require.Equal(t, covenant.ERR_MISSING_RECORD, covenant.CodeOf(err))
}

func TestLedger_DeadlineRefundWaitsForClock(t *testing.T) {
	l := newTestLedger(t)
	tp := newTradeParties(t, 50, 0)
	point := fundingPoint(4)
	entry := tp.rec.Output(700)
	require.NoError(t, l.Fund(point, entry))
	require.NoError(t, l.AdvanceClock(10))

	req := SettleRequest{
		Outpoint:   point,
		Transition: covenant.TransitionDeadlineRefund,
		Outputs:    []covenant.TxOutput{covenant.P2PKHOutput(tp.rec.Consumer, entry.Value)},
		Locktime:   50,
		Sequence:   0,
	}
	sign(t, entry, &req, tp.consumer)

	_, err := l.Settle(req)
	require.Equal(t, covenant.ERR_LOCKTIME_NOT_FINAL, covenant.CodeOf(err))

	require.NoError(t, l.AdvanceClock(50))
	st, err := l.Settle(req)
	require.NoError(t, err)
	require.Equal(t, uint64(700), st.Payout)

	require.Error(t, l.AdvanceClock(49))
	require.Equal(t, uint32(50), l.ClockHeight())
}

func TestLedger_DeadlineRefundWithFinalSequence(t *testing.T) {
	l := newTestLedger(t)
	tp := newTradeParties(t, 50, 0)
	point := fundingPoint(5)
	entry := tp.rec.Output(700)
	require.NoError(t, l.Fund(point, entry))

	req := SettleRequest{
		Outpoint:   point,
		Transition: covenant.TransitionDeadlineRefund,
		Outputs:    []covenant.TxOutput{covenant.P2PKHOutput(tp.rec.Consumer, entry.Value)},
		Locktime:   60,
		Sequence:   covenant.SEQUENCE_FINAL,
	}
	sign(t, entry, &req, tp.consumer)
	_, err := l.Settle(req)
	require.Equal(t, covenant.ERR_TIMELOCK_DISABLED, covenant.CodeOf(err))
}

func TestLedger_DepositChainThenPurchase(t *testing.T) {
	l := newTestLedger(t)
	seller, buyer := mustKeypair(t), mustKeypair(t)
	rec := covenant.NewEscrowRecord(pkhOf(seller), pkhOf(buyer), 25)
	point := fundingPoint(6)
	entry := rec.Output(207)
	require.NoError(t, l.Fund(point, entry))

	for _, delta := range []uint64{5, 3} {
		next := rec
		next.DeliveredEnergy += delta
		req := SettleRequest{
			Outpoint:   point,
			Transition: covenant.TransitionDeposit,
			Param:      delta,
			Outputs:    []covenant.TxOutput{next.Output(entry.Value)},
			Sequence:   covenant.SEQUENCE_FINAL,
		}
		sign(t, entry, &req, seller)
		st, err := l.Settle(req)
		require.NoError(t, err)
		require.Len(t, st.Created, 1)
		require.Equal(t, next, *st.Successor)

		stored, _, err := l.Record(st.Created[0])
		require.NoError(t, err)
		require.Equal(t, next.Output(entry.Value), stored.Output)

		point, entry, rec = st.Created[0], stored.Output, next
	}
	require.Equal(t, uint64(8), rec.DeliveredEnergy)

	req := SettleRequest{
		Outpoint:     point,
		Transition:   covenant.TransitionPurchase,
		Outputs:      []covenant.TxOutput{covenant.P2PKHOutput(rec.Seller, 200), covenant.P2PKHOutput(pkhOf(buyer), 7)},
		Sequence:     covenant.SEQUENCE_FINAL,
		ChangeAmount: 7,
		ChangePKH:    pkhOf(buyer),
	}
	sign(t, entry, &req, buyer)
	st, err := l.Settle(req)
	require.NoError(t, err)
	require.Equal(t, uint64(200), st.Payout)

	_, err = l.Settle(req)
	require.Equal(t, covenant.ERR_ALREADY_SPENT, covenant.CodeOf(err))
}

func TestLedger_FundRejects(t *testing.T) {
	l := newTestLedger(t)
	tp := newTradeParties(t, 1_000, 0)

	err := l.Fund(fundingPoint(7), tp.rec.Output(0))
	require.Equal(t, covenant.ERR_PARSE, covenant.CodeOf(err))

	err = l.Fund(fundingPoint(7), covenant.P2PKHOutput(tp.rec.Producer, 10))
	require.Equal(t, covenant.ERR_PARSE, covenant.CodeOf(err))

	escrow := covenant.NewEscrowRecord(covenant.PubKeyHash{1}, covenant.PubKeyHash{2}, 1)
	credited := escrow
	credited.DeliveredEnergy = 1_000_000
	err = l.Fund(fundingPoint(7), credited.Output(100))
	require.Equal(t, covenant.ERR_PARSE, covenant.CodeOf(err))
	_, _, err = l.Record(fundingPoint(7))
	require.Equal(t, covenant.ERR_MISSING_RECORD, covenant.CodeOf(err))

	require.NoError(t, l.Fund(fundingPoint(7), escrow.Output(1)))
	err = l.Fund(fundingPoint(7), escrow.Output(1))
	require.Equal(t, covenant.ERR_ALREADY_SPENT, covenant.CodeOf(err))
}

func TestLedger_PurchaseMustConserveValue(t *testing.T) {
	l := newTestLedger(t)
	seller, buyer := mustKeypair(t), mustKeypair(t)
	rec := covenant.NewEscrowRecord(pkhOf(seller), pkhOf(buyer), 1_000)
	point := fundingPoint(8)
	entry := rec.Output(10)
	require.NoError(t, l.Fund(point, entry))

	next := rec
	next.DeliveredEnergy = 5
	deposit := SettleRequest{
		Outpoint:   point,
		Transition: covenant.TransitionDeposit,
		Param:      5,
		Outputs:    []covenant.TxOutput{next.Output(entry.Value)},
		Sequence:   covenant.SEQUENCE_FINAL,
	}
	sign(t, entry, &deposit, seller)
	st, err := l.Settle(deposit)
	require.NoError(t, err)
	point, entry = st.Created[0], next.Output(entry.Value)

	purchase := func(change uint64) SettleRequest {
		outs := []covenant.TxOutput{covenant.P2PKHOutput(rec.Seller, 5_000)}
		if change > 0 {
			outs = append(outs, covenant.P2PKHOutput(pkhOf(buyer), change))
		}
		req := SettleRequest{
			Outpoint:     point,
			Transition:   covenant.TransitionPurchase,
			Outputs:      outs,
			Sequence:     covenant.SEQUENCE_FINAL,
			ChangeAmount: change,
			ChangePKH:    pkhOf(buyer),
		}
		sign(t, entry, &req, buyer)
		return req
	}

	// Payout 5000 out of a record holding 10.
	for _, change := range []uint64{0, 1_000_000} {
		_, err = l.Settle(purchase(change))
		require.Equal(t, covenant.ERR_VALUE_CONSERVATION, covenant.CodeOf(err))
	}
	live, _, err := l.Record(point)
	require.NoError(t, err)
	require.NotNil(t, live)

	// Underpaid change leaves value unaccounted for.
	small := covenant.NewEscrowRecord(pkhOf(seller), pkhOf(buyer), 2)
	smallEntry := small.Output(100)
	require.NoError(t, l.Fund(fundingPoint(9), smallEntry))
	req := SettleRequest{
		Outpoint:     fundingPoint(9),
		Transition:   covenant.TransitionPurchase,
		Outputs:      []covenant.TxOutput{covenant.P2PKHOutput(small.Seller, 0), covenant.P2PKHOutput(pkhOf(buyer), 99)},
		Sequence:     covenant.SEQUENCE_FINAL,
		ChangeAmount: 99,
		ChangePKH:    pkhOf(buyer),
	}
	sign(t, smallEntry, &req, buyer)
	_, err = l.Settle(req)
	require.Equal(t, covenant.ERR_VALUE_CONSERVATION, covenant.CodeOf(err))

	req.Outputs[1] = covenant.P2PKHOutput(pkhOf(buyer), 100)
	req.ChangeAmount = 100
	sign(t, smallEntry, &req, buyer)
	st, err = l.Settle(req)
	require.NoError(t, err)
	require.Equal(t, uint64(0), st.Payout)
}
