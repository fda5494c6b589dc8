package covenant

import (
	"errors"
	"fmt"

	"energytrade.dev/settle/crypto"
)

// SpendRequest is one transition call against a record.
//
// Argument layout by transition:
//   - deposit, purchase: Sigs[0]/PubKeys[0] are the seller/buyer; Param is the energy delta (deposit only).
//   - confirm, cancel: Sigs[0] is the consumer, Sigs[1:1+N_REGULATORS] the regulators in committee order;
//     PubKeys[0] is the consumer; Param is the energy amount.
//   - deadline_refund: Sigs[0]/PubKeys[0] are the consumer.
type SpendRequest struct {
	Transition Transition
	Sigs       []Sig
	PubKeys    []PubKey
	Param      uint64
	Ctx        SpendContext
}

// Verdict is the accept/reject result of Evaluate.
type Verdict struct {
	Accept bool
	Err    *SpendError
	// Successor is set for an accepted deposit.
	Successor *EscrowRecord
	// Payout is the amount disbursed to the non-spending party, when any.
	Payout uint64
}

func reject(err error) Verdict {
	var se *SpendError
	if !errors.As(err, &se) || se == nil {
		se = &SpendError{Code: ERR_PARSE, Msg: err.Error()}
	}
	return Verdict{Accept: false, Err: se}
}

// ValidateRecordOutput checks that o is a well-formed spendable record.
func ValidateRecordOutput(o TxOutput) error {
	switch o.CovenantType {
	case COV_TYPE_ENERGY_ESCROW:
		_, err := ParseEscrowCovenantData(o.CovenantData)
		return err
	case COV_TYPE_TRADE_SETTLEMENT:
		if o.Value == 0 {
			return spenderr(ERR_PARSE, "TRADE_SETTLEMENT value must be > 0")
		}
		_, err := ParseTradeSettlementCovenantData(o.CovenantData)
		return err
	case COV_TYPE_P2PKH:
		return spenderr(ERR_PARSE, "P2PKH outputs are not settlement records")
	default:
		return spenderr(ERR_PARSE, fmt.Sprintf("unknown covenant_type 0x%04x", o.CovenantType))
	}
}

// ValidateFundingOutput checks a record at creation. Escrow records start
// with no delivered energy; only a seller-signed deposit credits energy.
func ValidateFundingOutput(o TxOutput) error {
	if err := ValidateRecordOutput(o); err != nil {
		return err
	}
	if o.CovenantType != COV_TYPE_ENERGY_ESCROW {
		return nil
	}
	rec, err := ParseEscrowCovenantData(o.CovenantData)
	if err != nil {
		return err
	}
	if rec.DeliveredEnergy != 0 {
		return spenderr(ERR_PARSE, "new ENERGY_ESCROW record must have delivered_energy 0")
	}
	return nil
}

func expectArity(req SpendRequest, sigs, pubs int) error {
	if len(req.Sigs) != sigs || len(req.PubKeys) != pubs {
		return spenderr(ERR_PARSE, fmt.Sprintf("%s expects %d sigs and %d pubkeys, got %d and %d",
			req.Transition, sigs, pubs, len(req.Sigs), len(req.PubKeys)))
	}
	return nil
}

// Evaluate runs the transition named by req against the record held in entry.
// It is a pure function of its arguments.
func Evaluate(p crypto.CryptoProvider, entry TxOutput, req SpendRequest, policy TradePolicy) Verdict {
	if req.Ctx.Value != entry.Value {
		return reject(spenderr(ERR_PARSE, "declared value does not match record value"))
	}
	switch entry.CovenantType {
	case COV_TYPE_ENERGY_ESCROW:
		return evaluateEscrow(p, entry, req)
	case COV_TYPE_TRADE_SETTLEMENT:
		return evaluateTrade(p, entry, req, policy)
	default:
		return reject(spenderr(ERR_PARSE, fmt.Sprintf("covenant_type 0x%04x is not a settlement record", entry.CovenantType)))
	}
}

func evaluateEscrow(p crypto.CryptoProvider, entry TxOutput, req SpendRequest) Verdict {
	rec, err := ParseEscrowCovenantData(entry.CovenantData)
	if err != nil {
		return reject(err)
	}
	switch req.Transition {
	case TransitionDeposit:
		if err := expectArity(req, 1, 1); err != nil {
			return reject(err)
		}
		next, err := rec.Deposit(p, entry, req.Ctx, DepositArgs{
			SellerSig:    req.Sigs[0],
			SellerPubKey: req.PubKeys[0],
			EnergyDelta:  req.Param,
		})
		if err != nil {
			return reject(err)
		}
		return Verdict{Accept: true, Successor: &next}
	case TransitionPurchase:
		if err := expectArity(req, 1, 1); err != nil {
			return reject(err)
		}
		payout, err := rec.Purchase(p, entry, req.Ctx, PurchaseArgs{
			BuyerSig:    req.Sigs[0],
			BuyerPubKey: req.PubKeys[0],
		})
		if err != nil {
			return reject(err)
		}
		return Verdict{Accept: true, Payout: payout}
	default:
		return reject(spenderr(ERR_UNKNOWN_TRANSITION, fmt.Sprintf("%q not valid for ENERGY_ESCROW", req.Transition)))
	}
}

func evaluateTrade(p crypto.CryptoProvider, entry TxOutput, req SpendRequest, policy TradePolicy) Verdict {
	rec, err := ParseTradeSettlementCovenantData(entry.CovenantData)
	if err != nil {
		return reject(err)
	}
	switch req.Transition {
	case TransitionConfirm, TransitionCancel:
		if err := expectArity(req, 1+N_REGULATORS, 1); err != nil {
			return reject(err)
		}
		args := CooperativeArgs{
			ConsumerSig:    req.Sigs[0],
			ConsumerPubKey: req.PubKeys[0],
			EnergyAmount:   req.Param,
		}
		copy(args.RegulatorSigs[:], req.Sigs[1:])
		if req.Transition == TransitionConfirm {
			err = rec.Confirm(p, entry, req.Ctx, args)
		} else {
			err = rec.Cancel(p, entry, req.Ctx, args, policy)
		}
		if err != nil {
			return reject(err)
		}
		return Verdict{Accept: true, Payout: req.Ctx.Value}
	case TransitionDeadlineRefund:
		if err := expectArity(req, 1, 1); err != nil {
			return reject(err)
		}
		if err := rec.DeadlineRefund(p, entry, req.Ctx, RefundArgs{
			ConsumerSig:    req.Sigs[0],
			ConsumerPubKey: req.PubKeys[0],
		}); err != nil {
			return reject(err)
		}
		return Verdict{Accept: true, Payout: req.Ctx.Value}
	default:
		return reject(spenderr(ERR_UNKNOWN_TRANSITION, fmt.Sprintf("%q not valid for TRADE_SETTLEMENT", req.Transition)))
	}
}
