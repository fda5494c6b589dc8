package covenant

import (
	"fmt"

	"energytrade.dev/settle/crypto"
)

// ExpectedOutputs builds the only output set a transition may authorize.
func ExpectedOutputs(ctx SpendContext, beneficiary TxOutput, allowChange bool) []TxOutput {
	outs := []TxOutput{beneficiary}
	if allowChange && ctx.ChangeAmount > 0 {
		outs = append(outs, P2PKHOutput(ctx.ChangePKH, ctx.ChangeAmount))
	}
	return outs
}

// VerifyOutputCommitment recomputes the expected output commitment and
// compares it with ctx.HashOutputs. The caller's destination is never trusted.
func VerifyOutputCommitment(p crypto.CryptoProvider, ctx SpendContext, beneficiary TxOutput, allowChange bool) error {
	if HashOutputs(p, ExpectedOutputs(ctx, beneficiary, allowChange)) != ctx.HashOutputs {
		return spenderr(ERR_OUTPUT_MISMATCH, "hash_outputs mismatch")
	}
	return nil
}

// CheckValueConservation requires outs to disburse exactly value. A settlement
// spends one record and nothing else, so there is no other source of funds and
// no fee sink. For purchase this pins the change to value - payout.
func CheckValueConservation(value uint64, outs []TxOutput) error {
	var total uint64
	for _, o := range outs {
		var err error
		if total, err = addU64(total, o.Value); err != nil {
			return err
		}
	}
	if total != value {
		return spenderr(ERR_VALUE_CONSERVATION, fmt.Sprintf("outputs total %d, record holds %d", total, value))
	}
	return nil
}
