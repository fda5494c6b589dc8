package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"energytrade.dev/settle/covenant"
	"energytrade.dev/settle/crypto"
	"energytrade.dev/settle/node/store"

	"github.com/sirupsen/logrus"
)

// Ledger is the settlement layer around the predicate core: it owns the
// record set, adjudicates locktime finality against its clock, and commits
// each accepted transition atomically. A record is consumed at most once.
type Ledger struct {
	mu     sync.Mutex
	db     *store.DB
	p      crypto.CryptoProvider
	policy covenant.TradePolicy
	now    func() time.Time
	log    *logrus.Entry
}

// Settlement is the outcome of an accepted transition.
type Settlement struct {
	Txid       [32]byte
	Transition covenant.Transition
	Payout     uint64
	Created    []covenant.Outpoint
	Successor  *covenant.EscrowRecord
}

func NewLedger(db *store.DB, p crypto.CryptoProvider, policy covenant.TradePolicy, log *logrus.Logger) *Ledger {
	return &Ledger{
		db:     db,
		p:      p,
		policy: policy,
		now:    time.Now,
		log:    log.WithField("component", "ledger"),
	}
}

// ClockHeight is the height height-denominated locktimes are judged against.
func (l *Ledger) ClockHeight() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Manifest().ClockHeight
}

// AdvanceClock moves the ledger height forward. It never moves back.
func (l *Ledger) AdvanceClock(height uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.db.Manifest().ClockHeight
	if height < cur {
		return fmt.Errorf("clock height %d below current %d", height, cur)
	}
	if err := l.db.SetClockHeight(height); err != nil {
		return fmt.Errorf("set clock height: %w", err)
	}
	l.log.WithField("height", height).Debug("clock advanced")
	return nil
}

// Fund inserts a new record at point.
func (l *Ledger) Fund(point covenant.Outpoint, out covenant.TxOutput) error {
	if err := covenant.ValidateFundingOutput(out); err != nil {
		return err
	}
	if out.Value == 0 {
		return covenant.NewSpendError(covenant.ERR_PARSE, "record value must be > 0")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.db.InsertRecord(point, store.RecordEntry{Output: out, CreationHeight: l.db.Manifest().ClockHeight})
	if errors.Is(err, store.ErrRecordExists) {
		return covenant.NewSpendError(covenant.ERR_ALREADY_SPENT, "outpoint already used")
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	recordsFundedTotal.WithLabelValues(covenantTypeLabel(out.CovenantType)).Inc()
	l.log.WithFields(logrus.Fields{
		"txid":  fmt.Sprintf("%x", point.Txid),
		"vout":  point.Vout,
		"value": out.Value,
	}).Info("record funded")
	return nil
}

// Record returns the live record at point, or the receipt of the settlement
// that consumed it.
func (l *Ledger) Record(point covenant.Outpoint) (*store.RecordEntry, *store.Receipt, error) {
	e, ok, err := l.db.GetRecord(point)
	if err != nil {
		return nil, nil, fmt.Errorf("get record: %w", err)
	}
	if ok {
		return &e, nil, nil
	}
	r, ok, err := l.db.GetReceipt(point)
	if err != nil {
		return nil, nil, fmt.Errorf("get receipt: %w", err)
	}
	if ok {
		return nil, r, nil
	}
	return nil, nil, covenant.NewSpendError(covenant.ERR_MISSING_RECORD, "no record at outpoint")
}

// isFinal reports whether locktime has been reached by the ledger clock.
// A zero locktime is always final.
func (l *Ledger) isFinal(locktime uint32) bool {
	if locktime == 0 {
		return true
	}
	if locktime < covenant.LOCKTIME_THRESHOLD {
		return locktime <= l.db.Manifest().ClockHeight
	}
	return int64(locktime) <= l.now().Unix()
}

// Settle evaluates req against its record and, on accept, consumes the record
// and stores any successor. Rejections are returned as *covenant.SpendError.
func (l *Ledger) Settle(req SettleRequest) (*Settlement, error) {
	start := time.Now()
	defer func() { settlementDuration.Observe(time.Since(start).Seconds()) }()

	st, err := l.settle(req)
	code := "OK"
	if err != nil {
		code = string(covenant.CodeOf(err))
		if code == "" {
			code = "INTERNAL"
		}
	}
	RecordSettlement(string(req.Transition), code)

	fields := logrus.Fields{
		"txid":       fmt.Sprintf("%x", req.Outpoint.Txid),
		"vout":       req.Outpoint.Vout,
		"transition": req.Transition,
	}
	switch {
	case err == nil:
		l.log.WithFields(fields).WithField("settlement", fmt.Sprintf("%x", st.Txid)).Info("settled")
	case code == "INTERNAL":
		l.log.WithFields(fields).WithError(err).Error("settlement failed")
	default:
		l.log.WithFields(fields).WithField("code", code).Info("settlement rejected")
	}
	return st, err
}

func (l *Ledger) settle(req SettleRequest) (*Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok, err := l.db.GetRecord(req.Outpoint)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if !ok {
		_, spent, err := l.db.GetReceipt(req.Outpoint)
		if err != nil {
			return nil, fmt.Errorf("get receipt: %w", err)
		}
		if spent {
			return nil, covenant.NewSpendError(covenant.ERR_ALREADY_SPENT, "record already consumed")
		}
		return nil, covenant.NewSpendError(covenant.ERR_MISSING_RECORD, "no record at outpoint")
	}

	if req.Sequence != covenant.SEQUENCE_FINAL && !l.isFinal(req.Locktime) {
		return nil, covenant.NewSpendError(covenant.ERR_LOCKTIME_NOT_FINAL, fmt.Sprintf("locktime %d not reached by ledger clock", req.Locktime))
	}

	if err := covenant.CheckValueConservation(entry.Output.Value, req.Outputs); err != nil {
		return nil, err
	}

	v := covenant.Evaluate(l.p, entry.Output, covenant.SpendRequest{
		Transition: req.Transition,
		Sigs:       req.Sigs,
		PubKeys:    req.PubKeys,
		Param:      req.Param,
		Ctx:        req.SpendContext(l.p, entry.Output.Value),
	}, l.policy)
	if !v.Accept {
		return nil, v.Err
	}

	st := &Settlement{
		Txid:       SettlementTxid(l.p, req),
		Transition: req.Transition,
		Payout:     v.Payout,
		Successor:  v.Successor,
	}
	var successors []store.RecordEntry
	if v.Successor != nil {
		// The output commitment already pinned Outputs to exactly the successor.
		successors = append(successors, store.RecordEntry{
			Output:         req.Outputs[0],
			CreationHeight: l.db.Manifest().ClockHeight,
		})
	}

	err = l.db.Settle(req.Outpoint, store.Receipt{
		SettlementTxid: st.Txid,
		Transition:     req.Transition,
		Height:         l.db.Manifest().ClockHeight,
	}, successors)
	switch {
	case errors.Is(err, store.ErrRecordSpent):
		return nil, covenant.NewSpendError(covenant.ERR_ALREADY_SPENT, "record already consumed")
	case errors.Is(err, store.ErrRecordNotFound):
		return nil, covenant.NewSpendError(covenant.ERR_MISSING_RECORD, "no record at outpoint")
	case errors.Is(err, store.ErrRecordExists):
		return nil, covenant.NewSpendError(covenant.ERR_ALREADY_SPENT, "successor outpoint already used")
	case err != nil:
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	for i := range successors {
		st.Created = append(st.Created, covenant.Outpoint{Txid: st.Txid, Vout: uint32(i)}) // #nosec G115 -- at most one successor.
	}
	return st, nil
}
