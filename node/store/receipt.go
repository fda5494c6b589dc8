package store

import (
	"encoding/binary"
	"fmt"

	"energytrade.dev/settle/covenant"
)

// Receipt is kept under the consumed outpoint once a transition settles it.
// Consumed holds the record as it was, so a spent record stays inspectable.
type Receipt struct {
	SettlementTxid [32]byte
	Transition     covenant.Transition
	Height         uint32
	Consumed       RecordEntry
	Created        []covenant.Outpoint
}

func encodeReceipt(r Receipt) ([]byte, error) {
	if len(r.Transition) > 0xff {
		return nil, fmt.Errorf("receipt: transition name too long")
	}
	if len(r.Created) > 0xffff {
		return nil, fmt.Errorf("receipt: too many created records")
	}
	consumed := encodeRecordEntry(r.Consumed)

	// Layout:
	// settlement_txid 32 | transition_len u8 | transition | height u32le
	// | consumed_len u32le | consumed | created_count u16le | (outpoint_key 36) * created_count
	out := make([]byte, 0, 32+1+len(r.Transition)+4+4+len(consumed)+2+36*len(r.Created))
	out = append(out, r.SettlementTxid[:]...)
	out = append(out, byte(len(r.Transition)))
	out = append(out, r.Transition...)
	out = binary.LittleEndian.AppendUint32(out, r.Height)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(consumed))) // #nosec G115 -- one record entry is far below 4 GiB.
	out = append(out, consumed...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(r.Created))) // #nosec G115 -- len checked against 0xffff above.
	for _, p := range r.Created {
		out = append(out, encodeOutpointKey(p)...)
	}
	return out, nil
}

func decodeReceipt(b []byte) (*Receipt, error) {
	off := 0
	need := func(n int) error {
		if off+n > len(b) {
			return fmt.Errorf("receipt: truncated")
		}
		return nil
	}

	var r Receipt
	if err := need(32 + 1); err != nil {
		return nil, err
	}
	copy(r.SettlementTxid[:], b[0:32])
	tlen := int(b[32])
	off = 33
	if err := need(tlen + 4 + 4); err != nil {
		return nil, err
	}
	r.Transition = covenant.Transition(b[off : off+tlen])
	off += tlen
	r.Height = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	clen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if err := need(clen + 2); err != nil {
		return nil, err
	}
	consumed, err := decodeRecordEntry(b[off : off+clen])
	if err != nil {
		return nil, err
	}
	r.Consumed = consumed
	off += clen
	n := int(binary.LittleEndian.Uint16(b[off : off+2]))
	off += 2
	if off+36*n != len(b) {
		return nil, fmt.Errorf("receipt: bad created count")
	}
	r.Created = make([]covenant.Outpoint, 0, n)
	for i := 0; i < n; i++ {
		p, err := decodeOutpointKey(b[off : off+36])
		if err != nil {
			return nil, err
		}
		r.Created = append(r.Created, p)
		off += 36
	}
	return &r, nil
}
