package store

import (
	"encoding/binary"
	"fmt"

	"energytrade.dev/settle/covenant"
)

// RecordEntry is a live settlement record and the clock height it was created at.
type RecordEntry struct {
	Output         covenant.TxOutput
	CreationHeight uint32
}

func encodeOutpointKey(p covenant.Outpoint) []byte {
	// txid(32) || vout(u32 little-endian)
	out := make([]byte, 32+4)
	copy(out[0:32], p.Txid[:])
	binary.LittleEndian.PutUint32(out[32:36], p.Vout)
	return out
}

func decodeOutpointKey(b []byte) (covenant.Outpoint, error) {
	if len(b) != 36 {
		return covenant.Outpoint{}, fmt.Errorf("outpoint: expected 36 bytes, got %d", len(b))
	}
	var p covenant.Outpoint
	copy(p.Txid[:], b[0:32])
	p.Vout = binary.LittleEndian.Uint32(b[32:36])
	return p, nil
}

// Layout: canonical output bytes | creation_height u32le.
func encodeRecordEntry(e RecordEntry) []byte {
	out := covenant.TxOutputBytes(e.Output)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], e.CreationHeight)
	return append(out, tmp4[:]...)
}

func decodeRecordEntry(b []byte) (RecordEntry, error) {
	o, n, err := covenant.ParseTxOutput(b)
	if err != nil {
		return RecordEntry{}, fmt.Errorf("record: %w", err)
	}
	if n+4 != len(b) {
		return RecordEntry{}, fmt.Errorf("record: bad length")
	}
	return RecordEntry{
		Output:         o,
		CreationHeight: binary.LittleEndian.Uint32(b[n : n+4]),
	}, nil
}
