package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"energytrade.dev/settle/covenant"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRecords  = []byte("records_by_outpoint")
	bucketReceipts = []byte("receipts_by_outpoint")
)

var (
	ErrRecordNotFound = errors.New("store: record not found")
	ErrRecordSpent    = errors.New("store: record already spent")
	ErrRecordExists   = errors.New("store: record already exists")
)

type DB struct {
	ledgerDir string
	db        *bolt.DB
	manifest  *Manifest
}

// Open opens (creating on first use) the ledger for network under datadir.
func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}

	ledgerDir := LedgerDir(datadir, network)
	if err := ensureDir(filepath.Join(ledgerDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(ledgerDir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{ledgerDir: ledgerDir, db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketReceipts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(ledgerDir)
	switch {
	case os.IsNotExist(err):
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network}
		if err := writeManifestAtomic(ledgerDir, m); err != nil {
			_ = bdb.Close()
			return nil, err
		}
	case err != nil:
		_ = bdb.Close()
		return nil, fmt.Errorf("read manifest: %w", err)
	case m.SchemaVersion > SchemaVersionV1:
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	case m.Network != network:
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest network %q, opened as %q", m.Network, network)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) LedgerDir() string { return d.ledgerDir }

func (d *DB) Manifest() Manifest {
	return *d.manifest
}

// SetClockHeight persists the ledger's current block height.
func (d *DB) SetClockHeight(h uint32) error {
	m := *d.manifest
	m.ClockHeight = h
	if err := writeManifestAtomic(d.ledgerDir, &m); err != nil {
		return err
	}
	d.manifest = &m
	return nil
}

// InsertRecord funds a new record. An outpoint is never reused, even after
// it has been spent.
func (d *DB) InsertRecord(point covenant.Outpoint, e RecordEntry) error {
	key := encodeOutpointKey(point)
	val := encodeRecordEntry(e)
	return d.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketRecords).Get(key) != nil || tx.Bucket(bucketReceipts).Get(key) != nil {
			return ErrRecordExists
		}
		return tx.Bucket(bucketRecords).Put(key, val)
	})
}

func (d *DB) GetRecord(point covenant.Outpoint) (RecordEntry, bool, error) {
	var out RecordEntry
	var ok bool
	key := encodeOutpointKey(point)
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(key)
		if v == nil {
			return nil
		}
		e, err := decodeRecordEntry(v)
		if err != nil {
			return err
		}
		out = e
		ok = true
		return nil
	})
	return out, ok, err
}

func (d *DB) GetReceipt(point covenant.Outpoint) (*Receipt, bool, error) {
	var out *Receipt
	key := encodeOutpointKey(point)
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceipts).Get(key)
		if v == nil {
			return nil
		}
		r, err := decodeReceipt(v)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Settle consumes point and creates successors in one bbolt transaction:
// the record is removed, its receipt written, and every successor inserted
// at (r.SettlementTxid, i). Nothing is written unless all of it is.
func (d *DB) Settle(point covenant.Outpoint, r Receipt, successors []RecordEntry) error {
	key := encodeOutpointKey(point)
	return d.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		receipts := tx.Bucket(bucketReceipts)
		if receipts.Get(key) != nil {
			return ErrRecordSpent
		}
		v := records.Get(key)
		if v == nil {
			return ErrRecordNotFound
		}
		consumed, err := decodeRecordEntry(v)
		if err != nil {
			return err
		}
		r.Consumed = consumed
		r.Created = make([]covenant.Outpoint, 0, len(successors))

		for i, s := range successors {
			p := covenant.Outpoint{Txid: r.SettlementTxid, Vout: uint32(i)} // #nosec G115 -- successor count is bounded by the receipt encoding.
			pk := encodeOutpointKey(p)
			if records.Get(pk) != nil || receipts.Get(pk) != nil {
				return ErrRecordExists
			}
			if err := records.Put(pk, encodeRecordEntry(s)); err != nil {
				return err
			}
			r.Created = append(r.Created, p)
		}

		val, err := encodeReceipt(r)
		if err != nil {
			return err
		}
		if err := records.Delete(key); err != nil {
			return err
		}
		return receipts.Put(key, val)
	})
}

// LoadRecords returns every live record.
func (d *DB) LoadRecords() (map[covenant.Outpoint]RecordEntry, error) {
	out := make(map[covenant.Outpoint]RecordEntry)
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			p, err := decodeOutpointKey(k)
			if err != nil {
				return err
			}
			e, err := decodeRecordEntry(v)
			if err != nil {
				return err
			}
			out[p] = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
