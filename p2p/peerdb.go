package p2p

import (
	"encoding/json"
	"fmt"

	"arkchain/storage"
)

// PeerDB is the persisted set of known peer addresses with their metadata,
// stored as JSON records in the "peers" table. Writers batch inside a single
// transaction; readers iterate read-only snapshots so the dialer sees a
// stable view independent of concurrent inserts by the info worker.
type PeerDB struct {
	db    *storage.LevelDB
	table *storage.Table
}

func newPeerDB(db *storage.LevelDB) *PeerDB {
	return &PeerDB{db: db, table: storage.NewTable("peers")}
}

// defaultRecord is the metadata stored for a freshly discovered address.
func defaultRecord() Info {
	return Info{
		"lastseen": uint64(0),
		"height":   uint64(1),
		"score":    uint64(0),
	}
}

// Begin opens a write transaction on the backing store.
func (p *PeerDB) Begin() (*storage.Transaction, error) {
	return p.db.Begin()
}

// Snapshot opens a read-only view for iteration.
func (p *PeerDB) Snapshot() (*storage.Snapshot, error) {
	return p.db.BeginReadOnly()
}

// Iterator walks all peer records within the snapshot.
func (p *PeerDB) Iterator(snap *storage.Snapshot) *storage.Iterator {
	return p.table.Iterator(snap)
}

// Get reads the record for addr inside the transaction.
func (p *PeerDB) Get(tx *storage.Transaction, addr string) (Info, bool, error) {
	raw, ok, err := p.table.Get(tx, addr)
	if err != nil || !ok {
		return nil, false, err
	}
	info, err := DecodeRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return info, true, nil
}

// Put writes the record for addr inside the transaction.
func (p *PeerDB) Put(tx *storage.Transaction, addr string, info Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode peer record %s: %w", addr, err)
	}
	return p.table.Put(tx, addr, raw)
}

// InsertDefault stores a default record for addr unless one already exists.
// It reports whether a record was inserted.
func (p *PeerDB) InsertDefault(tx *storage.Transaction, addr string) (bool, error) {
	if _, ok, err := p.Get(tx, addr); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if err := p.Put(tx, addr, defaultRecord()); err != nil {
		return false, err
	}
	return true, nil
}

// Seed inserts default records for the bootstrap addresses, batched in one
// transaction. Existing records are left untouched.
func (p *PeerDB) Seed(addrs []string) error {
	tx, err := p.Begin()
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if _, err := p.InsertDefault(tx, addr); err != nil {
			tx.Discard()
			return err
		}
	}
	return tx.Commit()
}

// DecodeRecord parses a stored peer record.
func DecodeRecord(raw []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode peer record: %w", err)
	}
	return info, nil
}
