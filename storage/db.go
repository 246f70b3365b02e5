package storage

import (
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a persistent key-value store with write transactions and
// read-only snapshots. Tables share one database and are distinguished by a
// key prefix.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(filepath.Clean(path), nil)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

// Begin opens a write transaction. Writes become visible atomically on
// Commit; a Discard throws them away. Only one write transaction is open at
// a time, later calls block until the current one finishes.
func (ldb *LevelDB) Begin() (*Transaction, error) {
	tx, err := ldb.db.OpenTransaction()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// BeginReadOnly opens a point-in-time snapshot. Readers iterating the
// snapshot never observe concurrent writes.
func (ldb *LevelDB) BeginReadOnly() (*Snapshot, error) {
	snap, err := ldb.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	return &Snapshot{snap: snap}, nil
}

// Transaction is a write transaction over the database.
type Transaction struct {
	tx *leveldb.Transaction
}

// Commit atomically applies all writes in the transaction.
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Discard abandons the transaction without applying its writes.
func (t *Transaction) Discard() {
	t.tx.Discard()
}

// Snapshot is a stable read-only view of the database.
type Snapshot struct {
	snap *leveldb.Snapshot
}

// Release frees the snapshot.
func (s *Snapshot) Release() {
	s.snap.Release()
}

// Table namespaces keys within the shared database.
type Table struct {
	name string
}

// NewTable returns a handle for the named table.
func NewTable(name string) *Table {
	return &Table{name: name}
}

func (t *Table) prefix() []byte {
	return []byte(t.name + "/")
}

func (t *Table) key(k string) []byte {
	return append(t.prefix(), k...)
}

// Get reads a value inside a write transaction. The second return reports
// whether the key exists.
func (t *Table) Get(tx *Transaction, key string) ([]byte, bool, error) {
	value, err := tx.tx.Get(t.key(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Put writes a value inside a write transaction.
func (t *Table) Put(tx *Transaction, key string, value []byte) error {
	return tx.tx.Put(t.key(key), value, nil)
}

// Delete removes a key inside a write transaction.
func (t *Table) Delete(tx *Transaction, key string) error {
	return tx.tx.Delete(t.key(key), nil)
}

// GetSnapshot reads a value from a read-only snapshot.
func (t *Table) GetSnapshot(s *Snapshot, key string) ([]byte, bool, error) {
	value, err := s.snap.Get(t.key(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Iterator walks all entries of the table within a snapshot.
func (t *Table) Iterator(s *Snapshot) *Iterator {
	it := s.snap.NewIterator(util.BytesPrefix(t.prefix()), nil)
	return &Iterator{it: it, trim: len(t.prefix())}
}

// Iterator wraps a leveldb iterator, stripping the table prefix from keys.
type Iterator struct {
	it   iterator.Iterator
	trim int
}

// Next advances the iterator, returning false when exhausted.
func (i *Iterator) Next() bool {
	return i.it.Next()
}

// Key returns the current key without the table prefix.
func (i *Iterator) Key() string {
	return string(i.it.Key()[i.trim:])
}

// Value returns a copy of the current value; it stays valid after Next.
func (i *Iterator) Value() []byte {
	value := make([]byte, len(i.it.Value()))
	copy(value, i.it.Value())
	return value
}

// Release frees the iterator and returns any iteration error.
func (i *Iterator) Release() error {
	i.it.Release()
	return i.it.Error()
}
