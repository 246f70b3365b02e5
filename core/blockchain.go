package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"arkchain/core/types"
	"arkchain/storage"
)

// ErrNotFound signals a block id or height unknown to the chain.
var ErrNotFound = errors.New("core: block not found")

// Blockchain is a storage-backed chain of blocks keyed by id, with a height
// index and a tip pointer. It implements the engine surface the networking
// core depends on: tip query, block lookup and submission.
type Blockchain struct {
	db      *storage.LevelDB
	blocks  *storage.Table
	heights *storage.Table
	meta    *storage.Table

	mu     sync.RWMutex
	tipID  string
	height uint64
}

// NewBlockchain opens the chain in the given database, creating a genesis
// block at height 1 when none exists yet.
func NewBlockchain(db *storage.LevelDB) (*Blockchain, error) {
	bc := &Blockchain{
		db:      db,
		blocks:  storage.NewTable("blocks"),
		heights: storage.NewTable("heights"),
		meta:    storage.NewTable("chain"),
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}

	tipID, ok, err := bc.meta.Get(tx, "tip")
	if err != nil {
		tx.Discard()
		return nil, err
	}
	if !ok {
		genesis := createGenesisBlock()
		if err := bc.writeBlock(tx, genesis); err != nil {
			tx.Discard()
			return nil, err
		}
		if err := bc.meta.Put(tx, "tip", []byte(genesis.ID())); err != nil {
			tx.Discard()
			return nil, err
		}
		bc.tipID = genesis.ID()
		bc.height = genesis.Height()
	} else {
		bc.tipID = string(tipID)
		tipBlock, ok, err := bc.readBlock(tx, bc.tipID)
		if err != nil {
			tx.Discard()
			return nil, fmt.Errorf("load tip %s: %w", bc.tipID, err)
		}
		if !ok {
			tx.Discard()
			return nil, fmt.Errorf("load tip %s: %w", bc.tipID, ErrNotFound)
		}
		bc.height = tipBlock.Height()
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return bc, nil
}

func createGenesisBlock() *types.Block {
	header := &types.BlockHeader{
		Height:    1,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		PrevID:    "",
	}
	return types.NewBlock(header, nil)
}

// TipHeight returns the height of the best known block.
func (bc *Blockchain) TipHeight() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

// TipID returns the identifier of the best known block.
func (bc *Blockchain) TipID() string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tipID
}

// HaveBlock reports whether the block id is known to the chain.
func (bc *Blockchain) HaveBlock(id string) bool {
	_, err := bc.GetBlock(id)
	return err == nil
}

// GetBlock returns a block by id, or ErrNotFound.
func (bc *Blockchain) GetBlock(id string) (*types.Block, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	snap, err := bc.db.BeginReadOnly()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	return bc.readBlockSnapshot(snap, id)
}

// GetBlockByHeight returns the main-chain block at the given height, or
// ErrNotFound.
func (bc *Blockchain) GetBlockByHeight(height uint64) (*types.Block, error) {
	snap, err := bc.db.BeginReadOnly()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	id, ok, err := bc.heights.GetSnapshot(snap, heightKey(height))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return bc.readBlockSnapshot(snap, string(id))
}

func (bc *Blockchain) readBlockSnapshot(snap *storage.Snapshot, id string) (*types.Block, error) {
	raw, ok, err := bc.blocks.GetSnapshot(snap, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	block := &types.Block{}
	if err := json.Unmarshal(raw, block); err != nil {
		return nil, err
	}
	return block, nil
}

// SubmitBlock appends a block to the chain. The first return reports whether
// the block was accepted; the second whether the submitter misbehaved by
// sending a structurally invalid block.
func (bc *Blockchain) SubmitBlock(block *types.Block) (bool, bool) {
	if block == nil || block.Header == nil || block.Height() == 0 {
		return false, true
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	tx, err := bc.db.Begin()
	if err != nil {
		return false, false
	}

	if _, ok, err := bc.readBlock(tx, block.ID()); err == nil && ok {
		// Already have it.
		tx.Discard()
		return true, false
	}

	prev, ok, err := bc.readBlock(tx, block.PrevID())
	if err != nil || !ok {
		tx.Discard()
		return false, false
	}
	if block.Height() != prev.Height()+1 {
		tx.Discard()
		return false, true
	}
	if prev.ID() != bc.tipID {
		// Side chain; stored but does not advance the tip.
		if err := bc.storeBlock(tx, block); err != nil {
			tx.Discard()
			return false, false
		}
		if err := tx.Commit(); err != nil {
			return false, false
		}
		return true, false
	}

	if err := bc.writeBlock(tx, block); err != nil {
		tx.Discard()
		return false, false
	}
	if err := bc.meta.Put(tx, "tip", []byte(block.ID())); err != nil {
		tx.Discard()
		return false, false
	}
	if err := tx.Commit(); err != nil {
		return false, false
	}

	bc.tipID = block.ID()
	bc.height = block.Height()
	return true, false
}

func (bc *Blockchain) readBlock(tx *storage.Transaction, id string) (*types.Block, bool, error) {
	raw, ok, err := bc.blocks.Get(tx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	block := &types.Block{}
	if err := json.Unmarshal(raw, block); err != nil {
		return nil, false, err
	}
	return block, true, nil
}

// storeBlock persists the block body without touching the height index.
func (bc *Blockchain) storeBlock(tx *storage.Transaction, block *types.Block) error {
	raw, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return bc.blocks.Put(tx, block.ID(), raw)
}

// writeBlock persists the block and points the main-chain height index at it.
func (bc *Blockchain) writeBlock(tx *storage.Transaction, block *types.Block) error {
	if err := bc.storeBlock(tx, block); err != nil {
		return err
	}
	return bc.heights.Put(tx, heightKey(block.Height()), []byte(block.ID()))
}

func heightKey(height uint64) string {
	return strconv.FormatUint(height, 10)
}
