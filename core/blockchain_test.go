package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"arkchain/core/types"
	"arkchain/storage"
)

func newTestChain(t *testing.T) (*Blockchain, *storage.LevelDB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.db")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	bc, err := NewBlockchain(db)
	require.NoError(t, err)
	return bc, db, path
}

func extend(t *testing.T, prev *types.Block, count int) []*types.Block {
	t.Helper()
	out := make([]*types.Block, 0, count)
	prevID := prev.ID()
	height := prev.Height()
	for i := 0; i < count; i++ {
		height++
		block := types.NewBlock(&types.BlockHeader{
			Height:    height,
			Timestamp: int64(height),
			PrevID:    prevID,
		}, nil)
		out = append(out, block)
		prevID = block.ID()
	}
	return out
}

func TestBlockchainGenesis(t *testing.T) {
	bc, db, _ := newTestChain(t)
	defer db.Close()

	require.Equal(t, uint64(1), bc.TipHeight())
	genesis, err := bc.GetBlockByHeight(1)
	require.NoError(t, err)
	require.Equal(t, bc.TipID(), genesis.ID())
	require.True(t, bc.HaveBlock(genesis.ID()))
}

func TestBlockchainSubmitExtendsTip(t *testing.T) {
	bc, db, _ := newTestChain(t)
	defer db.Close()

	genesis, err := bc.GetBlockByHeight(1)
	require.NoError(t, err)

	for _, block := range extend(t, genesis, 3) {
		accepted, misbehaved := bc.SubmitBlock(block)
		require.True(t, accepted)
		require.False(t, misbehaved)
	}
	require.Equal(t, uint64(4), bc.TipHeight())

	// Resubmitting a known block is a harmless no-op.
	tip, err := bc.GetBlock(bc.TipID())
	require.NoError(t, err)
	accepted, misbehaved := bc.SubmitBlock(tip)
	require.True(t, accepted)
	require.False(t, misbehaved)
	require.Equal(t, uint64(4), bc.TipHeight())
}

func TestBlockchainRejectsUnknownPredecessor(t *testing.T) {
	bc, db, _ := newTestChain(t)
	defer db.Close()

	orphan := types.NewBlock(&types.BlockHeader{
		Height: 2,
		PrevID: "ffffffffffffffff",
	}, nil)
	accepted, misbehaved := bc.SubmitBlock(orphan)
	require.False(t, accepted)
	require.False(t, misbehaved, "a missing predecessor is not misbehavior")
	require.Equal(t, uint64(1), bc.TipHeight())
}

func TestBlockchainFlagsBadHeight(t *testing.T) {
	bc, db, _ := newTestChain(t)
	defer db.Close()

	genesis, err := bc.GetBlockByHeight(1)
	require.NoError(t, err)

	skip := types.NewBlock(&types.BlockHeader{
		Height: 5, // should be 2
		PrevID: genesis.ID(),
	}, nil)
	accepted, misbehaved := bc.SubmitBlock(skip)
	require.False(t, accepted)
	require.True(t, misbehaved)
}

func TestBlockchainNotFound(t *testing.T) {
	bc, db, _ := newTestChain(t)
	defer db.Close()

	_, err := bc.GetBlock("0123456789abcdef")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = bc.GetBlockByHeight(99)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, bc.HaveBlock("0123456789abcdef"))
}

func TestBlockchainReopenKeepsTip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.db")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	bc, err := NewBlockchain(db)
	require.NoError(t, err)

	genesis, err := bc.GetBlockByHeight(1)
	require.NoError(t, err)
	for _, block := range extend(t, genesis, 2) {
		accepted, _ := bc.SubmitBlock(block)
		require.True(t, accepted)
	}
	tipID := bc.TipID()
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewBlockchain(db)
	require.NoError(t, err)
	require.Equal(t, uint64(3), reopened.TipHeight())
	require.Equal(t, tipID, reopened.TipID())
}
