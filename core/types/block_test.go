package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockHeaderHashIsStable(t *testing.T) {
	header := &BlockHeader{Height: 3, Timestamp: 99, PrevID: "aa"}
	first, err := header.Hash()
	require.NoError(t, err)
	second, err := header.Hash()
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 32)
}

func TestBlockIDChangesWithContent(t *testing.T) {
	a := NewBlock(&BlockHeader{Height: 1, Timestamp: 1}, nil)
	b := NewBlock(&BlockHeader{Height: 2, Timestamp: 1, PrevID: a.ID()}, nil)
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, a.ID(), b.PrevID())
	require.Equal(t, uint64(2), b.Height())
}

func TestTransactionID(t *testing.T) {
	tx := &Transaction{Nonce: 1, Value: 10}
	other := &Transaction{Nonce: 2, Value: 10}
	require.NotEmpty(t, tx.ID())
	require.NotEqual(t, tx.ID(), other.ID())
}
