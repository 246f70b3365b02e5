package types

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
)

// BlockHeader holds the metadata of a block and the commitment to its
// contents. Its hash is the block's identifier on the wire and in storage.
type BlockHeader struct {
	Height    uint64 `json:"height"`
	Timestamp int64  `json:"timestamp"`
	PrevID    string `json:"prevId"`
	TxRoot    []byte `json:"txRoot"`
}

// Block is a full block: header plus the transactions it commits to.
type Block struct {
	Header       *BlockHeader   `json:"header"`
	Transactions []*Transaction `json:"transactions"`
}

// NewBlock creates a block from a header and a set of transactions.
func NewBlock(header *BlockHeader, txs []*Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash computes the blake3 digest of the canonical JSON encoding of the
// header.
func (h *BlockHeader) Hash() ([]byte, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(b)
	return sum[:], nil
}

// ID returns the block identifier: the hex-encoded header hash.
func (b *Block) ID() string {
	sum, err := b.Header.Hash()
	if err != nil {
		return ""
	}
	return hex.EncodeToString(sum)
}

// Height returns the block height from the header.
func (b *Block) Height() uint64 {
	if b.Header == nil {
		return 0
	}
	return b.Header.Height
}

// PrevID returns the identifier of the predecessor block.
func (b *Block) PrevID() string {
	if b.Header == nil {
		return ""
	}
	return b.Header.PrevID
}
