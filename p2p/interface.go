package p2p

import (
	"time"

	"arkchain/core/types"
)

// Chain is the blockchain engine surface the networking core depends on. The
// engine's own synchronization makes these safe for concurrent use.
type Chain interface {
	// TipHeight returns the height of the local best block.
	TipHeight() uint64
	// HaveBlock reports whether the block id is known locally.
	HaveBlock(id string) bool
	// SubmitBlock hands a downloaded block to the engine. The first result
	// reports acceptance, the second whether the block itself proves the
	// sender misbehaved.
	SubmitBlock(block *types.Block) (accepted bool, misbehaved bool)
}

// TxRelay receives unconfirmed transactions pulled from freshly connected
// peers. A nil relay drops them.
type TxRelay func(txs []*types.Transaction)

// PeerStats carries informational transfer counters for one peer.
type PeerStats struct {
	Version        string        `json:"version"`
	BlockHeight    uint64        `json:"blockHeight"`
	BytesReceived  uint64        `json:"bytesReceived"`
	BytesSent      uint64        `json:"bytesSent"`
	Latency        time.Duration `json:"latency"`
	Incoming       bool          `json:"incoming"`
	ConnectedSince time.Time     `json:"connectedSince"`
}
