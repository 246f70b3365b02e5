package p2p

import (
	"log/slog"

	"arkchain/core/types"
)

// BroadcastTransactions fans the transactions out to every acquirable peer.
// Per-peer transport failures are logged; the broadcast itself never fails.
func (n *Network) BroadcastTransactions(txs []*types.Transaction) {
	for _, addr := range n.shuffledKeys() {
		conn, ok := n.conns.Find(addr)
		if !ok || !conn.Acquire() {
			continue
		}
		if err := conn.SendTransactions(txs); err != nil {
			n.logger.Warn("Failed to send transactions to peer",
				slog.String("peer", addr),
				slog.Any("error", err))
			n.metrics.recordBroadcastError()
		}
		conn.Release()
	}
}

// BroadcastBlock fans a block out to every acquirable peer.
func (n *Network) BroadcastBlock(block *types.Block) {
	for _, addr := range n.shuffledKeys() {
		conn, ok := n.conns.Find(addr)
		if !ok || !conn.Acquire() {
			continue
		}
		if err := conn.SendBlock(block); err != nil {
			n.logger.Warn("Failed to send block to peer",
				slog.String("peer", addr),
				slog.Any("error", err))
			n.metrics.recordBroadcastError()
		}
		conn.Release()
	}
}
