package p2p

import (
	"log/slog"
	"sync/atomic"

	"arkchain/core/types"
)

// syncState is the sync worker's private bookkeeping. currentHeight trails
// the download frontier, startHeight marks where the current pass began (the
// common-ancestor search only runs from there), and failure is shared with
// the submit worker.
type syncState struct {
	currentHeight uint64
	startHeight   uint64
	failure       atomic.Bool
	submitDone    chan struct{}
}

func (st *syncState) joinSubmit() {
	if st.submitDone != nil {
		<-st.submitDone
		st.submitDone = nil
	}
}

// syncLoop keeps the local chain caught up with the best height reported by
// any peer, downloading from one peer at a time and submitting batches to
// the blockchain engine asynchronously.
func (n *Network) syncLoop() {
	defer n.wg.Done()

	st := &syncState{}
	st.currentHeight = n.chain.TipHeight()
	st.startHeight = st.currentHeight
	n.currentHeight.Store(st.currentHeight)

	for n.running.Load() {
		if !n.syncRound(st) {
			n.sleep(syncRetrySleep)
			st.currentHeight = n.chain.TipHeight()
			st.startHeight = st.currentHeight
			n.currentHeight.Store(st.currentHeight)
		}
	}

	st.joinSubmit()
}

// syncRound performs one pass: recompute bestHeight from the registry, then
// try to download from peers ahead of us. It reports true only when some
// peer made progress and we are still below bestHeight with peers connected;
// a false return sends the loop into its 20s backoff and tip re-read.
func (n *Network) syncRound(st *syncState) bool {
	best := st.currentHeight
	for _, addr := range n.shuffledKeys() {
		conn, ok := n.conns.Find(addr)
		if !ok || !conn.Acquire() {
			continue
		}
		if h := conn.cachedUint64("height"); h > best {
			best = h
		}
		conn.Release()
	}
	if observed := n.currentHeight.Load(); observed > best {
		best = observed
	}
	n.bestHeight.Store(best)

	n.logger.Info("Sync status",
		slog.Uint64("current_height", st.currentHeight),
		slog.Uint64("best_height", best),
		slog.Uint64("start_height", st.startHeight))

	madeProgress := false
	if best > st.currentHeight {
		for _, addr := range n.shuffledKeys() {
			conn, ok := n.conns.Find(addr)
			if !ok || !conn.Acquire() {
				continue
			}
			progressed, abort := n.downloadFromPeer(st, addr, conn, best)
			conn.Release()
			if progressed {
				madeProgress = true
			}
			if abort {
				break
			}
		}
	}

	return best > st.currentHeight && n.conns.Len() > 0 && madeProgress
}

// downloadFromPeer pulls blocks from one acquired peer: first the
// common-ancestor search when starting a fresh pass, then bulk download in
// 6-block windows, then handoff to the submit worker. The second return
// requests abandoning the remaining peers for this round (after a submit
// failure reset).
func (n *Network) downloadFromPeer(st *syncState, addr string, conn *Connection, best uint64) (bool, bool) {
	if conn.cachedUint64("height") <= st.currentHeight {
		return false, false
	}

	madeProgress := false
	// blocks is kept newest-first; submission walks it from the tail.
	var blocks []*types.Block

	if st.currentHeight == st.startHeight {
		nBlocks := 0
		for n.running.Load() {
			n.logger.Info("Downloading blocks",
				slog.String("peer", addr),
				slog.Uint64("from", st.currentHeight+1),
				slog.Uint64("to", st.currentHeight+downloadWindow))

			newBlocks, err := conn.GetBlocks(st.currentHeight+1, st.currentHeight+downloadWindow)
			if err != nil {
				n.logger.Warn("Failed to contact peer while downloading blocks",
					slog.String("peer", addr),
					slog.Any("error", err))
				break
			}
			nBlocks = len(newBlocks)
			blocks = append(blocks, reverseBlocks(newBlocks)...)
			if nBlocks > 0 {
				madeProgress = true
			} else {
				n.logger.Warn("Peer responded with no blocks", slog.String("peer", addr))
				break
			}

			oldest := blocks[len(blocks)-1]
			n.logger.Info("Testing whether we have the predecessor",
				slog.Uint64("height", oldest.Height()-1))
			if n.chain.HaveBlock(oldest.PrevID()) {
				break
			}

			if st.currentHeight == 1 {
				// Different genesis block to us.
				n.changeScore(addr, penaltyGenesisMismatch)
				return madeProgress, false
			}

			if st.currentHeight <= uint64(nBlocks)+1 {
				st.currentHeight = 1
			} else {
				st.currentHeight -= uint64(nBlocks)
			}
		}

		st.currentHeight += uint64(nBlocks)
		if st.currentHeight > best {
			st.currentHeight = best
		}
		n.logger.Info("Found common block with peer, starting block download",
			slog.String("peer", addr),
			slog.Uint64("height", st.currentHeight))
	}

	for len(blocks) < submitBatchLimit && n.running.Load() && !st.failure.Load() && st.currentHeight < best {
		n.logger.Info("Downloading blocks",
			slog.String("peer", addr),
			slog.Uint64("from", st.currentHeight+1),
			slog.Uint64("to", st.currentHeight+downloadWindow))

		newBlocks, err := conn.GetBlocks(st.currentHeight+1, st.currentHeight+downloadWindow)
		if err != nil {
			n.logger.Warn("Failed to contact peer while downloading blocks",
				slog.String("peer", addr),
				slog.Any("error", err))
			break
		}
		nBlocks := len(newBlocks)
		if nBlocks == 0 {
			n.logger.Warn("Peer responded with no blocks", slog.String("peer", addr))
			break
		}
		madeProgress = true
		blocks = append(reverseBlocks(newBlocks), blocks...)

		st.currentHeight += uint64(nBlocks)
		if st.currentHeight > best {
			st.currentHeight = best
		}
	}

	if st.submitDone != nil {
		n.logger.Info("Waiting for previous submit worker to finish")
		st.joinSubmit()

		if st.failure.Load() {
			n.logger.Warn("Failure processing blocks")
			st.currentHeight = n.chain.TipHeight()
			st.startHeight = st.currentHeight
			n.currentHeight.Store(st.currentHeight)
			n.bestHeight.Store(st.currentHeight)
			st.failure.Store(false)
			return madeProgress, true
		}
	}

	if len(blocks) == 0 {
		return madeProgress, false
	}

	st.submitDone = make(chan struct{})
	done := st.submitDone
	go n.submitBlocks(st, done, addr, blocks)
	return madeProgress, false
}

// submitBlocks walks the downloaded batch oldest-first, feeding the
// blockchain engine and penalizing the source peer for bad blocks.
func (n *Network) submitBlocks(st *syncState, done chan struct{}, peer string, blocks []*types.Block) {
	defer close(done)

	n.logger.Info("Submitting blocks to blockchain",
		slog.Int("count", len(blocks)),
		slog.String("peer", peer))

	submitted := 0
	for i := len(blocks) - 1; i >= 0 && n.running.Load(); i-- {
		accepted, misbehaved := n.chain.SubmitBlock(blocks[i])
		submitted++

		if misbehaved {
			n.changeScore(peer, penaltyMisbehavedBlock)
		}
		if !accepted {
			st.failure.Store(true)
			n.changeScore(peer, penaltyRejectedBlock)
			n.logger.Warn("Blockchain rejected block",
				slog.Uint64("height", blocks[i].Height()),
				slog.String("id", blocks[i].ID()),
				slog.String("peer", peer))
			break
		}
	}
	n.metrics.recordSubmitted(submitted)
	n.currentHeight.Store(n.chain.TipHeight())
}

func reverseBlocks(in []*types.Block) []*types.Block {
	out := make([]*types.Block, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out
}
