package p2p

import (
	"log/slog"
	"net"
	"strconv"
)

// dialLoop periodically scans the peer database for dial candidates. Once
// enough connections exist the worker backs off rather than rescanning hot.
func (n *Network) dialLoop() {
	defer n.wg.Done()
	for n.running.Load() {
		if n.dialRound() {
			n.sleep(dialBackoffSleep)
		} else {
			n.sleep(dialRetrySleep)
		}
	}
}

// dialRound scans a stable snapshot of the peer database and dials the
// surviving candidates in random order. It reports whether the dialer should
// back off because the connection target is met.
func (n *Network) dialRound() (wait bool) {
	snap, err := n.peerDB.Snapshot()
	if err != nil {
		n.logger.Error("Could not snapshot peer database", slog.Any("error", err))
		return true
	}
	defer snap.Release()

	var candidates []string
	records := make(map[string]Info)

	it := n.peerDB.Iterator(snap)
	for it.Next() {
		if n.conns.Len() >= maxOutboundScan {
			wait = true
			break
		}

		addr := it.Key()
		rec, err := DecodeRecord(it.Value())
		if err != nil {
			n.logger.Warn("Skipping undecodable peer record",
				slog.String("peer", addr),
				slog.Any("error", err))
			continue
		}

		if n.conns.Contains(addr) {
			continue
		}
		now := n.now()
		if n.bans.isBanned(addr, now) {
			continue
		}

		// A successful attempt leaves lastattempt == lastseen; the
		// inequality keeps us off recently-failed peers while allowing
		// immediate retries to known-good ones.
		lastAttempt := rec.Uint64Default("lastattempt", 0)
		lastSeen := rec.Uint64Default("lastseen", 0)
		if lastAttempt+uint64(dialCooldown.Seconds()) > uint64(now.Unix()) && lastAttempt != lastSeen {
			continue
		}

		if n.isSelf(addr) {
			continue
		}

		candidates = append(candidates, addr)
		records[addr] = rec
	}
	if err := it.Release(); err != nil {
		n.logger.Warn("Peer database scan failed", slog.Any("error", err))
	}
	if wait {
		return true
	}

	n.rng.shuffle(candidates)
	for _, addr := range candidates {
		if !n.running.Load() {
			break
		}
		n.dialPeer(addr, records[addr])
	}
	return false
}

// dialPeer attempts one outbound connection. On success the connection is
// registered with its cached info primed from the stored record; on failure
// only the attempt timestamp is persisted.
func (n *Network) dialPeer(addr string, rec Info) {
	target := net.JoinHostPort(addr, strconv.FormatUint(uint64(n.cfg.Port), 10))
	n.logger.Info("Attempting to connect to peer", slog.String("peer", addr))

	now := uint64(n.now().Unix())
	tcp, err := n.dialFn(target, dialTimeout)
	if err != nil {
		n.logger.Warn("Failed to connect to peer",
			slog.String("peer", addr),
			slog.Any("error", err))
		rec = rec.Clone()
		rec["lastattempt"] = now
		n.persistRecord(addr, rec)
		n.metrics.recordHandshake("outbound", "failure")
		return
	}
	n.logger.Info("Successfully connected to peer", slog.String("peer", addr))

	conn := newConnection(n.clientFn(tcp, false))
	rec = rec.Clone()
	rec["lastseen"] = now
	rec["lastattempt"] = now
	rec["score"] = uint64(0)
	conn.setCachedInfo(rec)

	if n.cfg.Relay != nil {
		if txs, err := conn.GetUnconfirmedTransactions(); err != nil {
			n.logger.Warn("Could not pull unconfirmed transactions",
				slog.String("peer", addr),
				slog.Any("error", err))
		} else if len(txs) > 0 {
			n.cfg.Relay(txs)
		}
	}

	if prev := n.conns.Insert(addr, conn); prev != nil {
		prev.Close()
	}
	n.persistRecord(addr, conn.CachedInfo())
	n.metrics.recordHandshake("outbound", "success")
	n.metrics.setConnected(n.conns.Len())
}

func (n *Network) persistRecord(addr string, rec Info) {
	tx, err := n.peerDB.Begin()
	if err != nil {
		n.logger.Warn("Could not persist peer record", slog.Any("error", err))
		return
	}
	if err := n.peerDB.Put(tx, addr, rec); err != nil {
		tx.Discard()
		n.logger.Warn("Could not persist peer record",
			slog.String("peer", addr),
			slog.Any("error", err))
		return
	}
	if err := tx.Commit(); err != nil {
		n.logger.Warn("Could not persist peer record", slog.Any("error", err))
	}
}
