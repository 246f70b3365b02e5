package p2p

import (
	"log/slog"
	"net"

	"arkchain/storage"
)

// infoLoop polls each peer's info every two seconds.
func (n *Network) infoLoop() {
	defer n.wg.Done()
	for n.running.Load() {
		n.infoRound()
		n.sleep(infoInterval)
	}
}

// infoRound visits every acquirable connection once: refreshes cached info,
// harvests advertised peer addresses into the database and disconnects peers
// that misbehave or turned stale. All database writes for the round share a
// single transaction.
func (n *Network) infoRound() {
	tx, err := n.peerDB.Begin()
	if err != nil {
		n.logger.Error("Could not open peer database transaction", slog.Any("error", err))
		return
	}

	for _, addr := range n.shuffledKeys() {
		conn, ok := n.conns.Find(addr)
		if !ok || !conn.Acquire() {
			continue
		}
		if err := n.refreshPeer(tx, addr, conn); err != nil {
			n.logger.Warn("Failed to refresh peer, disconnecting it",
				slog.String("peer", addr),
				slog.Any("error", err))
			n.disconnectPeer(addr, conn, tx, "info")
			continue
		}
		conn.Release()
	}

	if err := tx.Commit(); err != nil {
		n.logger.Error("Could not commit info round", slog.Any("error", err))
	}
}

// refreshPeer performs one info exchange with a peer the caller has
// acquired. A returned error means the peer must be disconnected.
func (n *Network) refreshPeer(tx *storage.Transaction, addr string, conn *Connection) error {
	if conn.cachedBool("disconnect") {
		return netErrorf("disconnect requested")
	}

	info, err := conn.GetInfo()
	if err != nil {
		return err
	}

	version, err := info.String("version")
	if err != nil {
		n.changeScore(addr, penaltyMalformedInfo)
		return err
	}
	if majorOf(version) != n.majorVersion() {
		n.logger.Warn("Peer has a different major version than us",
			slog.String("peer", addr),
			slog.String("version", version))
		return netErrorf("peer has an incompatible major version")
	}

	if n.bans.isBanned(addr, n.now()) {
		return netErrorf("peer is banned")
	}

	tipHeight, err := info.Uint64("tipHeight")
	if err != nil {
		n.changeScore(addr, penaltyMalformedInfo)
		return err
	}
	conn.setCachedField("version", version)
	conn.setCachedField("height", tipHeight)

	stats := conn.Stats()
	stats.Version = version
	stats.BlockHeight = tipHeight
	n.setPeerStats(addr, stats)

	peerAddrs, err := info.Strings("peers")
	if err != nil {
		n.changeScore(addr, penaltyMalformedInfo)
		return err
	}
	for _, peerAddr := range peerAddrs {
		ip := net.ParseIP(peerAddr)
		if ip == nil {
			n.changeScore(addr, penaltyBadPeerAddress)
			return netErrorf("peer sent a malformed peer address %q", peerAddr)
		}
		inserted, err := n.peerDB.InsertDefault(tx, ip.String())
		if err != nil {
			n.logger.Warn("Could not record discovered peer",
				slog.String("peer", ip.String()),
				slog.Any("error", err))
			continue
		}
		if inserted {
			n.logger.Info("Discovered new peer", slog.String("peer", ip.String()))
		}
	}

	conn.setCachedField("lastseen", uint64(n.now().Unix()))
	if err := n.peerDB.Put(tx, addr, conn.CachedInfo()); err != nil {
		n.logger.Warn("Could not persist refreshed peer record",
			slog.String("peer", addr),
			slog.Any("error", err))
	}
	return nil
}
