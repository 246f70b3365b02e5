package p2p

import (
	"log/slog"
	"net"
)

// acceptLoop waits on the listening socket in bounded slices so the running
// flag is observed between accepts.
func (n *Network) acceptLoop() {
	defer n.wg.Done()
	if n.listener == nil {
		return
	}
	for n.running.Load() {
		n.acceptOne()
	}
}

func (n *Network) acceptOne() {
	if err := n.listener.SetDeadline(n.now().Add(acceptWait)); err != nil {
		n.logger.Error("Could not arm accept deadline", slog.Any("error", err))
		return
	}
	tcp, err := n.listener.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		n.logger.Warn("Accept failed", slog.Any("error", err))
		return
	}
	n.handleInbound(tcp)
}

// handleInbound vets and handshakes a fresh inbound connection, registering
// it on success and persisting the record in the same breath.
func (n *Network) handleInbound(tcp net.Conn) {
	host, _, err := net.SplitHostPort(tcp.RemoteAddr().String())
	if err != nil {
		tcp.Close()
		return
	}

	if n.conns.Contains(host) {
		n.logger.Info("Incoming connection duplicates existing connection",
			slog.String("peer", host))
		tcp.Close()
		return
	}
	if n.bans.isBanned(host, n.now()) {
		n.logger.Info("Incoming connection is banned", slog.String("peer", host))
		tcp.Close()
		return
	}
	if n.isSelf(host) {
		n.logger.Info("Incoming connection is connecting to self",
			slog.String("peer", host))
		tcp.Close()
		return
	}

	n.logger.Info("Peer connected", slog.String("peer", tcp.RemoteAddr().String()))

	conn := newConnection(n.clientFn(tcp, true))
	conn.Acquire()
	defer conn.Release()

	info, err := conn.GetInfo()
	if err != nil {
		n.logger.Warn("Could not get information from connecting peer",
			slog.String("peer", host),
			slog.Any("error", err))
		conn.Close()
		n.metrics.recordHandshake("inbound", "failure")
		return
	}

	tipHeight, err := info.Uint64("tipHeight")
	if err == nil {
		var version string
		version, err = info.String("version")
		if err == nil {
			conn.setCachedField("height", tipHeight)
			conn.setCachedField("version", version)
		}
	}
	if err != nil {
		n.logger.Warn("Incoming peer sent invalid info message",
			slog.String("peer", host),
			slog.Any("error", err))
		conn.Close()
		n.metrics.recordHandshake("inbound", "failure")
		return
	}

	conn.setCachedField("lastseen", uint64(n.now().Unix()))
	conn.setCachedField("score", uint64(0))

	if prev := n.conns.Insert(host, conn); prev != nil {
		prev.Close()
	}
	n.metrics.recordHandshake("inbound", "success")
	n.metrics.setConnected(n.conns.Len())

	tx, err := n.peerDB.Begin()
	if err != nil {
		n.logger.Warn("Could not persist inbound peer", slog.Any("error", err))
		return
	}
	if err := n.peerDB.Put(tx, host, conn.CachedInfo()); err != nil {
		tx.Discard()
		n.logger.Warn("Could not persist inbound peer",
			slog.String("peer", host),
			slog.Any("error", err))
		return
	}
	if err := tx.Commit(); err != nil {
		n.logger.Warn("Could not persist inbound peer", slog.Any("error", err))
	}
}
