package p2p

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"arkchain/p2p/seeds"
	"arkchain/storage"
)

const (
	maxOutboundScan  = 8
	acceptWait       = 2 * time.Second
	dialTimeout      = 3 * time.Second
	dialCooldown     = 5 * time.Minute
	dialRetrySleep   = 100 * time.Millisecond
	dialBackoffSleep = 20 * time.Second
	infoInterval     = 2 * time.Second
	syncRetrySleep   = 20 * time.Second

	downloadWindow   = 6
	submitBatchLimit = 2000

	banScoreThreshold = 200

	penaltyBadPeerAddress  = 10
	penaltyRejectedBlock   = 25
	penaltyMalformedInfo   = 50
	penaltyMisbehavedBlock = 50
	penaltyGenesisMismatch = 250
)

// Config carries the network construction settings.
type Config struct {
	// ListenAddress is the local interface to bind, defaulting to all.
	ListenAddress string
	// Port is the TCP port peers dial and we listen on.
	Port uint
	// PublicAddress is our own externally visible IP, used to refuse
	// self-connections. Optional.
	PublicAddress string
	// Version is the dotted protocol version advertised to peers; peers
	// with a different major component are disconnected.
	Version string
	// SeedsFile is the bootstrap peer list path.
	SeedsFile string
	// Resolver resolves hostnames in the seed file.
	Resolver seeds.Resolver
	// Relay receives unconfirmed transactions pulled from new peers.
	Relay TxRelay
}

// Network is the peer-to-peer core: it discovers peers, keeps concurrent
// inbound and outbound connections, synchronizes the chain, relays blocks
// and transactions, and enforces misbehavior penalties.
type Network struct {
	cfg     Config
	logger  *slog.Logger
	chain   Chain
	peerDB  *PeerDB
	conns   *registry
	bans    *banList
	metrics *networkMetrics
	rng     *lockedRand

	listener *net.TCPListener

	statsMu sync.Mutex
	stats   map[string]PeerStats

	currentHeight atomic.Uint64
	bestHeight    atomic.Uint64

	running atomic.Bool
	quit    chan struct{}
	wg      sync.WaitGroup

	// Seams for tests.
	now      func() time.Time
	dialFn   func(addr string, timeout time.Duration) (net.Conn, error)
	clientFn func(conn net.Conn, incoming bool) Client

	localAddrs map[string]struct{}
}

// NewNetwork constructs the networking core: it seeds the peer database from
// the bootstrap file, seeds the PRNG (fatal on failure) and binds the
// listener (logged on failure, the node continues outbound-only).
func NewNetwork(logger *slog.Logger, chain Chain, db *storage.LevelDB, cfg Config) (*Network, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "p2p_network"))
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.SeedsFile == "" {
		cfg.SeedsFile = "peers.txt"
	}

	rng, err := newLockedRand()
	if err != nil {
		return nil, err
	}

	n := &Network{
		cfg:        cfg,
		logger:     logger,
		chain:      chain,
		peerDB:     newPeerDB(db),
		conns:      newRegistry(),
		bans:       newBanList(),
		metrics:    newNetworkMetrics(),
		rng:        rng,
		quit:       make(chan struct{}),
		stats:      make(map[string]PeerStats),
		now:        time.Now,
		localAddrs: gatherLocalAddrs(),
	}
	n.dialFn = func(addr string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}
	n.clientFn = NewClient

	if err := n.seedPeerDB(); err != nil {
		return nil, err
	}

	laddr := net.JoinHostPort(cfg.ListenAddress, strconv.FormatUint(uint64(cfg.Port), 10))
	tcpAddr, err := net.ResolveTCPAddr("tcp", laddr)
	if err == nil {
		n.listener, err = net.ListenTCP("tcp", tcpAddr)
	}
	if err != nil {
		n.logger.Error("Could not bind listener",
			slog.String("address", laddr),
			slog.Any("error", err))
		n.listener = nil
	}

	return n, nil
}

func (n *Network) seedPeerDB() error {
	addrs, err := seeds.Load(n.cfg.SeedsFile, n.cfg.Resolver, n.logger)
	if err != nil {
		if os.IsNotExist(err) {
			n.logger.Warn("Could not open peers file",
				slog.String("path", n.cfg.SeedsFile))
			return nil
		}
		return err
	}
	return n.peerDB.Seed(addrs)
}

// Start launches the four long-running workers.
func (n *Network) Start() {
	if !n.running.CompareAndSwap(false, true) {
		return
	}
	n.wg.Add(4)
	go n.acceptLoop()
	go n.dialLoop()
	go n.infoLoop()
	go n.syncLoop()
}

// Close stops all workers, waits for them to finish, closes the listener and
// flushes every remaining connection's cached info back to the peer
// database.
func (n *Network) Close() {
	if !n.running.CompareAndSwap(true, false) {
		return
	}
	close(n.quit)
	n.wg.Wait()
	if n.listener != nil {
		n.listener.Close()
	}

	tx, err := n.peerDB.Begin()
	if err != nil {
		n.logger.Error("Could not flush peer records on shutdown", slog.Any("error", err))
		return
	}
	for _, addr := range n.conns.Keys() {
		conn := n.conns.Erase(addr)
		if conn == nil {
			continue
		}
		if err := n.peerDB.Put(tx, addr, conn.CachedInfo()); err != nil {
			n.logger.Warn("Could not flush peer record",
				slog.String("peer", addr),
				slog.Any("error", err))
		}
		conn.Close()
	}
	if err := tx.Commit(); err != nil {
		n.logger.Error("Could not commit shutdown flush", slog.Any("error", err))
	}
	n.metrics.setConnected(0)
}

// Connections returns the number of registered peers.
func (n *Network) Connections() int {
	return n.conns.Len()
}

// ConnectedPeers returns the addresses of all registered peers.
func (n *Network) ConnectedPeers() []string {
	return n.conns.Keys()
}

// CurrentHeight returns the local tip height as last observed by the sync
// worker.
func (n *Network) CurrentHeight() uint64 {
	return n.currentHeight.Load()
}

// BestHeight returns the max of the local tip and all reported peer heights.
func (n *Network) BestHeight() uint64 {
	return n.bestHeight.Load()
}

// SyncProgress returns currentHeight / bestHeight.
func (n *Network) SyncProgress() float64 {
	best := n.bestHeight.Load()
	if best == 0 {
		return 0
	}
	return float64(n.currentHeight.Load()) / float64(best)
}

// PeerStats returns the informational stats map collected by the info
// worker.
func (n *Network) PeerStats() map[string]PeerStats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	out := make(map[string]PeerStats, len(n.stats))
	for addr, stats := range n.stats {
		out[addr] = stats
	}
	return out
}

func (n *Network) setPeerStats(addr string, stats PeerStats) {
	n.statsMu.Lock()
	n.stats[addr] = stats
	n.statsMu.Unlock()
}

func (n *Network) dropPeerStats(addr string) {
	n.statsMu.Lock()
	delete(n.stats, addr)
	n.statsMu.Unlock()
}

// changeScore applies a misbehavior penalty to a connected peer. Crossing
// the ban threshold inserts a 24-hour ban and flags the connection for
// disconnect; the flag is advisory and observed by the info worker.
func (n *Network) changeScore(addr string, delta uint64) {
	conn, ok := n.conns.Find(addr)
	if !ok {
		return
	}
	score := conn.cachedUint64("score") + delta
	conn.setCachedField("score", score)
	n.logger.Warn("Peer misbehaving, increasing ban score",
		slog.String("peer", addr),
		slog.Uint64("delta", delta),
		slog.Uint64("score", score))
	if score > banScoreThreshold {
		n.logger.Warn("Banning peer for exceeding the score threshold",
			slog.String("peer", addr))
		n.bans.ban(addr, uint64(n.now().Unix())+uint64(banDuration/time.Second))
		conn.setCachedField("disconnect", true)
		n.metrics.recordBan()
	}
}

// disconnectPeer flushes the connection's cached info to the peer database
// and erases it from the registry. The caller must hold the exclusive-use
// lock, which is released here after erasure.
func (n *Network) disconnectPeer(addr string, conn *Connection, tx *storage.Transaction, reason string) {
	n.logger.Warn("Disconnecting peer",
		slog.String("peer", addr),
		slog.String("reason", reason))
	if tx != nil {
		if err := n.peerDB.Put(tx, addr, conn.CachedInfo()); err != nil {
			n.logger.Warn("Could not flush peer record",
				slog.String("peer", addr),
				slog.Any("error", err))
		}
	}
	n.dropPeerStats(addr)
	n.conns.Erase(addr)
	conn.Release()
	conn.Close()
	n.metrics.recordDisconnect(reason)
	n.metrics.setConnected(n.conns.Len())
}

// isSelf reports whether the address names this node: the configured public
// address, any local interface address, loopback, or the unspecified/null
// address.
func (n *Network) isSelf(addr string) bool {
	if addr == "" {
		return true
	}
	if n.cfg.PublicAddress != "" && addr == n.cfg.PublicAddress {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		return true
	}
	_, ok := n.localAddrs[ip.String()]
	return ok
}

func gatherLocalAddrs() map[string]struct{} {
	out := make(map[string]struct{})
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			out[ipNet.IP.String()] = struct{}{}
		}
	}
	return out
}

// sleep waits for the duration or until shutdown, whichever comes first.
func (n *Network) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-n.quit:
	case <-timer.C:
	}
}

// shuffledKeys snapshots the registry addresses in random order so no peer
// is systematically favored.
func (n *Network) shuffledKeys() []string {
	keys := n.conns.Keys()
	n.rng.shuffle(keys)
	return keys
}

func (n *Network) majorVersion() string {
	return majorOf(n.cfg.Version)
}

func majorOf(version string) string {
	for i := 0; i < len(version); i++ {
		if version[i] == '.' {
			return version[:i]
		}
	}
	return version
}
