package p2p

import (
	"sync"

	"arkchain/core/types"
)

// Connection owns the RPC handle for one remote peer together with the
// cached info mapping. Three independent locks guard it:
//
//   - useMu, the exclusive-use lock, reserves the connection for a worker's
//     multi-step operation; it is only ever taken non-blockingly.
//   - modMu serializes RPC calls so one request is in flight per peer.
//   - infoMu guards the cached info so stats readers never block RPC.
//
// When more than one is needed the order is useMu, modMu, infoMu; infoMu may
// also be taken alone.
type Connection struct {
	useMu  sync.Mutex
	modMu  sync.Mutex
	infoMu sync.Mutex

	client Client
	info   Info
}

func newConnection(client Client) *Connection {
	return &Connection{
		client: client,
		info:   make(Info),
	}
}

// Acquire attempts to reserve the connection for a multi-step operation. It
// never blocks; callers skip the peer for this round on failure.
func (c *Connection) Acquire() bool {
	return c.useMu.TryLock()
}

// Release returns the connection after a successful Acquire.
func (c *Connection) Release() {
	c.useMu.Unlock()
}

// GetInfo fetches the remote peer's current info.
func (c *Connection) GetInfo() (Info, error) {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.GetInfo()
}

// SendTransactions relays transactions to the peer.
func (c *Connection) SendTransactions(txs []*types.Transaction) error {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.SendTransactions(txs)
}

// SendBlock relays a block to the peer.
func (c *Connection) SendBlock(block *types.Block) error {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.SendBlock(block)
}

// GetUnconfirmedTransactions pulls the peer's mempool contents.
func (c *Connection) GetUnconfirmedTransactions() ([]*types.Transaction, error) {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.GetUnconfirmedTransactions()
}

// GetBlock fetches a single block by height and id.
func (c *Connection) GetBlock(height uint64, id string) (*types.Block, error) {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.GetBlock(height, id)
}

// GetBlocks fetches the inclusive height window [start, end].
func (c *Connection) GetBlocks(start, end uint64) ([]*types.Block, error) {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.GetBlocks(start, end)
}

// Stats returns the handle's transport counters.
func (c *Connection) Stats() PeerStats {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.Stats()
}

// Close tears down the underlying transport.
func (c *Connection) Close() error {
	c.modMu.Lock()
	defer c.modMu.Unlock()
	return c.client.Close()
}

// CachedInfo returns a copy of the cached info mapping.
func (c *Connection) CachedInfo() Info {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.info.Clone()
}

func (c *Connection) setCachedInfo(info Info) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.info = info.Clone()
}

func (c *Connection) setCachedField(key string, value any) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	c.info[key] = value
}

func (c *Connection) cachedUint64(key string) uint64 {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.info.Uint64Default(key, 0)
}

func (c *Connection) cachedString(key string) string {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	s, _ := c.info.String(key)
	return s
}

func (c *Connection) cachedBool(key string) bool {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()
	return c.info.Bool(key)
}
