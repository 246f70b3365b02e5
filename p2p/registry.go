package p2p

import (
	"sync"
	"sync/atomic"
)

// registry is the concurrent map of connected peers, keyed by textual IP
// address. Mutation is linearizable under the write lock; Keys returns a
// point-in-time snapshot and Len is lock-free for the dialer's fast path.
type registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	count atomic.Int64
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*Connection)}
}

// Insert stores the connection under addr, returning any displaced previous
// owner for disposal by the caller.
func (r *registry) Insert(addr string, conn *Connection) *Connection {
	r.mu.Lock()
	prev := r.conns[addr]
	r.conns[addr] = conn
	if prev == nil {
		r.count.Add(1)
	}
	r.mu.Unlock()
	return prev
}

// Erase removes the entry. The caller must still hold the connection's
// exclusive-use lock so no other worker is mid-operation on it.
func (r *registry) Erase(addr string) *Connection {
	r.mu.Lock()
	conn := r.conns[addr]
	if conn != nil {
		delete(r.conns, addr)
		r.count.Add(-1)
	}
	r.mu.Unlock()
	return conn
}

// Find returns the connection for addr if present. The borrow does not
// extend the connection's lifetime past its registry entry; callers that
// need it beyond a quick call must Acquire it.
func (r *registry) Find(addr string) (*Connection, bool) {
	r.mu.RLock()
	conn, ok := r.conns[addr]
	r.mu.RUnlock()
	return conn, ok
}

// Contains reports whether addr is registered.
func (r *registry) Contains(addr string) bool {
	_, ok := r.Find(addr)
	return ok
}

// Keys returns a snapshot of the registered addresses, safe to iterate
// without holding the registry lock.
func (r *registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.conns))
	for addr := range r.conns {
		keys = append(keys, addr)
	}
	r.mu.RUnlock()
	return keys
}

// Len returns the current connection count without locking.
func (r *registry) Len() int {
	return int(r.count.Load())
}
