package p2p

import (
	"sync"
	"time"
)

// banDuration is how long a peer stays banned after crossing the score
// threshold.
const banDuration = 24 * time.Hour

// banList maps peer addresses to ban expiry times. It lives in memory only;
// after a restart bans re-establish organically through score accumulation.
type banList struct {
	mu      sync.Mutex
	entries map[string]uint64
}

func newBanList() *banList {
	return &banList{entries: make(map[string]uint64)}
}

// ban records addr as banned until expiry (epoch seconds).
func (b *banList) ban(addr string, expiry uint64) {
	b.mu.Lock()
	b.entries[addr] = expiry
	b.mu.Unlock()
}

// isBanned reports whether addr holds an unexpired ban at now.
func (b *banList) isBanned(addr string, now time.Time) bool {
	b.mu.Lock()
	expiry, ok := b.entries[addr]
	b.mu.Unlock()
	return ok && expiry > uint64(now.Unix())
}

// expiry returns the recorded expiry for addr, if any.
func (b *banList) expiry(addr string) (uint64, bool) {
	b.mu.Lock()
	expiry, ok := b.entries[addr]
	b.mu.Unlock()
	return expiry, ok
}
