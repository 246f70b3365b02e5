package p2p

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// lockedRand is the shared shuffle source. It is seeded once at network
// construction from OS entropy; math/rand.Rand itself is not safe for
// concurrent use, so every draw holds the mutex.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// newLockedRand seeds a deterministic PRNG from 64 bytes of OS entropy
// folded to 64 bits. Failure to gather entropy is fatal to construction.
func newLockedRand() (*lockedRand, error) {
	seedBuf := make([]byte, 64)
	if _, err := cryptorand.Read(seedBuf); err != nil {
		return nil, fmt.Errorf("seed prng: %w", err)
	}
	var seed uint64
	for off := 0; off < len(seedBuf); off += 8 {
		seed ^= binary.LittleEndian.Uint64(seedBuf[off:])
	}
	return &lockedRand{rng: rand.New(rand.NewSource(int64(seed)))}, nil
}

// shuffle permutes the slice in place.
func (r *lockedRand) shuffle(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
}
