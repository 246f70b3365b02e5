package types

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
)

// Transaction is the unit of relay between peers. The networking core treats
// its contents as opaque; only the identifier matters for deduplication.
type Transaction struct {
	Nonce uint64 `json:"nonce"`
	From  []byte `json:"from"`
	To    []byte `json:"to"`
	Value uint64 `json:"value"`
	Data  []byte `json:"data,omitempty"`
}

// ID returns the hex-encoded blake3 digest of the canonical JSON encoding.
func (tx *Transaction) ID() string {
	b, err := json.Marshal(tx)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
