package p2p

import (
	"errors"
	"fmt"
)

// ErrNetwork covers any transport failure or malformed peer message. It is
// always recoverable by disconnecting the offending peer and continuing.
var ErrNetwork = errors.New("p2p: network error")

// ErrMalformedInfo marks a schema violation in a peer's info payload. It is
// a network error with an attached score penalty.
var ErrMalformedInfo = fmt.Errorf("malformed info: %w", ErrNetwork)

// IsNetworkError reports whether the error is recoverable by dropping the
// peer.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func netErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNetwork, fmt.Sprintf(format, args...))
}
