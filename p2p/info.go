package p2p

import (
	"encoding/json"
	"fmt"
	"math"
)

// Info is the free-form metadata mapping exchanged with peers and cached per
// connection. Fields arrive from JSON, so numeric values may be float64 as
// well as the native integer types written locally. Typed accessors turn
// schema violations into ErrMalformedInfo.
type Info map[string]any

// Uint64 returns the named field as an unsigned integer.
func (in Info) Uint64(key string) (uint64, error) {
	raw, ok := in[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedInfo, key)
	}
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("%w: field %q is negative", ErrMalformedInfo, key)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("%w: field %q is negative", ErrMalformedInfo, key)
		}
		return uint64(v), nil
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: field %q is not an unsigned integer", ErrMalformedInfo, key)
		}
		return uint64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: field %q is not an unsigned integer", ErrMalformedInfo, key)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("%w: field %q has type %T", ErrMalformedInfo, key, raw)
	}
}

// Uint64Default returns the named field or a fallback when it is absent.
func (in Info) Uint64Default(key string, fallback uint64) uint64 {
	if _, ok := in[key]; !ok {
		return fallback
	}
	v, err := in.Uint64(key)
	if err != nil {
		return fallback
	}
	return v
}

// String returns the named field as a string.
func (in Info) String(key string) (string, error) {
	raw, ok := in[key]
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrMalformedInfo, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q has type %T", ErrMalformedInfo, key, raw)
	}
	return s, nil
}

// Bool returns the named field as a boolean; absent fields read false.
func (in Info) Bool(key string) bool {
	raw, ok := in[key]
	if !ok {
		return false
	}
	b, _ := raw.(bool)
	return b
}

// Strings returns the named field as a list of strings.
func (in Info) Strings(key string) ([]string, error) {
	raw, ok := in[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing field %q", ErrMalformedInfo, key)
	}
	switch v := raw.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: field %q holds a non-string element", ErrMalformedInfo, key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: field %q has type %T", ErrMalformedInfo, key, raw)
	}
}

// Clone returns a shallow copy of the mapping.
func (in Info) Clone() Info {
	out := make(Info, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
