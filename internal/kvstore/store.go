// Package kvstore provides the ephemeral keyed store shared by the identity
// core. It is the sole source of truth for revocation, lockout and MFA
// challenge state, so store failures must surface as errors and never be read
// as "absent".
package kvstore

import (
	"context"
	"errors"
	"time"
)

// namespace prefixes every key to keep identity-core state away from
// unrelated data living in the same store.
const namespace = "akademi:"

// ErrUnavailable indicates the backing store could not be reached.
var ErrUnavailable = errors.New("kvstore: store unavailable")

// Store is a TTL-capable key-value abstraction. A zero ttl means the key does
// not expire. Increment is atomic: on first creation the counter starts at 1
// and the supplied ttl is applied; subsequent increments keep the original
// expiry.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Key builds a namespaced store key from parts.
func Key(parts ...string) string {
	out := namespace
	for i, p := range parts {
		if i > 0 {
			out += ":"
		}
		out += p
	}
	return out
}
