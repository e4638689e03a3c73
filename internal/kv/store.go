// Package kv provides the persistent key-value abstraction the ledger core
// stores its records in. Entries carry a bounded retention that is extended
// lazily: whenever the remaining lifetime of an entry drops below a tier's
// threshold, the retention is reset to the tier's extension window. This
// trades eager always-live storage for amortized, per-entry renewal.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist or its retention elapsed.
var ErrNotFound = errors.New("kv: key not found")

// Store is the persistence contract consumed by the role registry and the
// project store. Implementations must make Get/Set/ExtendRetention safe for
// concurrent use.
type Store interface {
	// Get returns the stored value, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key with the given retention window.
	Set(ctx context.Context, key string, value []byte, retention time.Duration) error
	// Remaining reports the lifetime left for key, or ErrNotFound.
	Remaining(ctx context.Context, key string) (time.Duration, error)
	// ExtendRetention resets the retention of key to extendTo when the
	// remaining lifetime is below threshold. Extending a missing key is a
	// no-op so that reads and renewals can be freely interleaved.
	ExtendRetention(ctx context.Context, key string, threshold, extendTo time.Duration) error
	// SetMulti applies every entry or none of them. Operations that span
	// several keys persist through this so a fault cannot leave half an
	// operation behind.
	SetMulti(ctx context.Context, entries []Entry) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Entry is one pending write inside a SetMulti batch.
type Entry struct {
	Key       string
	Value     []byte
	Retention time.Duration
}

// Day is the retention accounting unit.
const Day = 24 * time.Hour

// Tier bundles the renewal parameters of one storage class.
type Tier struct {
	// Threshold is the remaining lifetime below which renewal kicks in.
	Threshold time.Duration
	// Extend is the retention window a renewed entry receives.
	Extend time.Duration
}

// Renewal tiers used by the ledger. Instance entries (counters, references,
// flags) ride a short cycle; per-project entries ride a longer one and renew
// independently, so a seldom-read config and a frequently-written state can
// expire-renew on different cadences.
var (
	InstanceTier   = Tier{Threshold: 1 * Day, Extend: 7 * Day}
	PersistentTier = Tier{Threshold: 7 * Day, Extend: 30 * Day}
)

// Renew applies the tier's renewal rule to key.
func (t Tier) Renew(ctx context.Context, store Store, key string) error {
	return store.ExtendRetention(ctx, key, t.Threshold, t.Extend)
}
