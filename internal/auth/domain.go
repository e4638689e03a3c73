package auth

import (
	"time"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// APIKey is an issued credential bound to a ledger address. The secret is
// stored only as a bcrypt hash; the plaintext exists once, at issue time.
type APIKey struct {
	ID         string
	SecretHash string
	Actor      shared.Address
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether the key may still authenticate.
func (k APIKey) Active() bool {
	return k.RevokedAt == nil
}
