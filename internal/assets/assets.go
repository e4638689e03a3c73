// Package assets abstracts the value-transfer mechanism the ledger core
// delegates to. The core calls it synchronously and treats any failure as an
// all-or-nothing abort of the enclosing operation.
package assets

import (
	"context"
	"math/big"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Transfer moves token balances between addresses. Implementations must be
// atomic per call: either the full amount moves or nothing does.
type Transfer interface {
	Transfer(ctx context.Context, token, from, to shared.Address, amount *big.Int) error
	Balance(ctx context.Context, token, addr shared.Address) (*big.Int, error)
}
