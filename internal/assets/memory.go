package assets

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Memory is an in-process token ledger with a mint faucet. Tests use it in
// place of the real asset layer.
type Memory struct {
	mu       sync.Mutex
	balances map[shared.Address]map[shared.Address]*big.Int
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[shared.Address]map[shared.Address]*big.Int)}
}

// Mint credits amount of token to addr.
func (m *Memory) Mint(token, addr shared.Address, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(token, addr, amount)
}

// Transfer implements the Transfer interface.
func (m *Memory) Transfer(ctx context.Context, token, from, to shared.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("assets: transfer amount must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	have := m.balance(token, from)
	if have.Cmp(amount) < 0 {
		return shared.ErrInsufficientBalance
	}
	m.credit(token, from, new(big.Int).Neg(amount))
	m.credit(token, to, amount)
	return nil
}

// Balance implements the Transfer interface.
func (m *Memory) Balance(ctx context.Context, token, addr shared.Address) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.balance(token, addr)), nil
}

func (m *Memory) balance(token, addr shared.Address) *big.Int {
	if accounts, ok := m.balances[token]; ok {
		if bal, ok := accounts[addr]; ok {
			return bal
		}
	}
	return new(big.Int)
}

func (m *Memory) credit(token, addr shared.Address, amount *big.Int) {
	accounts, ok := m.balances[token]
	if !ok {
		accounts = make(map[shared.Address]*big.Int)
		m.balances[token] = accounts
	}
	current, ok := accounts[addr]
	if !ok {
		current = new(big.Int)
	}
	accounts[addr] = new(big.Int).Add(current, amount)
}

var _ Transfer = (*Memory)(nil)
