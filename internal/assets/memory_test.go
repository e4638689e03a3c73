package assets

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

const (
	usd   = shared.Address("token:usd")
	alice = shared.Address("addr:alice")
	bob   = shared.Address("addr:bob")
)

func TestTransferMovesExactAmount(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	ledger.Mint(usd, alice, big.NewInt(100))

	if err := ledger.Transfer(ctx, usd, alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	fromBal, _ := ledger.Balance(ctx, usd, alice)
	toBal, _ := ledger.Balance(ctx, usd, bob)
	if fromBal.Cmp(big.NewInt(60)) != 0 || toBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances: from=%v to=%v", fromBal, toBal)
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	ledger.Mint(usd, alice, big.NewInt(10))

	err := ledger.Transfer(ctx, usd, alice, bob, big.NewInt(11))
	if !errors.Is(err, shared.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Nothing moved.
	fromBal, _ := ledger.Balance(ctx, usd, alice)
	toBal, _ := ledger.Balance(ctx, usd, bob)
	if fromBal.Cmp(big.NewInt(10)) != 0 || toBal.Sign() != 0 {
		t.Fatalf("balances mutated on failed transfer: from=%v to=%v", fromBal, toBal)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	ledger.Mint(usd, alice, big.NewInt(10))

	if err := ledger.Transfer(ctx, usd, alice, bob, big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if err := ledger.Transfer(ctx, usd, alice, bob, big.NewInt(-5)); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestBalanceReturnsCopy(t *testing.T) {
	ledger := NewMemory()
	ctx := context.Background()
	ledger.Mint(usd, alice, big.NewInt(100))

	bal, _ := ledger.Balance(ctx, usd, alice)
	bal.SetInt64(0)

	again, _ := ledger.Balance(ctx, usd, alice)
	if again.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("internal balance mutated through returned value: %v", again)
	}
}
