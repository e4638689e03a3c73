package ledger

import (
	"fmt"
	"math/big"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Standing properties every mutation must preserve. They sit outside normal
// runtime control flow: the compliance test suite and audits re-check them
// after every operation in every scenario.

// CheckGoalPositive verifies the funding goal is strictly positive.
func CheckGoalPositive(p Project) error {
	if p.Goal == nil || p.Goal.Sign() <= 0 {
		return fmt.Errorf("project %d has non-positive goal", p.ID)
	}
	return nil
}

// CheckDeadlinePositive verifies the deadline is a positive timestamp.
func CheckDeadlinePositive(p Project) error {
	if p.Deadline <= 0 {
		return fmt.Errorf("project %d has non-positive deadline", p.ID)
	}
	return nil
}

// CheckBalancesNonNegative verifies no per-token balance is negative.
func CheckBalancesNonNegative(p Project) error {
	for _, b := range p.Balances {
		if b.Balance == nil || b.Balance.Sign() < 0 {
			return fmt.Errorf("project %d has negative balance for token %s", p.ID, b.Token)
		}
	}
	return nil
}

// CheckDepositArithmetic verifies balance_after == balance_before + amount,
// exactly.
func CheckDepositArithmetic(before, after, amount *big.Int) error {
	want := new(big.Int).Add(before, amount)
	if after.Cmp(want) != 0 {
		return fmt.Errorf("deposit arithmetic broken: %s + %s != %s", before, amount, after)
	}
	return nil
}

// CheckSequentialIDs verifies projects carry ids 0..N-1 in order, no gaps.
func CheckSequentialIDs(projects []Project) error {
	for i, p := range projects {
		if p.ID != uint64(i) {
			return fmt.Errorf("expected id %d, got %d", i, p.ID)
		}
	}
	return nil
}

// CheckStatusTransition verifies from→to is a permitted forward move.
func CheckStatusTransition(from, to ProjectStatus) error {
	if from == to {
		return nil
	}
	if !ValidTransition(from, to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	return nil
}

// CheckImmutableFields verifies the creation-time fields never changed.
func CheckImmutableFields(original, current Project) error {
	if original.ID != current.ID {
		return fmt.Errorf("project id changed: %d -> %d", original.ID, current.ID)
	}
	if original.Creator != current.Creator {
		return fmt.Errorf("project %d creator changed", original.ID)
	}
	if len(original.AcceptedTokens) != len(current.AcceptedTokens) {
		return fmt.Errorf("project %d accepted tokens changed", original.ID)
	}
	for i := range original.AcceptedTokens {
		if original.AcceptedTokens[i] != current.AcceptedTokens[i] {
			return fmt.Errorf("project %d accepted tokens changed", original.ID)
		}
	}
	if original.Goal.Cmp(current.Goal) != 0 {
		return fmt.Errorf("project %d goal changed", original.ID)
	}
	if original.ProofHash != current.ProofHash {
		return fmt.Errorf("project %d proof hash changed", original.ID)
	}
	if original.Deadline != current.Deadline {
		return fmt.Errorf("project %d deadline changed", original.ID)
	}
	return nil
}

// CheckDonationCountMonotonic verifies the unique donor×token counter never
// decreases.
func CheckDonationCountMonotonic(before, after uint32) error {
	if after < before {
		return fmt.Errorf("donation count decreased: %d -> %d", before, after)
	}
	return nil
}

// CheckProject runs every stateless project invariant.
func CheckProject(p Project) error {
	if err := CheckGoalPositive(p); err != nil {
		return err
	}
	if err := CheckDeadlinePositive(p); err != nil {
		return err
	}
	return CheckBalancesNonNegative(p)
}

// Checker snapshots a project before an operation and re-validates the full
// invariant battery against the project afterward.
type Checker struct {
	snapshot Project
	taken    bool
}

// Snapshot records the pre-operation view.
func (c *Checker) Snapshot(p Project) {
	c.snapshot = cloneProject(p)
	c.taken = true
}

// Verify checks the post-operation view against the snapshot and the
// stateless invariants.
func (c *Checker) Verify(current Project) error {
	if err := CheckProject(current); err != nil {
		return err
	}
	if !c.taken {
		return nil
	}
	if err := CheckImmutableFields(c.snapshot, current); err != nil {
		return err
	}
	if err := CheckStatusTransition(c.snapshot.Status, current.Status); err != nil {
		return err
	}
	return CheckDonationCountMonotonic(c.snapshot.DonationCount, current.DonationCount)
}

func cloneProject(p Project) Project {
	clone := p
	clone.Goal = new(big.Int).Set(p.Goal)
	clone.AcceptedTokens = append([]shared.Address(nil), p.AcceptedTokens...)
	clone.Balances = make([]TokenBalance, 0, len(p.Balances))
	for _, b := range p.Balances {
		clone.Balances = append(clone.Balances, TokenBalance{Token: b.Token, Balance: new(big.Int).Set(b.Balance)})
	}
	return clone
}
