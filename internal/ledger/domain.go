// Package ledger implements the funding project lifecycle: registration,
// tracked multi-token deposits toward a goal, and oracle-verified release of
// held funds. Project records are split into a write-once config and a small
// write-many state so that high-frequency mutations stay cheap.
package ledger

import (
	"math/big"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// ProjectStatus is the lifecycle state of a project.
//
//	Funding ──► Active ──► Completed
//	    └──────────────────►┘
//	    └──► Expired
//	Active ──► Expired
//
// Completed and Expired are terminal.
type ProjectStatus string

const (
	// StatusFunding accepts donations.
	StatusFunding ProjectStatus = "funding"
	// StatusActive is fully funded; work in progress. Still accepts donations.
	StatusActive ProjectStatus = "active"
	// StatusCompleted means the proof verified and funds released.
	StatusCompleted ProjectStatus = "completed"
	// StatusExpired means the deadline passed without completion.
	StatusExpired ProjectStatus = "expired"
)

// Valid reports whether s is a defined status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusFunding, StatusActive, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s ProjectStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// ValidTransition reports whether from→to is a permitted forward move.
func ValidTransition(from, to ProjectStatus) bool {
	switch {
	case from == StatusFunding && to == StatusActive:
		return true
	case from == StatusFunding && to == StatusCompleted:
		return true
	case from == StatusFunding && to == StatusExpired:
		return true
	case from == StatusActive && to == StatusCompleted:
		return true
	case from == StatusActive && to == StatusExpired:
		return true
	}
	return false
}

// ProjectConfig is the immutable half of a project record, written once at
// registration and never mutated afterward.
type ProjectConfig struct {
	// ID is sequential from 0 with no gaps, never reused.
	ID uint64
	// Creator registered the project and receives released funds.
	Creator shared.Address
	// AcceptedTokens lists the funding assets, in registration order.
	AcceptedTokens []shared.Address
	// Goal is the target funding amount; always > 0.
	Goal *big.Int
	// ProofHash is the 32-byte digest the oracle's proof must match.
	ProofHash shared.Hash
	// Deadline is the unix timestamp by which the project must complete.
	Deadline int64
}

// AcceptsToken reports whether token is one of the accepted funding assets.
func (c ProjectConfig) AcceptsToken(token shared.Address) bool {
	for _, t := range c.AcceptedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// ProjectState is the mutable half of a project record. Kept deliberately
// small: deposits and verification rewrite only this entry (plus the touched
// balance entry), never the config.
type ProjectState struct {
	Status ProjectStatus
	// DonationCount counts distinct donor×token pairs; it never decreases.
	DonationCount uint32
}

// TokenBalance is the held amount of one accepted token.
type TokenBalance struct {
	Token   shared.Address `json:"token"`
	Balance *big.Int       `json:"balance"`
}

// Project is the reconstructed public view of a config, its state, and the
// per-token balances. It is never stored directly.
type Project struct {
	ID             uint64
	Creator        shared.Address
	AcceptedTokens []shared.Address
	Goal           *big.Int
	ProofHash      shared.Hash
	Deadline       int64
	Status         ProjectStatus
	DonationCount  uint32
	// Balances follows the registration order of AcceptedTokens.
	Balances []TokenBalance
}

// TotalBalance sums the held balances across all accepted tokens.
func (p Project) TotalBalance() *big.Int {
	total := new(big.Int)
	for _, b := range p.Balances {
		total.Add(total, b.Balance)
	}
	return total
}
