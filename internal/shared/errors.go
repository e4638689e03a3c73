package shared

import "errors"

// Typed failure kinds shared across the ledger core. Every mutating operation
// aborts on the first error with zero state mutation; callers translate these
// into their own response shapes.
var (
	// ErrProjectNotFound indicates the project id was never registered.
	ErrProjectNotFound = errors.New("project not found")
	// ErrMilestoneNotFound indicates a missing milestone record.
	ErrMilestoneNotFound = errors.New("milestone not found")
	// ErrMilestoneAlreadyReleased indicates funds were already released.
	ErrMilestoneAlreadyReleased = errors.New("milestone already released")
	// ErrInsufficientBalance indicates the payer cannot cover the transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidMilestones indicates invalid registration or funding input.
	ErrInvalidMilestones = errors.New("invalid milestones")
	// ErrNotAuthorized indicates the caller lacks the required role.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrGoalMismatch indicates a funding goal inconsistency.
	ErrGoalMismatch = errors.New("goal mismatch")
	// ErrAlreadyInitialized indicates init was called more than once.
	ErrAlreadyInitialized = errors.New("already initialized")
	// ErrRoleNotFound indicates the target address holds no role.
	ErrRoleNotFound = errors.New("role not found")
	// ErrProtocolPaused indicates mutations are suspended protocol-wide.
	ErrProtocolPaused = errors.New("protocol paused")
	// ErrInvalidCredentials indicates an unknown or revoked API key.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
