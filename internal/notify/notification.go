// Package notify carries the structured notifications the ledger core emits
// for downstream observers. A separate indexing service polls and replays the
// stream; deliveries are keyed by a natural tuple so re-delivery of the same
// notification never double-counts.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Topic names a notification kind. Values match the topics the downstream
// indexer recognises.
type Topic string

const (
	TopicCreated  Topic = "created"
	TopicFunded   Topic = "funded"
	TopicVerified Topic = "verified"
	TopicReleased Topic = "released"
	TopicRoleSet  Topic = "role_set"
	TopicRoleDel  Topic = "role_del"
	TopicPaused   Topic = "paused"
	TopicUnpaused Topic = "unpaused"
)

// NoProject marks notifications that are not scoped to a project id.
const NoProject = int64(-1)

// Notification is one structured message emitted by a mutating operation.
// Amount is a decimal string so values beyond 64-bit range survive JSON
// round-trips exactly.
type Notification struct {
	Sequence  uint64         `json:"sequence"`
	OpID      uuid.UUID      `json:"op_id"`
	Topic     Topic          `json:"topic"`
	ProjectID int64          `json:"project_id"`
	Actor     shared.Address `json:"actor,omitempty"`
	Token     shared.Address `json:"token,omitempty"`
	Role      string         `json:"role,omitempty"`
	Amount    string         `json:"amount,omitempty"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// Key returns the idempotency tuple identifying this delivery.
func (n Notification) Key() string {
	return fmt.Sprintf("%d:%s:%s:%s", n.Sequence, n.OpID, n.Topic, strconv.FormatInt(n.ProjectID, 10))
}

// Sink receives notifications from the core. Emit must tolerate re-delivery
// of an identical notification without duplicating it.
type Sink interface {
	Emit(ctx context.Context, n Notification) error
}
