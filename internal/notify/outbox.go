package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Outbox is a durable Sink backed by Postgres. Each notification is written
// under its natural key with a unique constraint, so emitting the same
// notification twice is a no-op. A relay job drains undelivered rows to the
// downstream stream and marks them delivered.
type Outbox struct {
	pool *pgxpool.Pool
}

// NewOutbox wraps pool. The notify_outbox table must exist (see scripts/seed).
func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Emit implements Sink.
func (o *Outbox) Emit(ctx context.Context, n Notification) error {
	_, err := o.pool.Exec(ctx,
		`INSERT INTO notify_outbox (sequence, op_id, topic, project_id, actor, token, role, amount, emitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (sequence, op_id, topic, project_id) DO NOTHING`,
		int64(n.Sequence), n.OpID, string(n.Topic), n.ProjectID,
		string(n.Actor), string(n.Token), n.Role, n.Amount, n.EmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("notify: outbox emit: %w", err)
	}
	return nil
}

// Pending returns undelivered notifications in emission order, at most limit.
func (o *Outbox) Pending(ctx context.Context, limit int32) ([]Notification, error) {
	rows, err := o.pool.Query(ctx,
		`SELECT sequence, op_id, topic, project_id, actor, token, role, amount, emitted_at
		 FROM notify_outbox WHERE delivered_at IS NULL
		 ORDER BY sequence ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: outbox pending: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n         Notification
			seq       int64
			opID      uuid.UUID
			topic     string
			actor     string
			token     string
			emittedAt time.Time
		)
		if err := rows.Scan(&seq, &opID, &topic, &n.ProjectID, &actor, &token, &n.Role, &n.Amount, &emittedAt); err != nil {
			return nil, fmt.Errorf("notify: outbox scan: %w", err)
		}
		n.Sequence = uint64(seq)
		n.OpID = opID
		n.Topic = Topic(topic)
		n.Actor = shared.Address(actor)
		n.Token = shared.Address(token)
		n.EmittedAt = emittedAt
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkDelivered stamps the given notification as relayed.
func (o *Outbox) MarkDelivered(ctx context.Context, n Notification) error {
	_, err := o.pool.Exec(ctx,
		`UPDATE notify_outbox SET delivered_at = NOW()
		 WHERE sequence = $1 AND op_id = $2 AND topic = $3 AND project_id = $4`,
		int64(n.Sequence), n.OpID, string(n.Topic), n.ProjectID)
	if err != nil {
		return fmt.Errorf("notify: outbox mark delivered: %w", err)
	}
	return nil
}

var _ Sink = (*Outbox)(nil)
