package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

const (
	defaultStreamKey = "pifp:events"
	cursorKeyPrefix  = "pifp:events:cursor:"
)

// Stream publishes notifications onto a Redis stream for downstream pollers.
// Consumers replay by range and persist a resume cursor; the natural delivery
// key travels with every entry so replays stay idempotent on their side.
type Stream struct {
	client *redis.Client
	key    string
}

// NewStream wraps client. An empty key selects the default stream.
func NewStream(client *redis.Client, key string) *Stream {
	if key == "" {
		key = defaultStreamKey
	}
	return &Stream{client: client, key: key}
}

// Emit implements Sink.
func (s *Stream) Emit(ctx context.Context, n Notification) error {
	values := map[string]interface{}{
		"key":        n.Key(),
		"sequence":   strconv.FormatUint(n.Sequence, 10),
		"op_id":      n.OpID.String(),
		"topic":      string(n.Topic),
		"project_id": strconv.FormatInt(n.ProjectID, 10),
		"actor":      string(n.Actor),
		"token":      string(n.Token),
		"role":       n.Role,
		"amount":     n.Amount,
		"emitted_at": n.EmittedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: s.key, Values: values}).Err(); err != nil {
		return fmt.Errorf("notify: xadd: %w", err)
	}
	return nil
}

// Range replays stream entries between the given stream ids ("-" and "+" for
// the open ends), at most count at a time. It returns the decoded
// notifications together with the id of the last entry read, which callers
// persist as their resume cursor.
func (s *Stream) Range(ctx context.Context, from, to string, count int64) ([]Notification, string, error) {
	if from == "" {
		from = "-"
	}
	if to == "" {
		to = "+"
	}
	messages, err := s.client.XRangeN(ctx, s.key, from, to, count).Result()
	if err != nil {
		return nil, "", fmt.Errorf("notify: xrange: %w", err)
	}
	out := make([]Notification, 0, len(messages))
	last := ""
	for _, msg := range messages {
		n, err := decodeStreamValues(msg.Values)
		if err != nil {
			return nil, "", err
		}
		out = append(out, n)
		last = msg.ID
	}
	return out, last, nil
}

// SaveCursor persists the resume position for the named consumer.
func (s *Stream) SaveCursor(ctx context.Context, consumer, streamID string) error {
	if err := s.client.Set(ctx, cursorKeyPrefix+consumer, streamID, 0).Err(); err != nil {
		return fmt.Errorf("notify: save cursor: %w", err)
	}
	return nil
}

// LoadCursor returns the stored resume position for the named consumer, or
// "" when the consumer has never polled.
func (s *Stream) LoadCursor(ctx context.Context, consumer string) (string, error) {
	id, err := s.client.Get(ctx, cursorKeyPrefix+consumer).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("notify: load cursor: %w", err)
	}
	return id, nil
}

func decodeStreamValues(values map[string]interface{}) (Notification, error) {
	get := func(field string) string {
		v, _ := values[field].(string)
		return v
	}
	seq, err := strconv.ParseUint(get("sequence"), 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("notify: decode sequence: %w", err)
	}
	opID, err := uuid.Parse(get("op_id"))
	if err != nil {
		return Notification{}, fmt.Errorf("notify: decode op id: %w", err)
	}
	projectID, err := strconv.ParseInt(get("project_id"), 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("notify: decode project id: %w", err)
	}
	emittedAt, err := time.Parse(time.RFC3339Nano, get("emitted_at"))
	if err != nil {
		return Notification{}, fmt.Errorf("notify: decode emitted at: %w", err)
	}
	return Notification{
		Sequence:  seq,
		OpID:      opID,
		Topic:     Topic(get("topic")),
		ProjectID: projectID,
		Actor:     shared.Address(get("actor")),
		Token:     shared.Address(get("token")),
		Role:      get("role"),
		Amount:    get("amount"),
		EmittedAt: emittedAt,
	}, nil
}

var _ Sink = (*Stream)(nil)
