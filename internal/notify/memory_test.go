package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func sample(seq uint64, topic Topic) Notification {
	return Notification{
		Sequence:  seq,
		OpID:      uuid.MustParse("8f14e45f-ceea-467f-a8cb-000000000001"),
		Topic:     topic,
		ProjectID: 0,
		Actor:     "addr:actor",
		Token:     "token:usd",
		Amount:    "250",
		EmittedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestMemorySinkDeduplicates(t *testing.T) {
	sink := NewMemory()
	ctx := context.Background()

	n := sample(1, TopicFunded)
	if err := sink.Emit(ctx, n); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := sink.Emit(ctx, n); err != nil {
		t.Fatalf("re-emit: %v", err)
	}

	if got := sink.Notifications(); len(got) != 1 {
		t.Fatalf("expected 1 notification after duplicate delivery, got %d", len(got))
	}
}

func TestMemorySinkOrdersAndDistinguishesTopics(t *testing.T) {
	sink := NewMemory()
	ctx := context.Background()

	// Same sequence and op id, different topic: both deliveries count.
	if err := sink.Emit(ctx, sample(2, TopicVerified)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := sink.Emit(ctx, sample(2, TopicReleased)); err != nil {
		t.Fatalf("emit: %v", err)
	}

	got := sink.Notifications()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Topic != TopicVerified || got[1].Topic != TopicReleased {
		t.Fatalf("order not preserved: %v then %v", got[0].Topic, got[1].Topic)
	}

	last, ok := sink.Last()
	if !ok || last.Topic != TopicReleased {
		t.Fatalf("unexpected last: ok=%v topic=%v", ok, last.Topic)
	}
}
