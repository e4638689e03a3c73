package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newStream(t *testing.T) *Stream {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStream(client, "")
}

func TestStreamEmitAndRange(t *testing.T) {
	stream := newStream(t)
	ctx := context.Background()

	emitted := []Notification{
		{
			Sequence: 1, OpID: uuid.New(), Topic: TopicCreated, ProjectID: 0,
			Actor: "addr:creator", Token: "token:usd", Amount: "1000",
			EmittedAt: time.Unix(1_700_000_000, 0).UTC(),
		},
		{
			Sequence: 2, OpID: uuid.New(), Topic: TopicFunded, ProjectID: 0,
			Actor: "addr:donor", Token: "token:usd", Amount: "250",
			EmittedAt: time.Unix(1_700_000_100, 0).UTC(),
		},
		{
			Sequence: 3, OpID: uuid.New(), Topic: TopicRoleSet, ProjectID: NoProject,
			Actor: "addr:oracle", Role: "oracle",
			EmittedAt: time.Unix(1_700_000_200, 0).UTC(),
		},
	}
	for _, n := range emitted {
		if err := stream.Emit(ctx, n); err != nil {
			t.Fatalf("emit seq %d: %v", n.Sequence, err)
		}
	}

	got, last, err := stream.Range(ctx, "", "", 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != len(emitted) {
		t.Fatalf("expected %d entries, got %d", len(emitted), len(got))
	}
	if last == "" {
		t.Fatal("expected a resume cursor")
	}
	for i, n := range got {
		want := emitted[i]
		if n.Sequence != want.Sequence || n.Topic != want.Topic || n.OpID != want.OpID {
			t.Fatalf("entry %d mismatch: got %+v want %+v", i, n, want)
		}
		if n.ProjectID != want.ProjectID || n.Actor != want.Actor || n.Amount != want.Amount || n.Role != want.Role {
			t.Fatalf("entry %d payload mismatch: got %+v want %+v", i, n, want)
		}
		if !n.EmittedAt.Equal(want.EmittedAt) {
			t.Fatalf("entry %d timestamp mismatch: %v != %v", i, n.EmittedAt, want.EmittedAt)
		}
	}
}

func TestStreamRangeHonorsCount(t *testing.T) {
	stream := newStream(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		n := Notification{
			Sequence: seq, OpID: uuid.New(), Topic: TopicFunded, ProjectID: 1,
			Amount: "10", EmittedAt: time.Unix(1_700_000_000, 0).UTC(),
		}
		if err := stream.Emit(ctx, n); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	first, cursor, err := stream.Range(ctx, "", "", 2)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(first))
	}

	// Resume after the cursor.
	rest, _, err := stream.Range(ctx, "("+cursor, "", 10)
	if err != nil {
		t.Fatalf("resume range: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining entries, got %d", len(rest))
	}
	if rest[0].Sequence != 3 {
		t.Fatalf("expected resume at sequence 3, got %d", rest[0].Sequence)
	}
}

func TestStreamCursorRoundTrip(t *testing.T) {
	stream := newStream(t)
	ctx := context.Background()

	id, err := stream.LoadCursor(ctx, "indexer")
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty cursor for new consumer, got %q", id)
	}

	if err := stream.SaveCursor(ctx, "indexer", "1700000000-0"); err != nil {
		t.Fatalf("save cursor: %v", err)
	}
	id, err = stream.LoadCursor(ctx, "indexer")
	if err != nil {
		t.Fatalf("load cursor: %v", err)
	}
	if id != "1700000000-0" {
		t.Fatalf("cursor mismatch: %q", id)
	}
}
