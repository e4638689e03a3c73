package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test"), srv
}

func TestRedisRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("unexpected value %q", got)
	}

	remaining, err := store.Remaining(ctx, "k")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining <= 0 || remaining > time.Hour {
		t.Fatalf("unexpected remaining %v", remaining)
	}
}

func TestRedisMissingKey(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Remaining(ctx, "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Remaining, got %v", err)
	}
	if err := store.ExtendRetention(ctx, "absent", time.Hour, 2*time.Hour); err != nil {
		t.Fatalf("expected nil extending missing key, got %v", err)
	}
}

func TestRedisExtendRetention(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), InstanceTier.Extend); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Far from expiry: TTL unchanged.
	if err := InstanceTier.Renew(ctx, store, "k"); err != nil {
		t.Fatalf("renew: %v", err)
	}
	remaining, err := store.Remaining(ctx, "k")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining > InstanceTier.Extend {
		t.Fatalf("retention grew unexpectedly: %v", remaining)
	}

	// Cross the threshold: TTL resets to the extension window.
	srv.FastForward(InstanceTier.Extend - 12*time.Hour)
	if err := InstanceTier.Renew(ctx, store, "k"); err != nil {
		t.Fatalf("renew: %v", err)
	}
	remaining, err = store.Remaining(ctx, "k")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining <= 1*Day {
		t.Fatalf("expected retention reset, got %v", remaining)
	}
}

func TestRedisSetMulti(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	err := store.SetMulti(ctx, []Entry{
		{Key: "a", Value: []byte("1"), Retention: time.Minute},
		{Key: "b", Value: []byte("2"), Retention: time.Hour},
	})
	if err != nil {
		t.Fatalf("setmulti: %v", err)
	}

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := store.Get(ctx, key)
		if err != nil {
			t.Fatalf("get %q: %v", key, err)
		}
		if string(got) != want {
			t.Fatalf("key %q: expected %q, got %q", key, want, got)
		}
	}

	srv.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key a expired, got %v", err)
	}
	if _, err := store.Get(ctx, "b"); err != nil {
		t.Fatalf("key b must survive: %v", err)
	}
}

func TestRedisExpiry(t *testing.T) {
	store, srv := newRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	srv.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}
