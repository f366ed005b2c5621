package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRepo(t *testing.T) (*StateRepo, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStateRepo(client, time.Minute), mr
}

func TestStateRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetState(ctx, 42, "invest"); err != nil {
		t.Fatalf("set state: %v", err)
	}

	state, err := repo.GetState(ctx, 42)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state != "invest" {
		t.Fatalf("unexpected state: got %q want %q", state, "invest")
	}
}

func TestGetStateMissingReturnsEmpty(t *testing.T) {
	repo, _ := newTestRepo(t)

	state, err := repo.GetState(context.Background(), 7)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state != "" {
		t.Fatalf("expected empty state, got %q", state)
	}
}

func TestDataRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	in := map[string]any{"username": "partner", "amount": float64(150)}
	if err := repo.SetData(ctx, 42, in); err != nil {
		t.Fatalf("set data: %v", err)
	}

	out, err := repo.GetData(ctx, 42)
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if out["username"] != "partner" {
		t.Fatalf("unexpected username: %v", out["username"])
	}
	if out["amount"] != float64(150) {
		t.Fatalf("unexpected amount: %v", out["amount"])
	}
}

func TestClearRemovesStateAndData(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetState(ctx, 42, "reinvest"); err != nil {
		t.Fatalf("set state: %v", err)
	}
	if err := repo.SetData(ctx, 42, map[string]any{"amount": float64(100)}); err != nil {
		t.Fatalf("set data: %v", err)
	}

	if err := repo.Clear(ctx, 42); err != nil {
		t.Fatalf("clear: %v", err)
	}

	state, err := repo.GetState(ctx, 42)
	if err != nil {
		t.Fatalf("get state after clear: %v", err)
	}
	if state != "" {
		t.Fatalf("state not cleared: %q", state)
	}

	data, err := repo.GetData(ctx, 42)
	if err != nil {
		t.Fatalf("get data after clear: %v", err)
	}
	if data != nil {
		t.Fatalf("data not cleared: %v", data)
	}
}

func TestStateExpires(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SetState(ctx, 42, "registration"); err != nil {
		t.Fatalf("set state: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	state, err := repo.GetState(ctx, 42)
	if err != nil {
		t.Fatalf("get state after expiry: %v", err)
	}
	if state != "" {
		t.Fatalf("expected expired state, got %q", state)
	}
}
