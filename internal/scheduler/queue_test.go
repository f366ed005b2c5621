package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewService(client).GetQueue("cashbox")
}

func TestAddJobGeneratesID(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.AddJob(ctx, map[string]any{"kind": "topup"}, time.Hour, "")
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated job id")
	}

	ok, err := q.HasJob(ctx, id)
	if err != nil {
		t.Fatalf("has job: %v", err)
	}
	if !ok {
		t.Fatal("job not pending after add")
	}
}

func TestAddJobFixedIDReplacesPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.AddJob(ctx, nil, time.Hour, "1"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := q.AddJob(ctx, nil, -time.Second, "1"); err != nil {
		t.Fatalf("second add: %v", err)
	}

	jobs, err := q.claimDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one pending job, claimed %d", len(jobs))
	}
	if jobs[0].ID != "1" {
		t.Fatalf("unexpected job id: %q", jobs[0].ID)
	}
}

func TestRemoveJobCancelsPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.AddJob(ctx, nil, -time.Second, "1"); err != nil {
		t.Fatalf("add job: %v", err)
	}
	if err := q.RemoveJob(ctx, "1"); err != nil {
		t.Fatalf("remove job: %v", err)
	}

	jobs, err := q.claimDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs, claimed %d", len(jobs))
	}
}

func TestClaimDueSkipsFutureJobs(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.AddJob(ctx, map[string]any{"n": float64(1)}, -time.Minute, "due"); err != nil {
		t.Fatalf("add due job: %v", err)
	}
	if _, err := q.AddJob(ctx, nil, time.Hour, "future"); err != nil {
		t.Fatalf("add future job: %v", err)
	}

	jobs, err := q.claimDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one due job, claimed %d", len(jobs))
	}
	if jobs[0].ID != "due" {
		t.Fatalf("claimed wrong job: %q", jobs[0].ID)
	}
	if jobs[0].Payload["n"] != float64(1) {
		t.Fatalf("payload lost: %v", jobs[0].Payload)
	}

	ok, err := q.HasJob(ctx, "future")
	if err != nil {
		t.Fatalf("has job: %v", err)
	}
	if !ok {
		t.Fatal("future job should stay pending")
	}
}

func TestClaimDueIsOneShot(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.AddJob(ctx, nil, -time.Second, "1"); err != nil {
		t.Fatalf("add job: %v", err)
	}

	first, err := q.claimDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected one job on first claim, got %d", len(first))
	}

	second, err := q.claimDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("job claimed twice: %d", len(second))
	}
}

func TestWorkerRunsDueJobs(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.AddJob(ctx, nil, -time.Second, "1"); err != nil {
		t.Fatalf("add job: %v", err)
	}

	ran := make(chan string, 1)
	w := NewWorker(q, func(_ context.Context, job Job) error {
		ran <- job.ID
		return nil
	}, 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	select {
	case id := <-ran:
		if id != "1" {
			t.Fatalf("unexpected job id: %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ran the job")
	}

	cancel()
	<-done
}
