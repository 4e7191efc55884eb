package eventqueue

import (
	"context"
	"testing"
	"time"

	"github.com/loomrun/loom/pkg/models"
)

func TestMemoryQueue_PublishThenPopPreservesOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	first := models.NewEvent("conv1", models.EventTextChunk, models.TextChunkData{Text: "a"})
	second := models.NewEvent("conv1", models.EventTextChunk, models.TextChunkData{Text: "b"})
	if err := q.Publish(ctx, "conv1", first); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.Publish(ctx, "conv1", second); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got1, ok, err := q.Pop(ctx, "conv1", time.Second)
	if err != nil || !ok {
		t.Fatalf("Pop 1: ok=%v err=%v", ok, err)
	}
	if string(got1.Data) != string(first.Data) {
		t.Errorf("Pop 1 = %v, want %v", got1, first)
	}

	got2, ok, err := q.Pop(ctx, "conv1", time.Second)
	if err != nil || !ok {
		t.Fatalf("Pop 2: ok=%v err=%v", ok, err)
	}
	if string(got2.Data) != string(second.Data) {
		t.Errorf("Pop 2 = %v, want %v", got2, second)
	}
}

func TestMemoryQueue_PopTimesOutWhenEmpty(t *testing.T) {
	q := NewMemoryQueue()
	start := time.Now()
	_, ok, err := q.Pop(context.Background(), "conv1", 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Pop error: %v", err)
	}
	if ok {
		t.Fatal("expected Pop to time out on an empty queue")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("Pop returned before its timeout elapsed")
	}
}

func TestMemoryQueue_BlockedPopWakesOnPublish(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	type result struct {
		event models.Event
		ok    bool
		err   error
	}
	done := make(chan result, 1)
	go func() {
		event, ok, err := q.Pop(ctx, "conv1", time.Second)
		done <- result{event, ok, err}
	}()

	time.Sleep(10 * time.Millisecond)
	published := models.NewEvent("conv1", models.EventCompleted, nil)
	if err := q.Publish(ctx, "conv1", published); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil || !r.ok {
			t.Fatalf("blocked Pop: ok=%v err=%v", r.ok, r.err)
		}
		if r.event.Kind != models.EventCompleted {
			t.Errorf("got kind %v, want completed", r.event.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Pop never woke up after Publish")
	}
}

func TestMemoryQueue_CompetingConsumersDoNotRedeliver(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	if err := q.Publish(ctx, "conv1", models.NewEvent("conv1", models.EventHeartbeat, nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, ok, err := q.Pop(ctx, "conv1", 50*time.Millisecond)
			results <- result{ok, err}
		}()
	}

	oks := 0
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("Pop error: %v", r.err)
		}
		if r.ok {
			oks++
		}
	}
	if oks != 1 {
		t.Errorf("expected exactly one consumer to receive the single event, got %d", oks)
	}
}

func TestMemoryQueue_CtxCancellationStopsPop(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := q.Pop(ctx, "conv1", time.Second)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected ctx.Err() to surface from a cancelled Pop")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after context cancellation")
	}
}
