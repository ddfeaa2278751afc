package serial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDoSerializesWriters(t *testing.T) {
	g := NewGate()
	ctx := context.Background()

	var inFlight, maxInFlight int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(ctx, func(context.Context) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Fatalf("expected at most 1 writer in flight, saw %d", maxInFlight)
	}
}

func TestDoRejectsCancelledContext(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Do(ctx, func(context.Context) error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
