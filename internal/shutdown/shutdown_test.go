package shutdown

import (
	"context"
	"testing"
	"time"
)

func TestRun_TransitionsAndReturnsSuccessCode(t *testing.T) {
	c := New(nil)
	if c.State() != StateRunning {
		t.Fatalf("expected initial state running, got %v", c.State())
	}

	drained := make(chan struct{})
	var gotCode int
	go func() {
		gotCode = c.Run(func(ctx context.Context) bool {
			close(drained)
			return false
		})
	}()

	time.Sleep(20 * time.Millisecond)
	c.TriggerShutdown()

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain function was not invoked")
	}
	<-c.Done()
	if c.State() != StateStopped {
		t.Fatalf("expected state stopped, got %v", c.State())
	}
	if gotCode != 0 {
		t.Fatalf("expected exit code 0, got %d", gotCode)
	}
}

func TestRun_DataLossReturnsFailureCode(t *testing.T) {
	c := New(nil)
	done := make(chan int, 1)
	go func() {
		done <- c.Run(func(ctx context.Context) bool { return true })
	}()
	time.Sleep(20 * time.Millisecond)
	c.TriggerShutdown()

	select {
	case code := <-done:
		if code != 1 {
			t.Fatalf("expected exit code 1 on data loss, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestDraining_ReflectsState(t *testing.T) {
	c := New(nil)
	if c.Draining() {
		t.Fatal("expected not draining initially")
	}
	done := make(chan struct{})
	go func() {
		c.Run(func(ctx context.Context) bool {
			close(done)
			return false
		})
	}()
	time.Sleep(20 * time.Millisecond)
	c.TriggerShutdown()
	<-done
	if !c.Draining() {
		t.Fatal("expected draining to be true once shutdown was triggered")
	}
}

func TestRun_RespectsDrainDeadline(t *testing.T) {
	c := New(nil)
	done := make(chan int, 1)
	go func() {
		done <- c.Run(func(ctx context.Context) bool {
			<-ctx.Done()
			return true
		})
	}()
	time.Sleep(20 * time.Millisecond)
	c.TriggerShutdown()

	select {
	case code := <-done:
		if code != 1 {
			t.Fatalf("expected exit code 1 when drain context is canceled, got %d", code)
		}
	case <-time.After(DrainDeadline + time.Second):
		t.Fatal("Run did not respect the drain deadline")
	}
}
