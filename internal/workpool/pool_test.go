package workpool

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownGraceful(t *testing.T) {
	p := New(context.Background())

	var finished atomic.Int32
	for range 4 {
		err := p.Go(func(ctx context.Context) {
			<-p.Draining()
			finished.Add(1)
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if !p.Shutdown(2 * time.Second) {
		t.Fatal("expected graceful shutdown")
	}
	if got := finished.Load(); got != 4 {
		t.Fatalf("got %d finished tasks, want 4", got)
	}
	if !p.IsDraining() {
		t.Fatal("expected pool to report draining")
	}
	if err := p.Go(func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}

func TestShutdownForcesBlockedIO(t *testing.T) {
	p := New(context.Background())

	a, b := net.Pipe()
	defer b.Close()

	readErr := make(chan error, 1)
	err := p.Go(func(ctx context.Context) {
		stop := CloseOnCancel(ctx, a)
		defer stop()
		// Ignores Draining on purpose; only the forced close unblocks it.
		_, err := a.Read(make([]byte, 1))
		readErr <- err
	})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if p.Shutdown(100 * time.Millisecond) {
		t.Fatal("expected forced shutdown")
	}
	if elapsed := time.Since(start); elapsed > forceGrace {
		t.Fatalf("shutdown took %s", elapsed)
	}

	select {
	case err := <-readErr:
		if err == nil {
			t.Fatal("expected read to fail after forced close")
		}
	case <-time.After(time.Second):
		t.Fatal("task did not exit after forced close")
	}
}

func TestNestedSubmission(t *testing.T) {
	p := New(context.Background())

	inner := make(chan struct{})
	err := p.Go(func(context.Context) {
		_ = p.Go(func(context.Context) {
			close(inner)
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-inner:
	case <-time.After(time.Second):
		t.Fatal("nested task never ran")
	}
	if !p.Shutdown(time.Second) {
		t.Fatal("expected graceful shutdown")
	}
}
