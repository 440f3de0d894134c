package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

func TestFirstErrorCancelsSiblings(t *testing.T) {
	s := New(context.Background(), logx.Nop())

	stopped := make(chan struct{})
	s.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})
	boom := errors.New("boom")
	s.Go("failer", func(ctx context.Context) error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want %v", err, boom)
	}
	select {
	case <-stopped:
	default:
		t.Fatal("sibling goroutine was not canceled")
	}
}

func TestPanicBecomesError(t *testing.T) {
	s := New(context.Background(), logx.Nop())
	s.Go("panicky", func(ctx context.Context) error { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected the panic to surface as an error")
	}
}

func TestStopWaitsForCleanExit(t *testing.T) {
	s := New(context.Background(), logx.Nop())
	s.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}

func TestGoRestartRecovers(t *testing.T) {
	s := New(context.Background(), logx.Nop())

	attempts := make(chan int, 8)
	n := 0
	s.GoRestart("flaky", func(ctx context.Context) error {
		n++
		attempts <- n
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}
