package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	swept int64
	err   error
}

func (f *fakeSweeper) SweepExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.swept, nil
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunNow_InvokesSweepAndUpdatesStats(t *testing.T) {
	sweep := &fakeSweeper{swept: 3}
	svc := NewService(sweep, time.Hour, zerolog.Nop())

	svc.RunNow(context.Background())

	if sweep.callCount() != 1 {
		t.Fatalf("callCount = %d, want 1", sweep.callCount())
	}
	stats := svc.Stats()
	if stats["total_swept"].(int64) != 3 {
		t.Errorf("total_swept = %v, want 3", stats["total_swept"])
	}
	if stats["total_runs"].(int64) != 1 {
		t.Errorf("total_runs = %v, want 1", stats["total_runs"])
	}
}

func TestRunNow_ErrorDoesNotUpdateTotals(t *testing.T) {
	sweep := &fakeSweeper{err: errors.New("db unavailable")}
	svc := NewService(sweep, time.Hour, zerolog.Nop())

	svc.RunNow(context.Background())

	stats := svc.Stats()
	if stats["total_runs"].(int64) != 0 {
		t.Errorf("total_runs = %v, want 0 on sweep error", stats["total_runs"])
	}
}

func TestNewService_DefaultsIntervalWhenNonPositive(t *testing.T) {
	svc := NewService(&fakeSweeper{}, 0, zerolog.Nop())
	if svc.interval != 5*time.Minute {
		t.Errorf("interval = %v, want 5m default", svc.interval)
	}
}

func TestStartStop_ExitsOnStopSignal(t *testing.T) {
	sweep := &fakeSweeper{}
	svc := NewService(sweep, time.Hour, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		svc.Start(context.Background())
		close(done)
	}()

	// Give Start a moment to flip running=true before stopping.
	time.Sleep(10 * time.Millisecond)
	svc.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestStartStop_ExitsOnContextCancel(t *testing.T) {
	sweep := &fakeSweeper{}
	svc := NewService(sweep, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}
