package webhooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-payhooks/core"
)

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name+"|"+tags["status"]] += value
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *recordingMetrics) count(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func TestBackgroundRunnerDetachesFromCaller(t *testing.T) {
	metrics := &recordingMetrics{}
	runner := NewBackgroundRunner(core.NewObserver(nil, metrics))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var taskErr error
	if err := runner.Go(ctx, "dispatch", nil, func(taskCtx context.Context) error {
		close(started)
		<-release
		taskErr = taskCtx.Err()
		return taskErr
	}); err != nil {
		t.Fatalf("go: %v", err)
	}
	<-started
	cancel()
	if runner.InFlight() != 1 {
		t.Fatalf("expected one in-flight task, got %d", runner.InFlight())
	}
	close(release)

	if err := runner.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if taskErr != nil {
		t.Fatalf("expected task context to survive caller cancellation, got %v", taskErr)
	}
	if got := metrics.count("payhooks.background_dispatch.total|success"); got != 1 {
		t.Fatalf("expected one success metric, got %d", got)
	}
}

func TestBackgroundRunnerRecordsFailuresAndPanics(t *testing.T) {
	metrics := &recordingMetrics{}
	runner := NewBackgroundRunner(core.NewObserver(nil, metrics))

	_ = runner.Go(context.Background(), "dispatch", nil, func(context.Context) error {
		return errors.New("boom")
	})
	_ = runner.Go(context.Background(), "dispatch", nil, func(context.Context) error {
		panic("unexpected")
	})
	if err := runner.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := metrics.count("payhooks.background_dispatch.total|failure"); got != 2 {
		t.Fatalf("expected two failure metrics, got %d", got)
	}
}

func TestBackgroundRunnerShutdown(t *testing.T) {
	runner := NewBackgroundRunner(core.Observer{})
	block := make(chan struct{})
	_ = runner.Go(context.Background(), "dispatch", nil, func(context.Context) error {
		<-block
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := runner.Shutdown(ctx); err == nil {
		t.Fatalf("expected shutdown to time out while a task is blocked")
	}
	if runner.Accepting() {
		t.Fatalf("expected runner to stop accepting after shutdown")
	}
	if err := runner.Go(context.Background(), "dispatch", nil, func(context.Context) error { return nil }); !errors.Is(err, ErrRunnerClosed) {
		t.Fatalf("expected ErrRunnerClosed, got %v", err)
	}

	close(block)
	if err := runner.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if runner.InFlight() != 0 {
		t.Fatalf("expected no in-flight tasks")
	}
}
