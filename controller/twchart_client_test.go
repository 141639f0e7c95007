package controller

import (
	"context"
	"errors"
	"io"
	"log"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/calvinmclean/nora/twchart"
)

type fakeTWChartClient struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{}
}

func (f *fakeTWChartClient) record(call string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeTWChartClient) CreateSession(ctx context.Context, name string, probes twchart.Probes) (string, error) {
	return "id", f.record("create " + name)
}

func (f *fakeTWChartClient) SetStartTime(ctx context.Context, startTime time.Time) error {
	return f.record("start")
}

func (f *fakeTWChartClient) AddEvent(ctx context.Context, note string, now time.Time) error {
	return f.record("event " + note)
}

func (f *fakeTWChartClient) AddStage(ctx context.Context, name string, now time.Time) error {
	return f.record("stage " + name)
}

func (f *fakeTWChartClient) Done(ctx context.Context, now time.Time) error {
	return f.record("done")
}

func (f *fakeTWChartClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func TestRecorder(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	now := time.Unix(1700000000, 0)

	t.Run("DeliversInOrder", func(t *testing.T) {
		client := &fakeTWChartClient{}
		r := newRecorder(client, twchart.DefaultProbes, logger)

		r.StartSession("cycle 1", now)
		r.Stage("Release", now)
		r.Event("fault: Tube", now)
		r.Done(now)
		r.Close()

		expected := []string{"create cycle 1", "start", "stage Release", "event fault: Tube", "done"}
		if got := client.Calls(); !slices.Equal(got, expected) {
			t.Errorf("expected %v but got %v", expected, got)
		}
	})

	t.Run("FailedSessionSkipsStart", func(t *testing.T) {
		client := &fakeTWChartClient{err: errors.New("unreachable")}
		r := newRecorder(client, nil, logger)
		r.StartSession("cycle 1", now)
		r.Close()

		if got := client.Calls(); !slices.Equal(got, []string{"create cycle 1"}) {
			t.Errorf("unexpected calls %v", got)
		}
	})

	t.Run("DropsWhenFull", func(t *testing.T) {
		client := &fakeTWChartClient{block: make(chan struct{})}
		r := newRecorder(client, nil, logger)

		for range 100 {
			r.Stage("Soak", now)
		}
		close(client.block)
		r.Close()

		got := len(client.Calls())
		if got >= 100 || got == 0 {
			t.Errorf("expected a bounded number of deliveries but got %d", got)
		}
	})

	t.Run("IgnoredAfterClose", func(t *testing.T) {
		client := &fakeTWChartClient{}
		r := newRecorder(client, nil, logger)
		r.Close()
		r.Stage("Soak", now)
		r.Close()

		if got := client.Calls(); len(got) != 0 {
			t.Errorf("expected no calls but got %v", got)
		}
	})

	t.Run("NilClient", func(t *testing.T) {
		r := newRecorder(nil, nil, logger)
		r.StartSession("cycle 1", now)
		r.Close()
	})
}
