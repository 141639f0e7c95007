package controller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/nora/twchart"
)

type twchartClient interface {
	CreateSession(ctx context.Context, name string, probes twchart.Probes) (string, error)
	SetStartTime(ctx context.Context, startTime time.Time) error
	AddEvent(ctx context.Context, note string, now time.Time) error
	AddStage(ctx context.Context, name string, now time.Time) error
	Done(ctx context.Context, now time.Time) error
}

type noopTWChartClient struct{}

var _ twchartClient = noopTWChartClient{}

// AddEvent implements twchartClient.
func (n noopTWChartClient) AddEvent(ctx context.Context, note string, now time.Time) error {
	return nil
}

// AddStage implements twchartClient.
func (n noopTWChartClient) AddStage(ctx context.Context, name string, now time.Time) error {
	return nil
}

// CreateSession implements twchartClient.
func (n noopTWChartClient) CreateSession(ctx context.Context, name string, probes twchart.Probes) (string, error) {
	return "", nil
}

// Done implements twchartClient.
func (n noopTWChartClient) Done(ctx context.Context, now time.Time) error {
	return nil
}

// SetStartTime implements twchartClient.
func (n noopTWChartClient) SetStartTime(ctx context.Context, startTime time.Time) error {
	return nil
}

// recorder delivers cycle telemetry from a background goroutine so that the
// control loop never waits on the network. When the queue is full, new
// records are dropped.
type recorder struct {
	client  twchartClient
	probes  twchart.Probes
	timeout time.Duration
	logger  *log.Logger

	queue  chan func(context.Context) error
	wg     sync.WaitGroup
	once   sync.Once
	closed atomic.Bool
}

func newRecorder(client twchartClient, probes twchart.Probes, logger *log.Logger) *recorder {
	if client == nil {
		client = noopTWChartClient{}
	}
	r := &recorder{
		client:  client,
		probes:  probes,
		timeout: 10 * time.Second,
		logger:  logger,
		queue:   make(chan func(context.Context) error, 64),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *recorder) run() {
	defer r.wg.Done()
	for job := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := job(ctx)
		cancel()
		if err != nil {
			r.logger.Printf("[twchart] %v", err)
		}
	}
}

func (r *recorder) enqueue(job func(context.Context) error) {
	if r.closed.Load() {
		return
	}
	select {
	case r.queue <- job:
	default:
		r.logger.Printf("[twchart] queue full, dropping record")
	}
}

// StartSession opens a new session for a sampling cycle
func (r *recorder) StartSession(name string, start time.Time) {
	r.enqueue(func(ctx context.Context) error {
		_, err := r.client.CreateSession(ctx, name, r.probes)
		if err != nil {
			return err
		}
		return r.client.SetStartTime(ctx, start)
	})
}

func (r *recorder) Stage(name string, now time.Time) {
	r.enqueue(func(ctx context.Context) error {
		return r.client.AddStage(ctx, name, now)
	})
}

func (r *recorder) Event(note string, now time.Time) {
	r.enqueue(func(ctx context.Context) error {
		return r.client.AddEvent(ctx, note, now)
	})
}

func (r *recorder) Done(now time.Time) {
	r.enqueue(func(ctx context.Context) error {
		return r.client.Done(ctx, now)
	})
}

// Close delivers what is queued and stops the worker
func (r *recorder) Close() {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.queue)
	})
	r.wg.Wait()
}
