// Package notify fans vehicle updates out to the real-time channel through a
// pool of workers, keeping slow publishes off the ingestion path.
package notify

import (
	"context"
	"log"

	"vehicle-tracker-backend/internal/store"
)

// UpdatePublisher is the single store operation the pool needs.
type UpdatePublisher interface {
	PublishVehicleUpdate(ctx context.Context, update *store.VehicleUpdate) error
}

// WorkerPool manages a pool of workers publishing vehicle updates.
type WorkerPool struct {
	size      int
	jobs      chan *store.VehicleUpdate
	publisher UpdatePublisher
	onError   func() // metrics hook, may be nil
}

// NewWorkerPool creates a worker pool with a buffer of queue updates.
func NewWorkerPool(size, queue int, publisher UpdatePublisher) *WorkerPool {
	return &WorkerPool{
		size:      size,
		jobs:      make(chan *store.VehicleUpdate, queue),
		publisher: publisher,
	}
}

// OnError registers a callback invoked once per failed or dropped publish.
func (wp *WorkerPool) OnError(fn func()) {
	wp.onError = fn
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case update := <-wp.jobs:
			if err := wp.publisher.PublishVehicleUpdate(ctx, update); err != nil {
				log.Printf("notify: worker %d publish update for %s: %v", id, update.VehicleID, err)
				wp.fail()
			}
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch queues an update. Updates are best effort: when the queue is full
// the update is dropped rather than stalling the ingestion cycle.
func (wp *WorkerPool) Dispatch(update *store.VehicleUpdate) {
	select {
	case wp.jobs <- update:
	default:
		log.Printf("notify: queue full, dropping update for %s", update.VehicleID)
		wp.fail()
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan *store.VehicleUpdate {
	return wp.jobs
}

func (wp *WorkerPool) fail() {
	if wp.onError != nil {
		wp.onError()
	}
}
