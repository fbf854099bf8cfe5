package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Dispatcher decouples the monitor reader from the broker: samples are
// queued without blocking and published by a pool of workers.
type Dispatcher struct {
	samples     chan Sample
	producer    Producer
	topic       string
	logger      *zap.Logger
	workerCount int
	dropped     atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(producer Producer, topic string, workerCount, queueLen int, logger *zap.Logger) *Dispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		samples:     make(chan Sample, queueLen),
		producer:    producer,
		topic:       topic,
		logger:      logger,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("Telemetry dispatcher started", zap.Int("workers", d.workerCount))
}

// Stop publishes what is queued, then waits for the workers to exit.
func (d *Dispatcher) Stop() {
	close(d.samples)
	d.wg.Wait()
	d.cancel()
	d.logger.Info("Telemetry dispatcher stopped", zap.Uint64("dropped", d.dropped.Load()))
}

// Dispatch queues a sample. A full queue drops it.
func (d *Dispatcher) Dispatch(s Sample) bool {
	select {
	case d.samples <- s:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of samples lost to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for s := range d.samples {
		if err := d.producer.Produce(d.ctx, d.topic, s.Board, s); err != nil {
			d.logger.Error("Failed to publish sample", zap.Error(err))
		}
	}
}
