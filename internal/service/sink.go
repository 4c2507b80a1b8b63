package service

import (
	"context"
	"sync/atomic"

	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/models"
)

// DefaultSinkQueue is the per-sink backlog before readings are dropped.
const DefaultSinkQueue = 256

// Sink receives every stored reading: websocket fan-out, exporters.
type Sink interface {
	Name() string
	Publish(ctx context.Context, r models.Reading) error
}

// asyncSink feeds a Sink from its own goroutine so a slow consumer never
// stalls ingestion. When the queue is full the reading is dropped.
type asyncSink struct {
	sink    Sink
	queue   chan models.Reading
	dropped atomic.Uint64
	log     *logger.Logger
}

func newAsyncSink(sink Sink, size int, log *logger.Logger) *asyncSink {
	if size <= 0 {
		size = DefaultSinkQueue
	}
	return &asyncSink{sink: sink, queue: make(chan models.Reading, size), log: log}
}

// Offer enqueues r without blocking. It reports false when r was dropped.
func (a *asyncSink) Offer(r models.Reading) bool {
	select {
	case a.queue <- r:
		return true
	default:
		n := a.dropped.Add(1)
		if a.log != nil {
			a.log.Warnw("sink_queue_full", "sink", a.sink.Name(), "node", r.ID, "dropped_total", n)
		}
		return false
	}
}

// Run publishes queued readings until ctx is cancelled.
func (a *asyncSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-a.queue:
			if err := a.sink.Publish(ctx, r); err != nil && ctx.Err() == nil && a.log != nil {
				a.log.Warnw("sink_publish_failed", "sink", a.sink.Name(), "node", r.ID, "err", err)
			}
		}
	}
}
