package monitor

import (
	"context"
	"fmt"
)

// ChannelSink forwards snapshots to a worker channel. A blocking sink
// applies backpressure to the cycle; a non-blocking sink drops when the
// channel is full and calls onDrop.
type ChannelSink struct {
	ch       chan<- *Snapshot
	blocking bool
	onDrop   func()
}

func NewChannelSink(ch chan<- *Snapshot, blocking bool, onDrop func()) *ChannelSink {
	return &ChannelSink{ch: ch, blocking: blocking, onDrop: onDrop}
}

func (s *ChannelSink) Deliver(ctx context.Context, snap *Snapshot) error {
	if s.blocking {
		select {
		case s.ch <- snap:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("deliver snapshot: %w", ctx.Err())
		}
	}
	select {
	case s.ch <- snap:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
	}
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap *Snapshot) error

func (f SinkFunc) Deliver(ctx context.Context, snap *Snapshot) error {
	return f(ctx, snap)
}
