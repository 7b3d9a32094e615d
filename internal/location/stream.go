package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"driverassist/internal/geo"
)

// ErrPermissionDenied is returned when the device position feed is not
// available to this session. It is terminal: callers surface a failure state
// instead of retrying.
var ErrPermissionDenied = errors.New("location: permission denied")

// Sample is one position fix from the device.
type Sample struct {
	Point     geo.Point
	Timestamp time.Time
}

// Source is the device boundary: a continuous position feed. Subscribe fails
// with ErrPermissionDenied when location access was never granted.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Sample, error)
}

// Stream wraps a Source into cancellable, distance-filtered subscriptions.
type Stream struct {
	source Source
}

// NewStream constructs a Stream over the given source.
func NewStream(source Source) *Stream {
	return &Stream{source: source}
}

// Subscription is a handle on a running position subscription.
type Subscription struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// Cancel stops delivery. After Cancel returns the callback is guaranteed not
// to run again.
func (s *Subscription) Cancel() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Subscription) deliver(sample Sample, onSample func(Sample)) bool {
	// the lock is held across the callback so Cancel blocks until an
	// in-flight delivery finishes
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	onSample(sample)
	return true
}

// Start begins delivering position samples. Samples closer than
// minMoveMeters to the previously delivered one are dropped.
func (s *Stream) Start(ctx context.Context, minMoveMeters int, onSample func(Sample)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	samples, err := s.source.Subscribe(subCtx)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{cancel: cancel}
	go func() {
		var last *geo.Point
		for {
			select {
			case <-subCtx.Done():
				return
			case sample, ok := <-samples:
				if !ok {
					return
				}
				if last != nil && last.DistanceTo(sample.Point) < float64(minMoveMeters) {
					continue
				}
				if !sub.deliver(sample, onSample) {
					return
				}
				p := sample.Point
				last = &p
			}
		}
	}()
	return sub, nil
}
