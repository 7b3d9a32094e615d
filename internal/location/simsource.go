package location

import (
	"context"
	"sync"
	"time"

	"driverassist/internal/geo"
)

// SimSource is a simulated GPS: it advances the driver along a path of
// waypoints at a fixed speed and emits fixes at the device's native rate.
type SimSource struct {
	mu       sync.Mutex
	pos      geo.Point
	path     []geo.Point
	pathIdx  int
	speedKPH float64
	interval time.Duration
}

// NewSimSource creates a simulated source starting at the given position.
func NewSimSource(start geo.Point, speedKPH float64, interval time.Duration) *SimSource {
	if interval <= 0 {
		interval = time.Second
	}
	if speedKPH <= 0 {
		speedKPH = 40
	}
	return &SimSource{pos: start, speedKPH: speedKPH, interval: interval}
}

// SetPath replaces the waypoint path the simulated driver follows.
func (s *SimSource) SetPath(path []geo.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = append([]geo.Point(nil), path...)
	s.pathIdx = 0
}

// Position returns the current simulated position.
func (s *SimSource) Position() geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Subscribe starts emitting samples until ctx is cancelled.
func (s *SimSource) Subscribe(ctx context.Context) (<-chan Sample, error) {
	out := make(chan Sample, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.advance(s.interval)
				sample := Sample{Point: s.Position(), Timestamp: now}
				select {
				case out <- sample:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *SimSource) advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.speedKPH * 1000 / 3600 * dt.Seconds()
	for remaining > 0 && s.pathIdx < len(s.path) {
		target := s.path[s.pathIdx]
		dist := s.pos.DistanceTo(target)
		if dist <= remaining {
			s.pos = target
			s.pathIdx++
			remaining -= dist
			continue
		}
		frac := remaining / dist
		s.pos = geo.Point{
			Lat: s.pos.Lat + (target.Lat-s.pos.Lat)*frac,
			Lng: s.pos.Lng + (target.Lng-s.pos.Lng)*frac,
		}
		remaining = 0
	}
}
