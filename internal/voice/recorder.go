package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrDeviceBusy is returned when the capture device is already held by
// another recording handle.
var ErrDeviceBusy = errors.New("voice: capture device busy")

// ErrMicPermission is returned when microphone access was never granted. It
// is terminal for the attempt; the caller stays idle.
var ErrMicPermission = errors.New("voice: microphone permission denied")

// Recorder is the capture device boundary. Start hands out an exclusive
// recording handle.
type Recorder interface {
	Start(ctx context.Context) (Recording, error)
}

// Recording is one active capture. Chunk returns the audio captured since the
// previous call; Stop finalizes the capture and returns the audio file path.
type Recording interface {
	Chunk() ([]byte, error)
	Stop() (string, error)
}

// SimRecorder is a simulated capture device: it produces synthetic audio and
// enforces the one-handle-at-a-time rule of a real microphone.
type SimRecorder struct {
	mu   sync.Mutex
	busy bool
	dir  string
}

// NewSimRecorder creates a simulated recorder writing capture files under dir.
func NewSimRecorder(dir string) *SimRecorder {
	return &SimRecorder{dir: dir}
}

func (r *SimRecorder) Start(ctx context.Context) (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return nil, ErrDeviceBusy
	}
	f, err := os.CreateTemp(r.dir, "capture-*.m4a")
	if err != nil {
		return nil, fmt.Errorf("voice: create capture file: %w", err)
	}
	r.busy = true
	return &simRecording{owner: r, file: f, started: time.Now()}, nil
}

func (r *SimRecorder) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

type simRecording struct {
	owner   *SimRecorder
	mu      sync.Mutex
	file    *os.File
	started time.Time
	stopped bool
	seq     byte
}

func (rec *simRecording) Chunk() ([]byte, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.stopped {
		return nil, errors.New("voice: recording already stopped")
	}
	chunk := make([]byte, 4800)
	for i := range chunk {
		chunk[i] = rec.seq
	}
	rec.seq++
	if _, err := rec.file.Write(chunk); err != nil {
		return nil, fmt.Errorf("voice: write capture: %w", err)
	}
	return chunk, nil
}

func (rec *simRecording) Stop() (string, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.stopped {
		return rec.file.Name(), nil
	}
	rec.stopped = true
	rec.owner.release()
	if err := rec.file.Close(); err != nil {
		return "", fmt.Errorf("voice: close capture: %w", err)
	}
	return rec.file.Name(), nil
}
