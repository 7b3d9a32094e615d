package voice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"driverassist/internal/assistant"
	"driverassist/internal/geo"
)

type scriptedBackend struct {
	mu        sync.Mutex
	detects   []bool
	detectErr []error
	idx       int
	interacts []string // audio paths handed to Interact
	result    assistant.InteractResult
}

func (b *scriptedBackend) DetectSpeech(ctx context.Context, sessionID string, chunk []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.idx >= len(b.detects) {
		last := len(b.detects) - 1
		if last < 0 {
			return false, nil
		}
		return b.detects[last], nil
	}
	detected := b.detects[b.idx]
	var err error
	if b.idx < len(b.detectErr) {
		err = b.detectErr[b.idx]
	}
	b.idx++
	return detected, err
}

func (b *scriptedBackend) Interact(ctx context.Context, sessionID, audioPath string, loc *geo.Point, order *assistant.OrderContext) (assistant.InteractResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interacts = append(b.interacts, audioPath)
	return b.result, nil
}

func (b *scriptedBackend) interactCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.interacts)
}

func newTestController(t *testing.T, backend *scriptedBackend) *Controller {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cfg := ControllerConfig{ChunkInterval: 10 * time.Millisecond, SilentChunkLimit: 2}
	recorder := NewSimRecorder(t.TempDir())
	return NewController(cfg, recorder, backend, store, nil, nil, nil, nil, nil)
}

func waitForState(t *testing.T, c *Controller, state string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if c.Status().State == state {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, at %s", state, c.Status().State)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAutoStopAfterSilenceFollowingSpeech(t *testing.T) {
	backend := &scriptedBackend{
		detects: []bool{true, false, false},
		result:  assistant.InteractResult{Transcription: "take me home", ResponseText: "sure", AudioFilePath: ""},
	}
	c := newTestController(t, backend)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// speech then two silent chunks ends the capture without a manual stop
	waitForState(t, c, StateIdle)

	deadline := time.After(2 * time.Second)
	for backend.interactCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("assistant exchange never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}
	status := c.Status()
	if status.LastTranscription != "take me home" || status.LastResponse != "sure" {
		t.Fatalf("exchange result not recorded: %+v", status)
	}
	if status.LastRecording == "" {
		t.Fatalf("finished capture was not persisted")
	}
}

func TestSilenceBeforeSpeechNeverStops(t *testing.T) {
	backend := &scriptedBackend{detects: []bool{false}}
	c := newTestController(t, backend)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// far more silent chunks than the limit pass without any speech
	time.Sleep(100 * time.Millisecond)
	if got := c.Status().State; got != StateRecording {
		t.Fatalf("capture stopped on pre-speech silence, state = %s", got)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, c, StateIdle)
}

func TestDetectionFailureKeepsCapture(t *testing.T) {
	boom := errors.New("detect-speech: http 500")
	backend := &scriptedBackend{
		// errors fail open as "speech", so the capture must survive them
		detects:   []bool{true, true, true},
		detectErr: []error{nil, boom, boom},
	}
	c := newTestController(t, backend)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if got := c.Status().State; got != StateRecording {
		t.Fatalf("flaky detection killed the capture, state = %s", got)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, c, StateIdle)
}

func TestDetectionErrorNeverCountsAsSilence(t *testing.T) {
	boom := errors.New("detect-speech: http 500")
	backend := &scriptedBackend{}
	// the check reports silence alongside every error; the error must win
	for i := 0; i < 32; i++ {
		backend.detects = append(backend.detects, false)
		backend.detectErr = append(backend.detectErr, boom)
	}
	c := newTestController(t, backend)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	status := c.Status()
	if status.State != StateRecording {
		t.Fatalf("erroring silence chunks auto-stopped the capture, state = %s", status.State)
	}
	if status.SilentChunks != 0 {
		t.Fatalf("failed checks counted toward the silent run: %d", status.SilentChunks)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, c, StateIdle)
}

func TestRestartGetsFreshHandle(t *testing.T) {
	backend := &scriptedBackend{detects: []bool{false}}
	c := newTestController(t, backend)

	if err := c.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// the device is released on stop, so a new capture can begin while the
	// exchange is still in flight
	if err := c.Start(); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	if got := c.Status().State; got != StateRecording {
		t.Fatalf("restart did not begin recording, state = %s", got)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("final Stop: %v", err)
	}
	waitForState(t, c, StateIdle)
}

func TestStartDuringCaptureStopsThenRestarts(t *testing.T) {
	backend := &scriptedBackend{detects: []bool{false}}
	c := newTestController(t, backend)

	if err := c.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	// a start while recording resolves the device conflict: the live
	// capture is stopped and dispatched, then a fresh handle begins
	if err := c.Start(); err != nil {
		t.Fatalf("Start during live capture: %v", err)
	}
	if got := c.Status().State; got != StateRecording {
		t.Fatalf("restart did not begin recording, state = %s", got)
	}

	deadline := time.After(2 * time.Second)
	for backend.interactCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("interrupted capture was never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, c, StateIdle)
}

func TestSimRecorderExclusive(t *testing.T) {
	recorder := NewSimRecorder(t.TempDir())

	rec, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := recorder.Start(context.Background()); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("expected ErrDeviceBusy, got %v", err)
	}

	if _, err := rec.Chunk(); err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	path, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Fatalf("capture file empty or missing: %v", err)
	}

	if _, err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("device not released after stop: %v", err)
	}
}

func TestStoreSaveListDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "recordings"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	src := filepath.Join(dir, "capture.m4a")
	if err := os.WriteFile(src, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	name, err := store.Save(src)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Ext(name) != ".m4a" {
		t.Fatalf("stored name lost its extension: %s", name)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != name || infos[0].Size != int64(len("audio-bytes")) {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	if err := store.Delete("../capture.m4a"); err == nil {
		t.Fatalf("path traversal must be rejected")
	}
	if err := store.Delete("missing.m4a"); !errors.Is(err, ErrRecordingNotFound) {
		t.Fatalf("expected ErrRecordingNotFound, got %v", err)
	}
	if err := store.Delete(name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	infos, err = store.List()
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("recording not removed: %+v", infos)
	}
}
