package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"driverassist/internal/assistant"
	"driverassist/internal/geo"
)

// Capture states.
const (
	StateIdle       = "idle"
	StateRecording  = "recording"
	StateProcessing = "processing"
)

// Assistant is the backend surface the controller talks to.
type Assistant interface {
	Interact(ctx context.Context, sessionID, audioPath string, loc *geo.Point, order *assistant.OrderContext) (assistant.InteractResult, error)
	DetectSpeech(ctx context.Context, sessionID string, chunk []byte) (bool, error)
}

// Logger is the minimal logging surface the controller needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// ControllerConfig holds the voice-activity knobs.
type ControllerConfig struct {
	ChunkInterval    time.Duration
	SilentChunkLimit int
}

func (c *ControllerConfig) normalize() {
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 3 * time.Second
	}
	if c.SilentChunkLimit <= 0 {
		c.SilentChunkLimit = 2
	}
}

// Status is the externally visible capture state.
type Status struct {
	State             string `json:"state"`
	SessionID         string `json:"session_id"`
	SpeechDetected    bool   `json:"speech_detected"`
	SilentChunks      int    `json:"silent_chunks"`
	LastTranscription string `json:"last_transcription,omitempty"`
	LastResponse      string `json:"last_response,omitempty"`
	LastRecording     string `json:"last_recording,omitempty"`
}

// Controller runs voice capture with a silence-detection loop: once speech
// has been heard, a run of silent chunks auto-stops the capture and hands the
// audio to the assistant.
type Controller struct {
	cfg      ControllerConfig
	recorder Recorder
	backend  Assistant
	store    *Store
	player   assistant.Player
	logger   Logger
	locFn    func() *geo.Point
	orderFn  func() *assistant.OrderContext
	notify   func(Status)

	mu         sync.Mutex
	state      string
	sessionID  string
	rec        Recording
	cancelVAD  context.CancelFunc
	gen        int
	hasSpeech  bool
	silentRun  int
	lastResult assistant.InteractResult
	lastStored string
}

// NewController constructs a capture controller. player, locFn, orderFn and
// notify may be nil.
func NewController(cfg ControllerConfig, recorder Recorder, backend Assistant, store *Store, player assistant.Player, logger Logger, locFn func() *geo.Point, orderFn func() *assistant.OrderContext, notify func(Status)) *Controller {
	cfg.normalize()
	if logger == nil {
		logger = nopLogger{}
	}
	if player == nil {
		player = assistant.NopPlayer{}
	}
	return &Controller{
		cfg:       cfg,
		recorder:  recorder,
		backend:   backend,
		store:     store,
		player:    player,
		logger:    logger,
		locFn:     locFn,
		orderFn:   orderFn,
		notify:    notify,
		state:     StateIdle,
		sessionID: uuid.NewString(),
	}
}

// Status returns the current capture state. Safe for concurrent use.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:             c.state,
		SessionID:         c.sessionID,
		SpeechDetected:    c.hasSpeech,
		SilentChunks:      c.silentRun,
		LastTranscription: c.lastResult.Transcription,
		LastResponse:      c.lastResult.ResponseText,
		LastRecording:     c.lastStored,
	}
}

func (c *Controller) publishLocked() {
	if c.notify == nil {
		return
	}
	c.notify(c.statusLocked())
}

// Start begins a capture. A capture already running is force-stopped — its
// audio finalized and dispatched — before the new handle is acquired, so the
// previous device handle is always released first. A denied microphone
// permission is returned as-is.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording {
		c.logger.Infof("voice: capture already running, stopping it before restart")
		c.stopLocked()
	}

	rec, err := c.recorder.Start(context.Background())
	if err != nil {
		c.logger.Errorf("voice: start capture: %v", err)
		return err
	}

	c.rec = rec
	c.state = StateRecording
	c.hasSpeech = false
	c.silentRun = 0
	c.gen++

	vadCtx, cancel := context.WithCancel(context.Background())
	c.cancelVAD = cancel
	go c.vadLoop(vadCtx, c.gen, rec)

	c.logger.Infof("voice: capture started (session %s)", c.sessionID)
	c.publishLocked()
	return nil
}

// Stop ends the capture and dispatches the audio to the assistant in the
// background. The device is released immediately, so a new capture can start
// while the exchange is still in flight.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return fmt.Errorf("voice: no capture running")
	}
	c.stopLocked()
	return nil
}

func (c *Controller) stopLocked() {
	if c.cancelVAD != nil {
		c.cancelVAD()
		c.cancelVAD = nil
	}
	rec := c.rec
	c.rec = nil

	// the device is released here, before the exchange runs, so a new
	// capture can start while the assistant call is still in flight
	path, err := rec.Stop()
	if err != nil {
		c.logger.Errorf("voice: finalize capture: %v", err)
		c.state = StateIdle
		c.publishLocked()
		return
	}
	c.state = StateProcessing
	c.publishLocked()
	go c.finishCapture(c.gen, path)
}

func (c *Controller) vadLoop(ctx context.Context, gen int, rec Recording) {
	ticker := time.NewTicker(c.cfg.ChunkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk, err := rec.Chunk()
			if err != nil {
				c.logger.Errorf("voice: read chunk: %v", err)
				continue
			}
			detected, err := c.backend.DetectSpeech(ctx, c.sessionID, chunk)
			if err != nil {
				// detection failures count as speech so a live capture
				// is never cut off by a flaky check, whatever the
				// implementation returned alongside its error
				detected = true
				c.logger.Errorf("voice: speech detection failed, keeping capture alive: %v", err)
			}
			c.onChunk(gen, detected)
		}
	}
}

func (c *Controller) onChunk(gen int, detected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != StateRecording {
		return
	}

	if detected {
		c.hasSpeech = true
		c.silentRun = 0
		c.publishLocked()
		return
	}
	if !c.hasSpeech {
		// no speech yet: wait indefinitely for the driver to talk
		return
	}
	c.silentRun++
	c.publishLocked()
	if c.silentRun >= c.cfg.SilentChunkLimit {
		c.logger.Infof("voice: %d silent chunks after speech, auto-stopping", c.silentRun)
		c.stopLocked()
	}
}

func (c *Controller) finishCapture(gen int, path string) {
	if c.store != nil {
		name, err := c.store.Save(path)
		if err != nil {
			c.logger.Errorf("voice: persist recording: %v", err)
		} else {
			c.mu.Lock()
			c.lastStored = name
			c.mu.Unlock()
		}
	}

	var loc *geo.Point
	if c.locFn != nil {
		loc = c.locFn()
	}
	var order *assistant.OrderContext
	if c.orderFn != nil {
		order = c.orderFn()
	}

	result, err := c.backend.Interact(context.Background(), c.sessionID, path, loc, order)
	if err != nil {
		if errors.Is(err, assistant.ErrTimeout) {
			c.logger.Errorf("voice: assistant timed out")
		} else {
			c.logger.Errorf("voice: assistant exchange failed: %v", err)
		}
		c.setIdle(gen)
		return
	}

	c.mu.Lock()
	c.lastResult = result
	c.mu.Unlock()
	c.logger.Infof("voice: assistant replied (%d chars)", len(result.ResponseText))

	if result.AudioFilePath != "" {
		if err := c.player.Play(context.Background(), result.AudioFilePath); err != nil {
			c.logger.Errorf("voice: play response: %v", err)
		}
	}
	c.setIdle(gen)
}

func (c *Controller) setIdle(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a newer capture may already be running; leave its state alone
	if gen != c.gen || c.state == StateRecording {
		return
	}
	c.state = StateIdle
	c.publishLocked()
}
