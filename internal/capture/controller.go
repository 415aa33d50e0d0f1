// Package capture drives a screen-capture session from permission request
// through chunked recording to upload and finalization, against injected
// media/recorder/backend capability interfaces.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateRecording            State = "recording"
	StateUploading            State = "uploading"
	StateEnding               State = "ending"
)

var (
	// ErrCaptureActive rejects a start while a session is already running:
	// at most one capture session is active per controller.
	ErrCaptureActive = errors.New("a capture session is already active")
	// ErrNotRecording rejects an end when there is nothing to end.
	ErrNotRecording = errors.New("no active recording")
)

// User-visible messages, classified per failure cause.
const (
	msgPermissionDenied = "Screen sharing permission was denied. Allow screen capture and try again."
	msgUnsupported      = "Screen capture is not supported in this environment."
	msgCaptureFailed    = "Could not start screen capture."
	msgSaveFailed       = "Failed to save recording. Please try again."
)

// Backend is the slice of the remote resource facade the controller needs.
type Backend interface {
	StartShadow(ctx context.Context, title, userNotes string, tags []string) (domain.Shadow, error)
	UploadVideo(ctx context.Context, shadowID string, blob []byte) (domain.Shadow, error)
	EndShadow(ctx context.Context, shadowID string) (domain.Shadow, error)
}

type StartOptions struct {
	Title     string
	UserNotes string
	Tags      []string
}

// Snapshot is an immutable view of the session for UI feedback.
type Snapshot struct {
	State          State
	ElapsedSeconds int
	RecordID       string
	LastError      string
}

type ControllerOptions struct {
	Source    MediaSource
	Recorders RecorderFactory
	Backend   Backend
	Logger    zerolog.Logger

	// ChunkInterval defaults to DefaultChunkInterval.
	ChunkInterval time.Duration
	// TickInterval is the elapsed-counter period; defaults to one second.
	TickInterval time.Duration

	// Navigate is invoked with the record id after a successful end, the
	// moment the session resets. Optional.
	Navigate func(shadowID string)
	// OnChange receives a snapshot after every observable transition. Optional.
	OnChange func(Snapshot)
}

// Controller is the capture state machine. All fields are guarded by mu;
// external calls (media, recorder, network) happen outside the lock so a
// hung call never wedges snapshot reads.
type Controller struct {
	opts ControllerOptions
	log  zerolog.Logger

	mu       sync.Mutex
	state    State
	elapsed  int
	recordID string
	lastErr  string
	media    MediaStream
	session  *Session
	tickStop chan struct{}
}

func NewController(opts ControllerOptions) *Controller {
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = DefaultChunkInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Controller{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "capture").Logger(),
		state: StateIdle,
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{State: c.state, ElapsedSeconds: c.elapsed, RecordID: c.recordID, LastError: c.lastErr}
}

func (c *Controller) emitLocked() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.snapshotLocked())
	}
}

// Start acquires media, creates the remote record and begins recording.
// Only accepted from idle; any previous error is cleared on entry.
func (c *Controller) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrCaptureActive
	}
	c.state = StateRequestingPermission
	c.lastErr = ""
	c.emitLocked()
	c.mu.Unlock()

	media, err := c.acquireMedia(ctx)
	if err != nil {
		c.failStart(nil, classifyMediaError(err))
		return err
	}

	shadow, err := c.opts.Backend.StartShadow(ctx, opts.Title, opts.UserNotes, opts.Tags)
	if err != nil {
		// Media was granted before the create failed; it must still be
		// released before returning to idle.
		c.log.Error().Err(err).Msg("create shadow failed")
		c.failStart(media, msgSaveFailed)
		return err
	}

	var session *Session
	rec, err := c.opts.Recorders.NewRecorder(media, RecorderOptions{
		MimeType:      PickMimeType(c.opts.Recorders),
		ChunkInterval: c.opts.ChunkInterval,
	})
	if err == nil {
		session = NewSession(rec)
		err = session.Start()
	}
	if err != nil {
		c.log.Error().Err(err).Msg("recorder start failed")
		c.failStart(media, msgCaptureFailed)
		return err
	}

	c.mu.Lock()
	c.media = media
	c.session = session
	c.recordID = shadow.ID
	c.state = StateRecording
	c.startTimerLocked()
	c.emitLocked()
	c.mu.Unlock()

	// External share revocation ends the session exactly like an explicit
	// user end, not as an error. Registered only after the transition to
	// recording so End never sees ErrNotRecording; streams fire the callback
	// immediately when the share was already revoked during setup.
	media.OnEnded(func() {
		c.log.Info().Str("shadow_id", shadow.ID).Msg("display share ended externally")
		_, _ = c.End(context.Background())
	})

	c.log.Info().Str("shadow_id", shadow.ID).Msg("recording started")
	return nil
}

// End stops the recorder, drains buffered chunks, releases media, uploads
// the assembled payload and finalizes the record. Returns the record id.
// Safe to call concurrently with the external track-ended signal: whichever
// arrives first wins, the other is a no-op.
func (c *Controller) End(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	c.state = StateUploading
	c.stopTimerLocked()
	session := c.session
	media := c.media
	recordID := c.recordID
	c.emitLocked()
	c.mu.Unlock()

	// Block until the recorder has flushed all buffered data; only then is
	// the payload complete.
	stopErr := session.Stop(ctx)

	if err := media.Close(); err != nil {
		c.log.Warn().Err(err).Msg("releasing media tracks")
	}

	if stopErr != nil {
		c.log.Error().Err(stopErr).Str("shadow_id", recordID).Msg("recorder stop failed")
		c.reset(msgSaveFailed)
		return recordID, stopErr
	}

	payload := session.Payload()
	if len(payload) > 0 {
		if _, err := c.opts.Backend.UploadVideo(ctx, recordID, payload); err != nil {
			c.log.Error().Err(err).Str("shadow_id", recordID).Msg("upload failed")
			c.reset(msgSaveFailed)
			return recordID, err
		}
	} else {
		c.log.Warn().Str("shadow_id", recordID).Msg("empty payload, skipping upload")
	}

	c.mu.Lock()
	c.state = StateEnding
	c.emitLocked()
	c.mu.Unlock()

	if _, err := c.opts.Backend.EndShadow(ctx, recordID); err != nil {
		// The remote record keeps whatever status the backend left it in;
		// the session still resets so the UI cannot get stuck.
		c.log.Error().Err(err).Str("shadow_id", recordID).Msg("end shadow failed")
		c.reset(msgSaveFailed)
		return recordID, err
	}

	c.reset("")
	c.log.Info().Str("shadow_id", recordID).Msg("capture finished")
	if c.opts.Navigate != nil {
		c.opts.Navigate(recordID)
	}
	return recordID, nil
}

// Close releases anything the controller still holds. The cleanup obligation
// on teardown is stopping every acquired track; nothing is uploaded.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.stopTimerLocked()
	session := c.session
	media := c.media
	c.session = nil
	c.media = nil
	c.recordID = ""
	c.elapsed = 0
	c.state = StateIdle
	c.mu.Unlock()

	if session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = session.Stop(ctx)
	}
	if media != nil {
		return media.Close()
	}
	return nil
}

// acquireMedia requests display capture (fatal on failure) and a microphone
// stream (non-fatal), merging whatever was granted into one handle.
func (c *Controller) acquireMedia(ctx context.Context) (MediaStream, error) {
	display, err := c.opts.Source.CaptureDisplay(ctx, true)
	if err != nil {
		return nil, err
	}
	mic, err := c.opts.Source.CaptureMicrophone(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("microphone unavailable, recording display only")
		return Merge(display), nil
	}
	return Merge(display, mic), nil
}

// failStart releases already-acquired media and returns the session to idle
// with the classified message set.
func (c *Controller) failStart(media MediaStream, msg string) {
	if media != nil {
		if err := media.Close(); err != nil {
			c.log.Warn().Err(err).Msg("releasing media tracks")
		}
	}
	c.reset(msg)
}

// reset returns all session fields to their initial values. Called on every
// path out of the session, success or failure, so nothing stays stuck.
func (c *Controller) reset(errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.state = StateIdle
	c.elapsed = 0
	c.recordID = ""
	c.lastErr = errMsg
	c.media = nil
	c.session = nil
	c.emitLocked()
}

func (c *Controller) startTimerLocked() {
	stop := make(chan struct{})
	c.tickStop = stop
	c.elapsed = 0
	go func() {
		t := time.NewTicker(c.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.mu.Lock()
				if c.tickStop != stop {
					c.mu.Unlock()
					return
				}
				c.elapsed++
				c.emitLocked()
				c.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (c *Controller) stopTimerLocked() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func classifyMediaError(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return msgPermissionDenied
	case errors.Is(err, ErrUnsupported):
		return msgUnsupported
	default:
		return msgCaptureFailed
	}
}
