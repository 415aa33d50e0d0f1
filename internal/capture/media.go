package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Media acquisition failures the controller needs to tell apart so it can
// show an actionable message. Adapters wrap these with %w.
var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrUnsupported      = errors.New("capture not supported in this environment")
)

type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// Track is one live media track owned by the current capture session.
// Stop must be idempotent: the controller guarantees it calls Stop on every
// exit path, including external share revocation, and must never double-free.
type Track interface {
	Kind() TrackKind
	Label() string
	Stop() error
}

// MediaStream is a handle over one or more live tracks. OnEnded observes
// termination of the primary video track outside of Close (the OS/user
// revoking the share through a native control); the callback fires at most
// once, immediately when the stream already ended before registration.
type MediaStream interface {
	Tracks() []Track
	OnEnded(fn func())
	Close() error
}

// MediaSource is the capability interface for acquiring media from the
// operating environment. Injected into the controller so the state machine
// stays testable without real hardware.
type MediaSource interface {
	// CaptureDisplay requests a display/monitor video stream, with system
	// audio when withAudio is set. Failure is fatal to the capture attempt
	// and should wrap ErrPermissionDenied or ErrUnsupported when applicable.
	CaptureDisplay(ctx context.Context, withAudio bool) (MediaStream, error)
	// CaptureMicrophone requests a microphone audio stream. Failure is
	// non-fatal: the caller proceeds with display-only media.
	CaptureMicrophone(ctx context.Context) (MediaStream, error)
}

// mergedStream combines a display stream with extra audio streams into one
// recordable handle. The termination observer stays bound to the display
// stream, whose primary video track is the one the OS can revoke.
type mergedStream struct {
	display MediaStream
	extra   []MediaStream

	closeOnce sync.Once
	closeErr  error
}

// Merge builds a single stream containing all of display's tracks plus the
// tracks of every extra stream. Extra streams that are nil are skipped.
func Merge(display MediaStream, extra ...MediaStream) MediaStream {
	m := &mergedStream{display: display}
	for _, s := range extra {
		if s != nil {
			m.extra = append(m.extra, s)
		}
	}
	return m
}

func (m *mergedStream) Tracks() []Track {
	out := append([]Track(nil), m.display.Tracks()...)
	for _, s := range m.extra {
		out = append(out, s.Tracks()...)
	}
	return out
}

func (m *mergedStream) OnEnded(fn func()) {
	m.display.OnEnded(fn)
}

// Close stops every track exactly once. Errors from individual tracks are
// collected rather than short-circuiting so one stuck track cannot leak the
// rest.
func (m *mergedStream) Close() error {
	m.closeOnce.Do(func() {
		var merr *multierror.Error
		for _, t := range m.Tracks() {
			if err := t.Stop(); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		m.closeErr = merr.ErrorOrNil()
	})
	return m.closeErr
}
