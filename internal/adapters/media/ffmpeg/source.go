// Package ffmpeg adapts the host's ffmpeg binary to the capture capability
// interfaces: the Source describes platform grab devices as media tracks and
// the Factory runs ffmpeg to encode them into chunked WebM.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/capture"
)

// Track describes one ffmpeg input device. Tracks are descriptors: the
// process consuming them is owned by the recorder, so Stop only marks the
// track released.
type Track struct {
	kind  capture.TrackKind
	label string
	// args are the ffmpeg input arguments for this device, e.g.
	// ["-f", "x11grab", "-i", ":0"].
	args []string

	owner    *Stream
	stopOnce sync.Once
}

func (t *Track) Kind() capture.TrackKind { return t.kind }
func (t *Track) Label() string           { return t.label }

func (t *Track) Stop() error {
	t.stopOnce.Do(func() {})
	return nil
}

// Stream groups the tracks granted by one acquisition call.
type Stream struct {
	tracks []capture.Track

	mu    sync.Mutex
	ended func()
	fired bool
}

func (s *Stream) Tracks() []capture.Track { return s.tracks }

// OnEnded registers the termination observer. If the device already went
// away before registration, fn runs immediately so the end is never lost.
func (s *Stream) OnEnded(fn func()) {
	s.mu.Lock()
	s.ended = fn
	fired := s.fired
	s.mu.Unlock()
	if fired && fn != nil {
		fn()
	}
}

func (s *Stream) Close() error {
	var merr *multierror.Error
	for _, t := range s.tracks {
		if err := t.Stop(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// fireEnded reports that the underlying device went away while recording,
// e.g. the X session closed. At most once.
func (s *Stream) fireEnded() {
	s.mu.Lock()
	fn := s.ended
	fired := s.fired
	s.fired = true
	s.mu.Unlock()
	if !fired && fn != nil {
		fn()
	}
}

// Source acquires display and microphone inputs through ffmpeg's platform
// grab devices.
type Source struct {
	log zerolog.Logger
}

func NewSource(log zerolog.Logger) *Source {
	return &Source{log: log.With().Str("component", "media").Logger()}
}

func (s *Source) CaptureDisplay(ctx context.Context, withAudio bool) (capture.MediaStream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", capture.ErrUnsupported)
	}
	stream := &Stream{}
	track, err := displayTrack(stream)
	if err != nil {
		return nil, err
	}
	stream.tracks = append(stream.tracks, track)
	if withAudio {
		if audio, ok := systemAudioTrack(stream); ok {
			stream.tracks = append(stream.tracks, audio)
		} else {
			s.log.Debug().Str("os", runtime.GOOS).Msg("system audio capture unavailable, video only")
		}
	}
	s.log.Info().Str("display", track.label).Msg("display capture acquired")
	return stream, nil
}

func (s *Source) CaptureMicrophone(ctx context.Context) (capture.MediaStream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", capture.ErrUnsupported)
	}
	stream := &Stream{}
	track, err := microphoneTrack(stream)
	if err != nil {
		return nil, err
	}
	stream.tracks = append(stream.tracks, track)
	return stream, nil
}

func displayTrack(owner *Stream) (*Track, error) {
	switch runtime.GOOS {
	case "linux":
		display := os.Getenv("DISPLAY")
		if display == "" {
			return nil, fmt.Errorf("no DISPLAY set: %w", capture.ErrUnsupported)
		}
		return &Track{
			kind:  capture.TrackKindVideo,
			label: "x11 display " + display,
			args:  []string{"-f", "x11grab", "-framerate", "30", "-i", display},
			owner: owner,
		}, nil
	case "darwin":
		// avfoundation device 1 is the primary screen on stock setups.
		return &Track{
			kind:  capture.TrackKindVideo,
			label: "avfoundation screen",
			args:  []string{"-f", "avfoundation", "-framerate", "30", "-i", "1:none"},
			owner: owner,
		}, nil
	case "windows":
		return &Track{
			kind:  capture.TrackKindVideo,
			label: "gdigrab desktop",
			args:  []string{"-f", "gdigrab", "-framerate", "30", "-i", "desktop"},
			owner: owner,
		}, nil
	default:
		return nil, fmt.Errorf("screen capture on %s: %w", runtime.GOOS, capture.ErrUnsupported)
	}
}

func systemAudioTrack(owner *Stream) (*Track, bool) {
	// Loopback/system audio needs a virtual device on most platforms; only
	// PulseAudio monitors are predictable enough to wire by default.
	if runtime.GOOS != "linux" || !pulseAvailable() {
		return nil, false
	}
	return &Track{
		kind:  capture.TrackKindAudio,
		label: "pulse monitor",
		args:  []string{"-f", "pulse", "-i", "@DEFAULT_MONITOR@"},
		owner: owner,
	}, true
}

func microphoneTrack(owner *Stream) (*Track, error) {
	switch runtime.GOOS {
	case "linux":
		if !pulseAvailable() {
			return nil, fmt.Errorf("no pulseaudio server: %w", capture.ErrUnsupported)
		}
		return &Track{
			kind:  capture.TrackKindAudio,
			label: "pulse default source",
			args:  []string{"-f", "pulse", "-i", "default"},
			owner: owner,
		}, nil
	case "darwin":
		return &Track{
			kind:  capture.TrackKindAudio,
			label: "avfoundation default microphone",
			args:  []string{"-f", "avfoundation", "-i", ":0"},
			owner: owner,
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture on %s: %w", runtime.GOOS, capture.ErrUnsupported)
	}
}

func pulseAvailable() bool {
	if os.Getenv("PULSE_SERVER") != "" {
		return true
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		if _, err := os.Stat(xdg + "/pulse/native"); err == nil {
			return true
		}
	}
	return false
}
