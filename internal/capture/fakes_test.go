package capture

import (
	"context"
	"errors"
	"sync"
)

// fakeTrack counts Stop calls so tests can assert the exactly-once guarantee.
type fakeTrack struct {
	kind  TrackKind
	label string

	mu    sync.Mutex
	stops int
}

func (t *fakeTrack) Kind() TrackKind { return t.kind }
func (t *fakeTrack) Label() string   { return t.label }

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	return nil
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeStream struct {
	tracks []Track

	mu      sync.Mutex
	ended   func()
	revoked bool
}

func (s *fakeStream) Tracks() []Track { return s.tracks }

func (s *fakeStream) OnEnded(fn func()) {
	s.mu.Lock()
	s.ended = fn
	revoked := s.revoked
	s.mu.Unlock()
	if revoked && fn != nil {
		fn()
	}
}

func (s *fakeStream) Close() error {
	var err error
	for _, t := range s.tracks {
		if e := t.Stop(); e != nil {
			err = e
		}
	}
	return err
}

// endExternally simulates the OS revoking the share.
func (s *fakeStream) endExternally() {
	s.mu.Lock()
	fn := s.ended
	s.revoked = true
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeSource struct {
	displayErr error
	micErr     error

	mu       sync.Mutex
	displays []*fakeStream
	mics     []*fakeStream
}

func (f *fakeSource) CaptureDisplay(ctx context.Context, withAudio bool) (MediaStream, error) {
	if f.displayErr != nil {
		return nil, f.displayErr
	}
	s := &fakeStream{tracks: []Track{&fakeTrack{kind: TrackKindVideo, label: "screen"}}}
	f.mu.Lock()
	f.displays = append(f.displays, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeSource) CaptureMicrophone(ctx context.Context) (MediaStream, error) {
	if f.micErr != nil {
		return nil, f.micErr
	}
	s := &fakeStream{tracks: []Track{&fakeTrack{kind: TrackKindAudio, label: "mic"}}}
	f.mu.Lock()
	f.mics = append(f.mics, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeSource) allTracks() []*fakeTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeTrack
	for _, s := range append(append([]*fakeStream{}, f.displays...), f.mics...) {
		for _, t := range s.tracks {
			out = append(out, t.(*fakeTrack))
		}
	}
	return out
}

// fakeRecorder replays scripted chunks when stopped.
type fakeRecorder struct {
	chunks   [][]byte
	startErr error
	stopErr  error

	ch       chan []byte
	stopOnce sync.Once
}

func newFakeRecorder(chunks ...[]byte) *fakeRecorder {
	return &fakeRecorder{chunks: chunks, ch: make(chan []byte, len(chunks)+1)}
}

func (r *fakeRecorder) Start() error { return r.startErr }

func (r *fakeRecorder) Chunks() <-chan []byte { return r.ch }

func (r *fakeRecorder) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		for _, c := range r.chunks {
			r.ch <- c
		}
		close(r.ch)
	})
	return r.stopErr
}

// emit pushes a chunk while "recording"; tests use it before Stop.
func (r *fakeRecorder) emit(c []byte) { r.ch <- c }

type fakeFactory struct {
	rec        *fakeRecorder
	newErr     error
	supports   map[string]bool
	lastOpts   RecorderOptions
	lastStream MediaStream
}

func (f *fakeFactory) Supports(mt string) bool { return f.supports[mt] }

func (f *fakeFactory) NewRecorder(stream MediaStream, opts RecorderOptions) (Recorder, error) {
	f.lastStream = stream
	f.lastOpts = opts
	if f.newErr != nil {
		return nil, f.newErr
	}
	return f.rec, nil
}

var errBackendDown = errors.New("backend down")
