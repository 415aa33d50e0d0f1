package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/totcainc/knowledge-shadows/internal/capture"
)

// Factory builds ffmpeg-backed recorders.
type Factory struct {
	log zerolog.Logger
}

func NewFactory(log zerolog.Logger) *Factory {
	return &Factory{log: log.With().Str("component", "recorder").Logger()}
}

func (f *Factory) Supports(mimeType string) bool {
	switch mimeType {
	case capture.MimeTypeWebMVP9, capture.MimeTypeWebM:
		return true
	}
	return false
}

func (f *Factory) NewRecorder(stream capture.MediaStream, opts capture.RecorderOptions) (capture.Recorder, error) {
	interval := opts.ChunkInterval
	if interval <= 0 {
		interval = capture.DefaultChunkInterval
	}
	var inputs []string
	var display *Stream
	for _, t := range stream.Tracks() {
		ft, ok := t.(*Track)
		if !ok {
			return nil, fmt.Errorf("recorder needs ffmpeg tracks, got %T", t)
		}
		inputs = append(inputs, ft.args...)
		if ft.kind == capture.TrackKindVideo {
			display = ft.owner
		}
	}
	if len(inputs) == 0 {
		return nil, errors.New("stream has no tracks")
	}

	codec := "libvpx-vp9"
	if opts.MimeType == capture.MimeTypeWebM {
		codec = "libvpx"
	}
	args := append([]string{"-hide_banner", "-loglevel", "error"}, inputs...)
	args = append(args,
		"-c:v", codec,
		"-deadline", "realtime",
		"-b:v", "2M",
		"-c:a", "libopus",
		"-f", "webm",
		"pipe:1",
	)
	return &Recorder{
		args:     args,
		interval: interval,
		display:  display,
		chunks:   make(chan []byte, 64),
		done:     make(chan struct{}),
		log:      f.log,
	}, nil
}

// Recorder runs one ffmpeg process encoding the inputs to WebM on stdout and
// slices the byte stream into interval-sized chunks. The chunks channel
// closes only after the process has exited and the final bytes are flushed.
type Recorder struct {
	args     []string
	interval time.Duration
	display  *Stream
	log      zerolog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser

	chunks   chan []byte
	done     chan struct{}
	stopping atomic.Bool

	mu  sync.Mutex
	buf []byte
	eof bool
}

func (r *Recorder) Start() error {
	r.cmd = exec.Command("ffmpeg", r.args...)
	r.cmd.Stderr = os.Stderr
	out, err := r.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	r.stdout = out
	if err := r.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	go r.read()
	go r.pump()
	return nil
}

func (r *Recorder) Chunks() <-chan []byte { return r.chunks }

// Stop asks ffmpeg to finalize the container and waits for the pump to flush
// everything. A context expiry kills the process instead.
func (r *Recorder) Stop(ctx context.Context) error {
	r.stopping.Store(true)
	r.interrupt()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		_ = r.cmd.Process.Kill()
		<-r.done
		return ctx.Err()
	}
}

func (r *Recorder) interrupt() {
	if r.cmd == nil || r.cmd.Process == nil {
		return
	}
	// ffmpeg finishes the WebM cluster on SIGINT. Windows has no SIGINT
	// delivery for child processes, so the container may end truncated there.
	if runtime.GOOS == "windows" {
		_ = r.cmd.Process.Kill()
		return
	}
	_ = r.cmd.Process.Signal(os.Interrupt)
}

// read drains ffmpeg stdout into the shared buffer until EOF.
func (r *Recorder) read() {
	b := make([]byte, 64<<10)
	for {
		n, err := r.stdout.Read(b)
		if n > 0 {
			r.mu.Lock()
			r.buf = append(r.buf, b[:n]...)
			r.mu.Unlock()
		}
		if err != nil {
			r.mu.Lock()
			r.eof = true
			r.mu.Unlock()
			return
		}
	}
}

// pump emits a chunk per interval and, once the process exits, flushes the
// remainder and closes the channel.
func (r *Recorder) pump() {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for range t.C {
		chunk, eof := r.take()
		if len(chunk) > 0 {
			r.chunks <- chunk
		}
		if eof {
			break
		}
	}
	err := r.cmd.Wait()
	// one last take in case bytes landed between the final tick and Wait
	if chunk, _ := r.take(); len(chunk) > 0 {
		r.chunks <- chunk
	}
	close(r.chunks)
	close(r.done)
	if !r.stopping.Load() {
		if err != nil {
			r.log.Warn().Err(err).Msg("ffmpeg exited unexpectedly")
		}
		if r.display != nil {
			r.display.fireEnded()
		}
	}
}

func (r *Recorder) take() (chunk []byte, eof bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk = r.buf
	r.buf = nil
	return chunk, r.eof
}
