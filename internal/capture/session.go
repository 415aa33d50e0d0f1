package capture

import (
	"context"
	"sync"
)

// Session wraps a Recorder and accumulates its chunks in emission order.
// Playback depends on byte-sequential concatenation, so chunks are never
// reordered, deduplicated or dropped (empty emissions excepted).
type Session struct {
	rec Recorder

	mu     sync.Mutex
	chunks [][]byte

	drained chan struct{}
}

func NewSession(rec Recorder) *Session {
	return &Session{rec: rec, drained: make(chan struct{})}
}

func (s *Session) Start() error {
	if err := s.rec.Start(); err != nil {
		return err
	}
	go s.drain()
	return nil
}

// drain is the single consumer of the recorder's chunk channel; appends are
// serial so emission order is preserved exactly.
func (s *Session) drain() {
	for chunk := range s.rec.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, chunk)
		s.mu.Unlock()
	}
	close(s.drained)
}

// Stop halts the recorder and blocks until every emitted chunk has been
// appended. Callers must not read Payload before Stop returns, or the upload
// may be truncated.
func (s *Session) Stop(ctx context.Context) error {
	if err := s.rec.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-s.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Payload assembles the final binary blob as the ordered concatenation of
// all accumulated chunks.
func (s *Session) Payload() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}
