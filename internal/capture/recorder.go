package capture

import (
	"context"
	"time"
)

// Encodings tried in preference order when starting a recorder. Selection
// must never block or fail capture start: when neither is supported the
// recorder falls back to whatever it produces by default.
const (
	MimeTypeWebMVP9 = "video/webm;codecs=vp9"
	MimeTypeWebM    = "video/webm"
)

// DefaultChunkInterval bounds memory growth and makes partial data survive
// an unexpected termination: the recorder flushes encoded data this often
// instead of only at the end.
const DefaultChunkInterval = time.Second

type RecorderOptions struct {
	// MimeType is a hint; empty means recorder default.
	MimeType      string
	ChunkInterval time.Duration
}

// Recorder is the chunked-recorder capability interface. Implementations
// emit encoded chunks on Chunks at roughly ChunkInterval and close the
// channel only after Stop, once every buffered chunk has been delivered.
// That close is the single terminal "stopped" signal.
type Recorder interface {
	Start() error
	Chunks() <-chan []byte
	Stop(ctx context.Context) error
}

// RecorderFactory builds recorders for a stream and reports which encodings
// the runtime can produce.
type RecorderFactory interface {
	Supports(mimeType string) bool
	NewRecorder(stream MediaStream, opts RecorderOptions) (Recorder, error)
}

// PickMimeType negotiates the encoding: prefer VP9-in-WebM, fall back to
// baseline WebM, and otherwise leave the choice to the recorder.
func PickMimeType(f RecorderFactory) string {
	for _, mt := range []string{MimeTypeWebMVP9, MimeTypeWebM} {
		if f.Supports(mt) {
			return mt
		}
	}
	return ""
}
