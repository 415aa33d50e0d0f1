package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/totcainc/knowledge-shadows/internal/usecase"
)

var allowedUploadTypes = map[string]struct{}{
	"video/webm":      {},
	"video/mp4":       {},
	"video/quicktime": {},
	"audio/webm":      {},
	"audio/mp4":       {},
	"audio/mpeg":      {},
	"audio/wav":       {},
}

// handleUploadVideo accepts the recording as multipart field `file` and
// attaches it to the shadow. Path: /api/upload/{id}/video.
func (d *Deps) handleUploadVideo(w http.ResponseWriter, r *http.Request) {
	sleepResponseDelay(d.Cfg)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/upload/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[1] != "video" || parts[0] == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	id := parts[0]

	failUpload := func(status int, msg string) {
		d.Metrics.UploadsTotal.WithLabelValues("failed").Inc()
		writeError(w, status, msg)
	}

	if _, ok, err := d.Svc.Get(r.Context(), id); err != nil || !ok {
		failUpload(http.StatusNotFound, "Shadow not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, d.Cfg.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		failUpload(http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedUploadTypes[contentType]; !ok {
		failUpload(http.StatusBadRequest, fmt.Sprintf("Invalid file type %q", contentType))
		return
	}

	ext := "webm"
	if i := strings.LastIndexByte(header.Filename, '.'); i >= 0 {
		// sanitize to prevent path traversal
		e := strings.NewReplacer("/", "", "\\", "", "..", "").Replace(header.Filename[i+1:])
		if e != "" {
			if len(e) > 10 {
				e = e[:10]
			}
			ext = e
		}
	}
	filename := id + "." + ext
	dst := filepath.Join(d.Cfg.VideoStoragePath, filename)

	if err := os.MkdirAll(d.Cfg.VideoStoragePath, 0o755); err != nil {
		failUpload(http.StatusInternalServerError, "Failed to save file")
		return
	}
	out, err := os.Create(dst)
	if err != nil {
		failUpload(http.StatusInternalServerError, "Failed to save file")
		return
	}
	written, err := io.Copy(out, io.LimitReader(file, d.Cfg.MaxUploadBytes+1))
	cerr := out.Close()
	if err != nil || cerr != nil {
		_ = os.Remove(dst)
		failUpload(http.StatusInternalServerError, "Failed to save file")
		return
	}
	if written > d.Cfg.MaxUploadBytes {
		_ = os.Remove(dst)
		failUpload(http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Maximum size: %dMB", d.Cfg.MaxUploadBytes>>20))
		return
	}

	shadow, err := d.Svc.AttachVideo(r.Context(), id, "/storage/videos/"+filename)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			failUpload(http.StatusNotFound, "Shadow not found")
			return
		}
		failUpload(http.StatusInternalServerError, err.Error())
		return
	}
	d.Metrics.UploadBytesTotal.Add(float64(written))
	d.Metrics.UploadsTotal.WithLabelValues("ok").Inc()
	d.Logger.Info().Str("shadow_id", id).Int64("bytes", written).Msg("video uploaded")
	writeJSON(w, http.StatusOK, shadow)
}
