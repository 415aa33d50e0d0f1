package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/totcainc/knowledge-shadows/internal/domain"
	"github.com/totcainc/knowledge-shadows/internal/usecase"
)

type shadowCreateBody struct {
	Title     string   `json:"title"`
	UserNotes string   `json:"user_notes"`
	Tags      []string `json:"tags"`
}

type shadowPatchBody struct {
	Title     *string  `json:"title"`
	UserNotes *string  `json:"user_notes"`
	Tags      []string `json:"tags"`
	Status    *string  `json:"status"`
}

func (d *Deps) handleListShadows(w http.ResponseWriter, r *http.Request) {
	sleepResponseDelay(d.Cfg)
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	f := usecase.ShadowFilter{Skip: skip, Limit: limit}
	if v := r.URL.Query().Get("status_filter"); v != "" {
		st := domain.Status(v)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status_filter")
			return
		}
		f.Status = &st
	}
	items, _, err := d.Svc.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (d *Deps) handleStartShadow(w http.ResponseWriter, r *http.Request) {
	sleepResponseDelay(d.Cfg)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	var body shadowCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	shadow, err := d.Svc.Start(r.Context(), body.Title, body.UserNotes, body.Tags)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	d.Metrics.ShadowsCreatedTotal.Inc()
	d.Metrics.StatusTransitionsTotal.WithLabelValues(string(domain.StatusCapturing)).Inc()
	d.Logger.Info().Str("shadow_id", shadow.ID).Str("title", shadow.Title).Msg("shadow capture started")
	writeJSON(w, http.StatusOK, shadow)
}

// handleShadowByID routes /api/shadows/{id}[/(end|retry|chapters|decision-points)].
func (d *Deps) handleShadowByID(w http.ResponseWriter, r *http.Request) {
	sleepResponseDelay(d.Cfg)
	path := strings.TrimPrefix(r.URL.Path, "/api/shadows/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusNotFound, "Shadow not found")
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			d.getShadow(w, r, id)
		case http.MethodPatch:
			d.patchShadow(w, r, id)
		case http.MethodDelete:
			if err := d.Svc.Delete(r.Context(), id); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "Shadow deleted successfully"})
		default:
			writeError(w, http.StatusMethodNotAllowed, "")
		}
		return
	}
	switch parts[1] {
	case "end":
		d.endShadow(w, r, id)
	case "retry":
		d.retryShadow(w, r, id)
	case "chapters":
		chapters, err := d.Svc.ListChapters(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, chapters)
	case "decision-points":
		points, err := d.Svc.ListDecisionPoints(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, points)
	default:
		writeError(w, http.StatusNotFound, "resource not found")
	}
}

func (d *Deps) getShadow(w http.ResponseWriter, r *http.Request, id string) {
	shadow, ok, err := d.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Shadow not found")
		return
	}
	writeJSON(w, http.StatusOK, shadow)
}

func (d *Deps) patchShadow(w http.ResponseWriter, r *http.Request, id string) {
	var body shadowPatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	patch := usecase.ShadowPatch{Title: body.Title, UserNotes: body.UserNotes, Tags: body.Tags}
	if body.Status != nil {
		st := domain.Status(strings.ToLower(*body.Status))
		patch.Status = &st
	}
	shadow, err := d.Svc.Patch(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Shadow not found")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, shadow)
}

func (d *Deps) endShadow(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	shadow, err := d.Svc.End(r.Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Shadow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.Metrics.StatusTransitionsTotal.WithLabelValues(string(shadow.Status)).Inc()
	d.Monitor.Broadcast(MonitorEvent{Type: "status", ShadowID: id, Status: shadow.Status})
	d.Logger.Info().Str("shadow_id", id).Msg("shadow capture ended, processing queued")
	writeJSON(w, http.StatusOK, shadow)
}

func (d *Deps) retryShadow(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}
	shadow, err := d.Svc.Retry(r.Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Shadow not found")
			return
		}
		var retryErr *usecase.ErrRetryNotFailed
		if errors.As(err, &retryErr) {
			writeError(w, http.StatusBadRequest, retryErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	d.Metrics.StatusTransitionsTotal.WithLabelValues(string(shadow.Status)).Inc()
	d.Monitor.Broadcast(MonitorEvent{Type: "status", ShadowID: id, Status: shadow.Status})
	writeJSON(w, http.StatusOK, shadow)
}
