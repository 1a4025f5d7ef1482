package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/drnu/drnu-downloader/server/archive"
	"github.com/drnu/drnu-downloader/server/internal"
	"github.com/drnu/drnu-downloader/server/internal/kv"
	"github.com/drnu/drnu-downloader/server/internal/scraper"
	"github.com/drnu/drnu-downloader/server/sys"
)

type Handler struct {
	service *Service
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, kv.ErrNotFound), errors.Is(err, archive.ErrNotFound), errors.Is(err, scraper.ErrProgramNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidURL), errors.Is(err, sys.ErrOutsideRoot):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) Exec() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		defer r.Body.Close()
		var req internal.DownloadRequest

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, err := h.service.Exec(req)
		if err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, id)
	}
}

func (h *Handler) Running() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		res, err := h.service.Running(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, res)
	}
}

func (h *Handler) Progress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		res, err := h.service.Progress(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeJSON(w, res)
	}
}

func (h *Handler) Kill() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id := chi.URLParam(r, "id")
		if err := h.service.Kill(id); err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeJSON(w, "ok")
	}
}

func (h *Handler) ClearCompleted() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, h.service.ClearCompleted())
	}
}

func (h *Handler) ProgramID() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		id, err := h.service.ProgramID(r.Context(), r.URL.Query().Get("url"))
		if err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeJSON(w, map[string]string{"id": id})
	}
}

func (h *Handler) FreeSpace() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		free, err := h.service.FreeSpace()
		if err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeJSON(w, free)
	}
}

func (h *Handler) Archived() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		res, err := h.service.Archived(r.Context(), limit, max(offset, 0))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, res)
	}
}

func (h *Handler) DeleteArchived() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if err := h.service.DeleteArchived(r.Context(), chi.URLParam(r, "id")); err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}

		writeJSON(w, "ok")
	}
}
