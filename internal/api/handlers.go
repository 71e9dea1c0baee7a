package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halvard/bragi/internal/apperr"
	"github.com/halvard/bragi/internal/engine"
	"github.com/halvard/bragi/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	eng *engine.Engine
}

// NewHandler creates a new Handler.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{eng: eng}
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	resp, err := h.eng.Search(r.Context(), q)
	if err != nil {
		writeSearchError(w, q.Text, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Results: resp.Results,
		Total:   resp.Total,
		Cached:  resp.Cached,
	})
}

func writeSearchError(w http.ResponseWriter, query string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidQuery):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrStoreUnavailable):
		slog.Error("search failed, store unavailable", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable"))
	default:
		slog.Error("search failed", slog.String("query", query), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// queryFromRequest parses search query parameters.
func queryFromRequest(r *http.Request) (models.Query, error) {
	v := r.URL.Query()
	q := models.Query{
		Text:            v.Get("q"),
		TagMode:         models.TagMode(v.Get("tag_mode")),
		Sort:            models.SortKey(v.Get("sort")),
		IncludeArchived: v.Get("include_archived") == "true",
		IncludeTrashed:  v.Get("include_trashed") == "true",
	}
	if tags := strings.TrimSpace(v.Get("tags")); tags != "" {
		q.Tags = strings.Split(tags, ",")
	}
	q.Limit, _ = strconv.Atoi(v.Get("limit"))
	q.Offset, _ = strconv.Atoi(v.Get("offset"))

	for name, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New(name + " must be RFC 3339")
		}
		*dst = &ts
	}
	return q, nil
}

// Mutate handles PATCH /api/notes/{id}.
func (h *Handler) Mutate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req MutateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	intent := models.MutationIntent{
		ID: id,
		Changes: models.FieldChanges{
			Title:    req.Title,
			Body:     req.Body,
			Tags:     req.Tags,
			Trashed:  req.Trashed,
			Archived: req.Archived,
			Pinned:   req.Pinned,
		},
		ExpectedModified: req.ExpectedModified,
	}

	res, err := h.eng.Mutate(r.Context(), intent)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalidQuery):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrStoreUnavailable):
			slog.Error("mutate failed, store unavailable", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable"))
		default:
			slog.Error("mutate failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	if !res.Applied {
		writeJSON(w, http.StatusConflict, MutateResponse{
			Applied:         false,
			CurrentModified: &res.CurrentModified,
			Warnings:        res.Warnings,
		})
		return
	}
	writeJSON(w, http.StatusOK, MutateResponse{
		Applied:     true,
		NewModified: &res.NewModified,
		Warnings:    res.Warnings,
	})
}

// Invalidate handles POST /api/cache/invalidate. An empty id list clears the
// whole cache.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if len(req.IDs) == 0 {
		h.eng.InvalidateAll()
	} else {
		h.eng.InvalidateFor(req.IDs)
	}
	w.WriteHeader(http.StatusNoContent)
}
