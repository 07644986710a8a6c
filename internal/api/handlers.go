package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/neo"
	"github.com/JakeFAU/neows-archiver/internal/neows"
	"github.com/JakeFAU/neows-archiver/internal/normalize"
)

// getNEO handles GET /v1/neo/{id}. The record is normalized with its own
// approaches unless raw=true asks for the provider body verbatim.
func (s *Server) getNEO(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	raw, _ := strconv.ParseBool(r.URL.Query().Get("raw"))
	if raw {
		body, err := s.provider.LookupRaw(r.Context(), id)
		if err != nil {
			s.writeUpstreamError(w, r, "lookup", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	detail, err := s.lookuper.Lookup(r.Context(), id)
	if err != nil {
		s.writeUpstreamError(w, r, "lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, normalize.Record(detail, detail.Approaches))
}

// getFeed handles GET /v1/feed?start_date=&end_date=, returning hazardous
// objects in the window ordered by closest approach.
func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start_date"), q.Get("end_date")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	records, err := s.provider.HazardousInWindow(r.Context(), start, end)
	if err != nil {
		s.writeUpstreamError(w, r, "feed", err)
		return
	}
	if records == nil {
		records = []neo.NormalizedRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start_date":         start,
		"end_date":           end,
		"count":              len(records),
		"near_earth_objects": records,
	})
}

// getArchived handles GET /v1/archive/{id}.
func (s *Server) getArchived(w http.ResponseWriter, r *http.Request) {
	row, err := s.archive.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, neo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("archive get failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// archiveStats handles GET /v1/archive/stats.
func (s *Server) archiveStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.archive.Count(r.Context())
	if err != nil {
		s.logger.Error("archive count failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// writeUpstreamError maps provider failures onto client-facing statuses.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var statusErr *neo.StatusError
	switch {
	case errors.Is(err, neo.ErrInvalidWindow), errors.Is(err, neows.ErrEmptyID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, neo.ErrNotFound),
		errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "upstream timed out")
	default:
		s.logger.Warn("upstream call failed",
			zap.String("op", op),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	}
}
