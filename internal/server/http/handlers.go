package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/export"
	"github.com/helixir/pubmed-harvester/internal/harvest"
	"github.com/helixir/pubmed-harvester/internal/observability"
)

const (
	maxQueryLength     = 10000
	maxRequestBodySize = 1 << 20 // 1 MB limit for request bodies

	// failedFormat is the export token for the failed identifier list.
	failedFormat = "failed"
)

// startHarvestRequest is the JSON request body for starting a harvest run.
type startHarvestRequest struct {
	Query       string `json:"query"`
	StartYear   string `json:"start_year,omitempty"`
	EndYear     string `json:"end_year,omitempty"`
	MaxParallel *int   `json:"max_parallel,omitempty"`
	MaxRecords  *int   `json:"max_records,omitempty"`
}

// startHarvest handles POST /harvests.
// Parameters are validated synchronously; the run itself proceeds in the
// background and is observed through the status and progress endpoints.
func (s *Server) startHarvest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req startHarvestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if len(req.Query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("query must be at most %d characters", maxQueryLength))
		return
	}

	params := harvest.Params{
		Query:       strings.TrimSpace(req.Query),
		StartYear:   strings.TrimSpace(req.StartYear),
		EndYear:     strings.TrimSpace(req.EndYear),
		MaxParallel: s.cfg.DefaultMaxParallel,
	}
	if req.MaxParallel != nil {
		params.MaxParallel = *req.MaxParallel
	}

	maxRecords := 0
	if req.MaxRecords != nil {
		if *req.MaxRecords < 0 {
			writeError(w, http.StatusBadRequest, "max_records must not be negative")
			return
		}
		maxRecords = *req.MaxRecords
	}

	now := s.now()
	if err := params.Validate(now); err != nil {
		writeDomainError(w, err)
		return
	}

	run := s.store.create(params, maxRecords, now)
	s.launch(run, observability.RequestIDFromContext(r.Context()))

	writeJSON(w, http.StatusAccepted, startHarvestResponse{
		RunID:     run.id.String(),
		Status:    string(domain.RunStatusPending),
		CreatedAt: run.createdAt,
		Message:   "harvest run started",
	})
}

// launch executes run in the background under the server's base context.
func (s *Server) launch(run *harvestRun, requestID string) {
	ctx := observability.WithRunID(s.baseCtx, run.id.String())
	if requestID != "" {
		ctx = observability.WithRequestID(ctx, requestID)
	}
	logger := observability.WithRunContext(s.logger, run.id.String(), run.params.Query)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error().Interface("panic", p).Msg("harvest run panicked")
				run.finish(nil, errors.New("internal error"))
			}
		}()

		run.start()
		report, err := s.runner.Run(ctx, run.params, run)
		run.finish(report, err)

		if err != nil {
			logger.Warn().Err(err).Msg("harvest run did not complete")
			return
		}
		logger.Info().
			Int("fetched", len(report.Result.Articles)).
			Int("failed", len(report.Result.FailedIDs)).
			Msg("harvest run completed")
	}()
}

// getHarvestStatus handles GET /harvests/{runID}.
func (s *Server) getHarvestStatus(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	run, err := s.store.get(runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runViewToStatusResponse(run.snapshot()))
}

// listHarvests handles GET /harvests.
func (s *Server) listHarvests(w http.ResponseWriter, r *http.Request) {
	views := s.store.list()

	status := r.URL.Query().Get("status")
	summaries := make([]harvestSummaryResponse, 0, len(views))
	for _, v := range views {
		if status != "" && string(v.Status) != status {
			continue
		}
		summaries = append(summaries, runViewToSummary(v))
	}

	writeJSON(w, http.StatusOK, listHarvestsResponse{
		Harvests:   summaries,
		TotalCount: len(summaries),
	})
}

// downloadExport handles GET /harvests/{runID}/exports/{format}.
func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseUUID(w, chi.URLParam(r, "runID"), "run_id")
	if !ok {
		return
	}

	formatName := chi.URLParam(r, "format")
	format, known := export.Lookup(formatName)
	if !known && formatName != failedFormat {
		writeDomainError(w, &domain.ExportError{Format: formatName})
		return
	}

	run, err := s.store.get(runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	payload, status, ok := run.export(formatName)
	if !ok {
		writeError(w, http.StatusConflict, fmt.Sprintf("run is %s; exports are available once it has completed", status))
		return
	}

	view := run.snapshot()
	filename := export.FailedIDsFilename
	contentType := "text/plain; charset=utf-8"
	if known {
		filename = export.Filename(s.cfg.FilePrefix, format, *view.CompletedAt)
		contentType = format.ContentType
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// listExportFormats handles GET /export-formats.
func (s *Server) listExportFormats(w http.ResponseWriter, _ *http.Request) {
	formats := export.Formats()
	resp := make([]exportFormatResponse, 0, len(formats))
	for _, f := range formats {
		resp = append(resp, exportFormatResponse{Name: f.Name, Extension: f.Extension, ContentType: f.ContentType})
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": resp})
}

// writeDomainError maps domain errors to appropriate HTTP status codes
// and writes a JSON error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var cfgErr *domain.ConfigError
	var exportErr *domain.ExportError

	switch {
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, cfgErr.Message)
	case errors.As(err, &exportErr):
		writeError(w, http.StatusBadRequest, exportErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrAborted):
		writeError(w, http.StatusConflict, "run aborted")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing potentially malicious input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}
