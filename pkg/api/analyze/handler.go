// Package analyze serves POST /api/analyze.
package analyze

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"finstory/pkg/core/analysis"
	"finstory/pkg/core/ingest"
	"finstory/pkg/core/pipeline"
	"finstory/pkg/core/report"
	"finstory/pkg/models"
)

// Runner runs one analysis; *pipeline.Orchestrator and *store.CachedRunner
// both satisfy it.
type Runner = pipeline.Runner

// Request is the JSON body. Persona may also be given as ?persona=.
type Request struct {
	Persona string                   `json:"persona"`
	Periods []map[string]interface{} `json:"periods"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler holds dependencies for the analyze endpoint.
type Handler struct {
	runner  Runner
	maxBody int64
	log     zerolog.Logger
}

// NewHandler creates a new analyze handler.
func NewHandler(runner Runner, maxBody int64, log zerolog.Logger) *Handler {
	return &Handler{
		runner:  runner,
		maxBody: maxBody,
		log:     log.With().Str("handler", "analyze").Logger(),
	}
}

// HandleAnalyze runs the pipeline over the posted series.
// POST /api/analyze?persona=CFO&format=json|markdown|html|pdf
// Body: application/json Request, or text/csv with a header row.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	series, persona, err := h.decode(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.runner.Run(r.Context(), series, persona)
	switch {
	case errors.Is(err, analysis.ErrInsufficientData):
		h.log.Info().Err(err).Msg("analysis rejected")
		h.writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	case errors.Is(err, pipeline.ErrCancelled):
		h.log.Info().Msg("client went away before analysis finished")
		h.writeError(w, http.StatusServiceUnavailable, "analysis cancelled")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("analysis failed")
		h.writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	body, err := report.Render(res, format)
	if err != nil {
		h.log.Error().Err(err).Str("format", string(format)).Msg("render failed")
		h.writeError(w, http.StatusInternalServerError, "failed to render result")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Run-ID", res.RunID)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) decode(r *http.Request) (models.PeriodSeries, models.Persona, error) {
	persona := r.URL.Query().Get("persona")

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return models.PeriodSeries{}, "", fmt.Errorf("invalid content type: %w", err)
		}
		mediaType = mt
	}

	switch {
	case mediaType == "text/csv" || strings.HasSuffix(mediaType, "/csv"):
		series, err := ingest.ReadCSV(r.Body)
		if err != nil {
			return models.PeriodSeries{}, "", fmt.Errorf("invalid csv: %w", err)
		}
		return series, models.Persona(persona), nil

	case mediaType == "application/json":
		var req Request
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			return models.PeriodSeries{}, "", fmt.Errorf("invalid request body: %w", err)
		}
		series, err := ingest.FromRows(req.Periods)
		if err != nil {
			return models.PeriodSeries{}, "", fmt.Errorf("invalid periods: %w", err)
		}
		if req.Persona != "" {
			persona = req.Persona
		}
		return series, models.Persona(persona), nil
	}
	return models.PeriodSeries{}, "", fmt.Errorf("unsupported content type %q", mediaType)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
