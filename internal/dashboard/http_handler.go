package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/store"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
	logger  logrus.FieldLogger
	mux     *http.ServeMux
}

// NewHTTPHandler routes the read-only dashboard API. Only GET is served.
func NewHTTPHandler(service *Service, logger logrus.FieldLogger) http.Handler {
	h := &Handler{service: service, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.HandleFunc("GET /api/models", h.handleListModels)
	h.mux.HandleFunc("GET /api/models/{collection}/records", h.handleRecords)
	h.mux.HandleFunc("GET /api/models/{collection}/summary", h.handleSummary)
	h.mux.HandleFunc("GET /api/models/{collection}/export.csv", h.handleExport)
	h.mux.HandleFunc("GET /api/runs", h.handleListRuns)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.service.Models(r.Context())
	if err != nil {
		h.serverError(w, "list models", err)
		return
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (h *Handler) handleRecords(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := h.service.Records(r.Context(), collection, filter)
	if err != nil {
		h.readError(w, collection, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summary, err := h.service.Summary(r.Context(), collection, filter)
	if err != nil {
		h.readError(w, collection, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, filename, err := h.service.Export(r.Context(), collection, filter)
	if err != nil {
		h.readError(w, collection, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if err := WriteCSV(w, records); err != nil {
		h.logger.WithError(err).WithField("collection", collection).Warn("csv export interrupted")
	}
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	runs, err := h.service.Runs(r.Context(), limit)
	if err != nil {
		h.serverError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) readError(w http.ResponseWriter, collection string, err error) {
	if errors.Is(err, store.ErrCollectionNotFound) {
		http.Error(w, fmt.Sprintf("model %q not found", collection), http.StatusNotFound)
		return
	}
	h.serverError(w, "read "+collection, err)
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.WithError(err).WithField("op", op).Error("dashboard request failed")
	http.Error(w, fmt.Sprintf("%s: %v", op, err), http.StatusInternalServerError)
}

func parseFilter(r *http.Request) (domain.RecordFilter, error) {
	query := r.URL.Query()
	var filter domain.RecordFilter
	if raw := strings.TrimSpace(query.Get("shift")); raw != "" {
		shift, err := domain.ParseShift(raw)
		if err != nil {
			return filter, err
		}
		filter.Shift = &shift
	}
	filter.Process = strings.TrimSpace(query.Get("process"))
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
