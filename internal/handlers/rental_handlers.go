package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"rental-analytics/internal/analytics"
	"rental-analytics/internal/models"
	"rental-analytics/internal/repository"
	"rental-analytics/internal/services"
	"rental-analytics/pkg/logging"
	"rental-analytics/pkg/metrics"
)

// NoDataMessage is returned when a selection matches no records
const NoDataMessage = "no data for current selection"

// Pagination bounds for record listings
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// RentalHandler handles rental analytics API endpoints
type RentalHandler struct {
	analyticsService *services.AnalyticsService
	logger           *logging.StructuredLogger
	metrics          *metrics.Collector
}

// NewRentalHandler creates a new rental handler
func NewRentalHandler(
	analyticsService *services.AnalyticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *RentalHandler {
	return &RentalHandler{
		analyticsService: analyticsService,
		logger:           logger,
		metrics:          metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// AnalysisResponse is a full result plus the empty-selection signal
type AnalysisResponse struct {
	*analytics.Result
	NoData  bool   `json:"no_data"`
	Message string `json:"message,omitempty"`
}

// InsightsResponse lists the insights for one selection
type InsightsResponse struct {
	Selection analytics.Selection `json:"selection"`
	Insights  []analytics.Insight `json:"insights"`
	NoData    bool                `json:"no_data"`
	Message   string              `json:"message,omitempty"`
}

// GetAnalysis handles GET /api/rentals/analysis
func (h *RentalHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sel, err := ParseSelection(r.URL.Query())
	if err != nil {
		h.sendError(w, r, "invalid_filter", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.analyticsService.Analyze(ctx, sel)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_ANALYSIS_ERROR] Failed to analyze selection", logging.Fields{
			"selection": sel.Key(),
		}, err)
		h.sendError(w, r, "internal_error", "failed to compute analysis", http.StatusInternalServerError)
		return
	}

	response := AnalysisResponse{Result: result, NoData: result.NoData()}
	if response.NoData {
		response.Message = NoDataMessage
	}

	h.sendJSON(w, response, http.StatusOK)
}

// GetRecords handles GET /api/rentals/records
func (h *RentalHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	sel, err := ParseSelection(query)
	if err != nil {
		h.sendError(w, r, "invalid_filter", err.Error(), http.StatusBadRequest)
		return
	}

	page := 1
	limit := DefaultPageLimit

	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= MaxPageLimit {
			limit = l
		}
	}

	// keep (page-1)*limit within int; such a page is past the end and comes back empty
	page = min(page, math.MaxInt/limit)
	offset := (page - 1) * limit

	records, total, err := h.analyticsService.Records(ctx, sel, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_RECORDS_ERROR] Failed to get records", logging.Fields{
			"selection": sel.Key(),
			"page":      page,
			"limit":     limit,
		}, err)
		h.sendError(w, r, "internal_error", "failed to retrieve records", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       records,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.sendJSON(w, response, http.StatusOK)
}

// GetRecord handles GET /api/rentals/records/{day_index}
func (h *RentalHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dayIndex, err := strconv.Atoi(mux.Vars(r)["day_index"])
	if err != nil {
		h.sendError(w, r, "invalid_day_index", "day_index must be an integer", http.StatusBadRequest)
		return
	}

	record, err := h.analyticsService.Record(ctx, dayIndex)
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			h.sendError(w, r, "not_found", nf.Error(), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_GET_RECORD_ERROR] Failed to get record", logging.Fields{
			"day_index": dayIndex,
		}, err)
		h.sendError(w, r, "internal_error", "failed to retrieve record", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, record, http.StatusOK)
}

// GetInsights handles GET /api/rentals/insights
func (h *RentalHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sel, err := ParseSelection(r.URL.Query())
	if err != nil {
		h.sendError(w, r, "invalid_filter", err.Error(), http.StatusBadRequest)
		return
	}

	insights, err := h.analyticsService.Insights(ctx, sel)
	if err != nil {
		h.logger.Error(ctx, "[API_GET_INSIGHTS_ERROR] Failed to derive insights", logging.Fields{
			"selection": sel.Key(),
		}, err)
		h.sendError(w, r, "internal_error", "failed to derive insights", http.StatusInternalServerError)
		return
	}

	response := InsightsResponse{
		Selection: sel.Normalize(),
		Insights:  insights,
		NoData:    len(insights) == 0,
	}
	if response.Insights == nil {
		response.Insights = []analytics.Insight{}
	}
	if response.NoData {
		response.Message = NoDataMessage
	}

	h.sendJSON(w, response, http.StatusOK)
}

// Reload handles POST /api/rentals/reload
func (h *RentalHandler) Reload(w http.ResponseWriter, r *http.Request) {
	h.analyticsService.Reset()

	h.logger.Info(r.Context(), "[API_RELOAD] Analytics cache cleared", logging.Fields{
		"source": h.analyticsService.SourceName(),
	})

	h.sendJSON(w, map[string]string{"status": "reloaded"}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *RentalHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":        "healthy",
		"source":        h.analyticsService.SourceName(),
		"cache_entries": h.analyticsService.CacheEntries(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.analyticsService.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Record source unhealthy", logging.Fields{
			"source": h.analyticsService.SourceName(),
			"error":  err.Error(),
		})
		status["status"] = "unhealthy"
		status["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, status, code)
}

// ParseSelection reads the year, weather, holiday and category filters.
// Each may repeat or carry comma-separated values; absent means unrestricted.
func ParseSelection(query url.Values) (analytics.Selection, error) {
	var sel analytics.Selection
	var err error

	if sel.Years, err = parseDimension(query, "year", models.ParseYear); err != nil {
		return sel, err
	}
	if sel.Weather, err = parseDimension(query, "weather", models.ParseWeather); err != nil {
		return sel, err
	}
	if sel.Holidays, err = parseDimension(query, "holiday", models.ParseHoliday); err != nil {
		return sel, err
	}
	if sel.Categories, err = parseDimension(query, "category", models.ParseCategory); err != nil {
		return sel, err
	}

	return sel, nil
}

func parseDimension[T any](query url.Values, name string, parse func(string) (T, error)) ([]T, error) {
	var out []T
	for _, raw := range query[name] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := parse(part)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", name, part, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// sendJSON sends a JSON response
func (h *RentalHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	writeJSON(w, data, statusCode)
}

// sendError sends an error response
func (h *RentalHandler) sendError(w http.ResponseWriter, r *http.Request, errorType, message string, statusCode int) {
	endpoint := r.URL.Path
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			endpoint = tmpl
		}
	}
	h.metrics.RecordAPIError(errorType, endpoint)

	response := ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: logging.RequestID(r.Context()),
	}

	h.sendJSON(w, response, statusCode)
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// RegisterRoutes registers all rental API routes
func (h *RentalHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/rentals/analysis", h.GetAnalysis).Methods(http.MethodGet)
	router.HandleFunc("/api/rentals/records", h.GetRecords).Methods(http.MethodGet)
	router.HandleFunc("/api/rentals/records/{day_index:[0-9]+}", h.GetRecord).Methods(http.MethodGet)
	router.HandleFunc("/api/rentals/insights", h.GetInsights).Methods(http.MethodGet)
	router.HandleFunc("/api/rentals/reload", h.Reload).Methods(http.MethodPost)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
}
