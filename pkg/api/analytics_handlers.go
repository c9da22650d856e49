package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/httputil"
	"github.com/platinummonkey/tally/pkg/observability"
)

// DefaultDays is the trailing window used when ?days is absent
const DefaultDays = 30

// AnalyticsHandlers provides analytics API endpoints
type AnalyticsHandlers struct {
	service *analytics.Service
}

// NewAnalyticsHandlers creates a new analytics handlers instance
func NewAnalyticsHandlers(service *analytics.Service) *AnalyticsHandlers {
	return &AnalyticsHandlers{
		service: service,
	}
}

// RegisterRoutes registers analytics API routes
func (h *AnalyticsHandlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/analytics", h.getGlobalMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/feature/{feature_name}", h.getFeatureMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/user/analytics/{user_id}", h.getUserAnalytics).Methods(http.MethodGet)

	// Trailing-window views, ?days=N (default 30)
	r.HandleFunc("/api/analytics/usage/metrics", h.getUsageMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/usage/features", h.getFeatureUsage).Methods(http.MethodGet)
	r.HandleFunc("/api/analytics/usage/peak-hours", h.getPeakHours).Methods(http.MethodGet)

	r.HandleFunc("/api/analytics/usage", h.logUsage).Methods(http.MethodPost)
}

// getGlobalMetrics handles GET /api/analytics
func (h *AnalyticsHandlers) getGlobalMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetGlobalMetrics(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// getFeatureMetrics handles GET /api/analytics/feature/{feature_name}.
// An unknown feature is an empty object, not an error.
func (h *AnalyticsHandlers) getFeatureMetrics(w http.ResponseWriter, r *http.Request) {
	feature, ok := httputil.ParsePathStringOrError(w, r, "feature_name")
	if !ok {
		return
	}

	m, found, err := h.service.GetFeatureMetrics(r.Context(), feature)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if !found {
		httputil.WriteSuccess(w, struct{}{})
		return
	}
	httputil.WriteSuccess(w, m)
}

// getUsageMetrics handles GET /api/analytics/usage/metrics
func (h *AnalyticsHandlers) getUsageMetrics(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	t, err := h.service.GetUsageMetrics(r.Context(), days)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

// getFeatureUsage handles GET /api/analytics/usage/features
func (h *AnalyticsHandlers) getFeatureUsage(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetFeatureUsage(r.Context(), days)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, u)
}

// getPeakHours handles GET /api/analytics/usage/peak-hours
func (h *AnalyticsHandlers) getPeakHours(w http.ResponseWriter, r *http.Request) {
	days, ok := parseDays(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetPeakHours(r.Context(), days)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// getUserAnalytics handles GET /api/analytics/user/analytics/{user_id}
func (h *AnalyticsHandlers) getUserAnalytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	ctx := observability.WithUserID(r.Context(), userID)
	m, err := h.service.GetUserAnalytics(ctx, userID)
	if err != nil {
		h.serverError(w, r.WithContext(ctx), err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// logUsage handles POST /api/analytics/usage
func (h *AnalyticsHandlers) logUsage(w http.ResponseWriter, r *http.Request) {
	var req LogUsageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	in := req.toInput()
	analytics.RequestMetadata(r, &in)

	ctx := observability.WithUserID(r.Context(), in.UserID)
	event, err := h.service.LogUsage(ctx, in)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidEvent) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		h.serverError(w, r.WithContext(ctx), err)
		return
	}
	httputil.WriteCreated(w, event)
}

// serverError logs err against the request and writes a 500 carrying its message
func (h *AnalyticsHandlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	entry := observability.FromContext(r.Context()).WithError(err)
	if errors.Is(err, analytics.ErrStoreUnavailable) {
		entry = entry.WithField("store_unavailable", true)
	}
	entry.Error("Analytics request failed")
	httputil.WriteInternalError(w, err)
}

// parseDays reads ?days, defaulting to DefaultDays. Negative values are
// clamped to 0 by the service.
func parseDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	return httputil.ParseQueryIntOrError(w, r, "days", DefaultDays)
}
