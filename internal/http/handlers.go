package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup-widget/internal/client"
	"github.com/kjstillabower/weather-lookup-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-widget/internal/lookup"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
	"github.com/kjstillabower/weather-lookup-widget/internal/session"
	"github.com/kjstillabower/weather-lookup-widget/internal/traffic"
)

// SessionCookie names the cookie that carries the session id.
const SessionCookie = "widget_session"

// HealthConfig holds the inputs of the health handler.
type HealthConfig struct {
	// Breaker, when set, reports the provider unhealthy while open.
	Breaker       *circuitbreaker.CircuitBreaker
	APIKeyMissing bool
	StartTime     time.Time

	// ProviderOutcomes is the tracker the lookup controllers report provider
	// round trips to. Health turns degraded once network failures reach
	// DegradedErrorPct of the outcomes in DegradedWindow (0 disables).
	ProviderOutcomes *traffic.Tracker
	DegradedWindow   time.Duration
	DegradedErrorPct int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	sessions     *session.Store
	healthConfig *HealthConfig
	logger       *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(sessions *session.Store, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:     sessions,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// controller returns the caller's lookup controller, starting a session
// (and setting the cookie) when the request carries none or an expired one.
// Must run before the response header is written.
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) *lookup.Controller {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if ctrl, ok := h.sessions.Get(c.Value); ok {
			return ctrl
		}
	}
	id, ctrl := h.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	requestLogger(r, h.logger).Debug("session started")
	return ctrl
}

// lookupContext detaches the lookup from the request: a client that goes
// away does not cancel the provider call.
func lookupContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// GetPage handles GET /.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	renderPage(w, r, http.StatusOK, ctrl.View())
}

// PostPage handles POST / (form field "city"): records the input, then
// runs a lookup and renders the settled page.
func (h *Handler) PostPage(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_FORM", "unable to parse form")
		return
	}
	if lifecycle.IsShuttingDown() {
		renderPage(w, r, http.StatusServiceUnavailable, ctrl.View())
		return
	}

	value := r.PostFormValue("city")
	if value != ctrl.View().Input {
		ctrl.OnInputChange(value)
	}
	view := ctrl.Submit(lookupContext(r))
	renderPage(w, r, http.StatusOK, view)
}

// GetState handles GET /api/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	writeJSON(w, http.StatusOK, newViewResponse(ctrl.View()))
}

// PutInput handles PUT /api/input with body {"value": "..."}.
func (h *Handler) PutInput(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	var body struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", `body must be {"value": "<text>"}`)
		return
	}
	ctrl.OnInputChange(*body.Value)
	writeJSON(w, http.StatusOK, newViewResponse(ctrl.View()))
}

// PostLookup handles POST /api/lookup. Every settled lookup answers 200;
// validation, network and provider errors are reported in the view.
func (h *Handler) PostLookup(w http.ResponseWriter, r *http.Request) {
	ctrl := h.controller(w, r)
	if lifecycle.IsShuttingDown() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	}
	view := ctrl.Submit(lookupContext(r))
	writeJSON(w, http.StatusOK, newViewResponse(view))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "circuit_open" || result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.APIKeyMissing {
		checks["apiKey"] = "missing"
	} else {
		checks["apiKey"] = "configured"
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"sessions":  h.sessions.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptime"] = time.Since(h.healthConfig.StartTime).Truncate(time.Second).String()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down, open provider
// breaker, provider error rate, healthy. A missing API key is reported in
// checks but does not fail the probe; lookups surface the provider's
// rejection instead.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.Breaker != nil &&
		h.healthConfig.Breaker.State() == circuitbreaker.StateOpen {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if hc := h.healthConfig; hc != nil && hc.ProviderOutcomes != nil && hc.DegradedWindow > 0 && hc.DegradedErrorPct > 0 {
		errors, total := hc.ProviderOutcomes.ErrorRate(hc.DegradedWindow)
		if total > 0 && float64(errors)*100/float64(total) >= float64(hc.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": client.CorrelationIDFromContext(r.Context()),
		},
	})
}

func requestLogger(r *http.Request, fallback *zap.Logger) *zap.Logger {
	return observability.LoggerFromContext(r.Context(), fallback)
}
