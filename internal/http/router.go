package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
)

// NewRouter wires the page, JSON API, health and metrics routes.
func NewRouter(h *Handler, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/", h.GetPage).Methods(http.MethodGet)
	router.Handle("/", InFlightMiddleware(http.HandlerFunc(h.PostPage))).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	api.HandleFunc("/input", h.PutInput).Methods(http.MethodPut)
	api.Handle("/lookup", InFlightMiddleware(http.HandlerFunc(h.PostLookup))).Methods(http.MethodPost)

	return router
}
