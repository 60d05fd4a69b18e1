package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(handler.logRequests)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Ledger routes
	api.HandleFunc("/positions/{date}", handler.GetPositions).Methods("GET")
	api.HandleFunc("/positions/{date}", handler.DeletePositions).Methods("DELETE")
	api.HandleFunc("/allocations", handler.Reallocate).Methods("POST")

	// Template routes
	api.HandleFunc("/templates/{id:[0-9]+}", handler.GetTemplate).Methods("GET")
	api.HandleFunc("/templates/{id:[0-9]+}", handler.ReplaceTemplate).Methods("PUT")

	// Report routes
	api.HandleFunc("/compare", handler.Compare).Methods("GET")
	api.HandleFunc("/totals/allocation", handler.TotalsByAllocationClass).Methods("GET")
	api.HandleFunc("/totals/heldat", handler.TotalsByHeldAt).Methods("GET")
	api.HandleFunc("/totals/cash", handler.CashByHeldAt).Methods("GET")
	api.HandleFunc("/gains/{date}", handler.GetGains).Methods("GET")

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// logRequests logs every request with its status and duration
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
