package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(mux.CORSMethodMiddleware(r), corsMiddleware)

	r.HandleFunc("/", handler.Root).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet, http.MethodOptions)

	// Stock routes
	stock := r.PathPrefix("/stock").Subrouter()
	stock.HandleFunc("/history", handler.GetHistory).Methods(http.MethodGet, http.MethodOptions)
	stock.HandleFunc("/future", handler.GetFuture).Methods(http.MethodGet, http.MethodOptions)
	stock.HandleFunc("/refresh", handler.RefreshCache).Methods(http.MethodGet, http.MethodOptions)
	stock.HandleFunc("/seed-fake", handler.SeedFake).Methods(http.MethodGet, http.MethodOptions)
	stock.HandleFunc("/cache", handler.ListCache).Methods(http.MethodGet, http.MethodOptions)

	return r
}

// corsMiddleware allows any origin and answers preflight requests directly
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
