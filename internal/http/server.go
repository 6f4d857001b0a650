package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/varaku1012/quantumwala/internal/log"
	"github.com/varaku1012/quantumwala/pkg/report"
	"github.com/varaku1012/quantumwala/pkg/storage"
)

// StartServer exposes the state store read-only for monitoring. The scheduler
// remains the single writer; this server never mutates anything.
func StartServer(port string, store storage.Store) error {
	mux := NewMux(store)
	log.GetLogger().Infof("Starting quantumwala status server on :%s", port)
	return http.ListenAndServe(":"+port, mux)
}

// NewMux builds the route table; split out so tests can drive it with httptest.
func NewMux(store storage.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/runs", runsHandler(store))
	mux.HandleFunc("/runs/", runDetailHandler(store))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "quantumwala status server is running")
}

func runsHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		runs, err := store.ListRuns()
		if err != nil {
			log.GetLogger().Errorf("Failed to list runs: %v", err)
			http.Error(w, fmt.Sprintf("Failed to list runs: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
	}
}

// runDetailHandler serves /runs/{id}/history and /runs/{id}/report.
func runDetailHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 {
			http.NotFound(w, r)
			return
		}
		runID := parts[1]
		switch parts[2] {
		case "history":
			records, err := store.History(runID)
			if err != nil {
				log.GetLogger().Errorf("Failed to load history for %s: %v", runID, err)
				http.Error(w, fmt.Sprintf("Failed to load history: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, records)
		case "report":
			rep, err := report.Build(store, runID)
			if err != nil {
				log.GetLogger().Errorf("Failed to build report for %s: %v", runID, err)
				http.Error(w, fmt.Sprintf("Failed to build report: %v", err), http.StatusNotFound)
				return
			}
			writeJSON(w, rep)
		default:
			http.NotFound(w, r)
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
