// Package api exposes pipeline runs and graph queries over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/finance-graph/internal/api/handlers"
	"github.com/dvloznov/finance-graph/internal/api/middleware"
	"github.com/dvloznov/finance-graph/internal/jobs"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the HTTP API serves from.
type Deps struct {
	Jobs      jobs.Store
	Publisher jobs.Publisher
	Graph     handlers.GraphReader
	Log       zerolog.Logger
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string
}

// NewHandler builds the routed, middleware-wrapped API handler.
func NewHandler(d Deps) http.Handler {
	runs := handlers.NewRunsHandler(d.Jobs, d.Publisher)
	graphs := handlers.NewGraphHandler(d.Graph)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			runs.ListRuns(w, r)
		case http.MethodPost:
			runs.CreateRun(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if jobID == "" || strings.Contains(jobID, "/") {
			middleware.WriteError(w, http.StatusBadRequest, "Run ID is required")
			return
		}
		runs.GetRun(w, r, jobID)
	})

	mux.HandleFunc("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
		id, ok := strings.CutSuffix(rest, "/similar")
		if !ok || id == "" || strings.Contains(id, "/") {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		graphs.Similar(w, r, id)
	})

	mux.HandleFunc("/api/analytics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		graphs.Analytics(w, r)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Chain(mux, d.Log, d.CORSOrigins)
}
