package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-graph/internal/api/middleware"
	"github.com/dvloznov/finance-graph/internal/graph"
	"github.com/dvloznov/finance-graph/internal/logger"
)

// GraphReader answers read queries against the transaction graph.
type GraphReader interface {
	FindSimilar(ctx context.Context, id string, limit int) ([]graph.Similar, error)
	Analytics(ctx context.Context) (graph.Analytics, error)
}

// GraphHandler handles similarity and analytics endpoints.
type GraphHandler struct {
	graph GraphReader
}

// NewGraphHandler creates a new graph handler.
func NewGraphHandler(g GraphReader) *GraphHandler {
	return &GraphHandler{graph: g}
}

// Similar handles GET /api/transactions/{id}/similar
func (h *GraphHandler) Similar(w http.ResponseWriter, r *http.Request, transactionID string) {
	ctx := r.Context()

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	similar, err := h.graph.FindSimilar(ctx, transactionID, limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to find similar transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to find similar transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction_id": transactionID,
		"similar":        similar,
		"count":          len(similar),
	})
}

// Analytics handles GET /api/analytics
func (h *GraphHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.graph.Analytics(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to compute analytics")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute analytics")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, stats)
}
