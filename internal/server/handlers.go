package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	v1 "github.com/veriquery/veriquery/pkg/api/v1"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v1.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

// handleSearch runs one query through the pipeline. Pipeline failures
// still produce 200: the outcome is carried in the result's status
// and error kind, and only malformed requests get an HTTP error.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var req v1.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, v1.ErrorResponse{
			Error:     "invalid request body",
			RequestID: requestID,
		})
		return
	}

	result := s.service.Search(r.Context(), req.Text, req.Options())

	s.logger.Info("search completed",
		zap.String("request_id", requestID),
		zap.String("status", string(result.Status)),
		zap.String("model", result.ModelIDUsed),
		zap.Int64("elapsed_ms", result.ResponseTimeMS))

	writeJSON(w, http.StatusOK, v1.SearchResponse{
		RequestID: requestID,
		Result:    result,
	})
}

// handleProviders lists configured providers with credentials
// stripped.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v1.ProvidersResponse{
		Providers: s.service.ListProviders(),
	})
}

// handleUsage reports cumulative per-provider counters.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	snapshot := s.service.UsageSnapshot()

	out := make(map[string]v1.ProviderUsage, len(snapshot))
	for id, stats := range snapshot {
		out[id] = v1.ProviderUsage{
			TotalCalls:  stats.TotalCalls,
			FailedCalls: stats.FailedCalls,
			TotalTokens: stats.TotalTokens,
			TotalCost:   stats.TotalCost,
			SuccessRate: stats.SuccessRate,
		}
	}
	writeJSON(w, http.StatusOK, v1.UsageResponse{Providers: out})
}

// handleReload re-reads the configuration document and swaps the
// pipeline.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ReloadConfig(); err != nil {
		s.logger.Error("config reload failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, v1.ErrorResponse{
			Error: "reload failed: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
