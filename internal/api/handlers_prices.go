package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/market-tracker/internal/errors"
)

// handleListAssets returns the asset catalog.
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assets": s.tracker.Catalog().All(),
	})
}

// handleListPrices returns the current snapshot with cycle-over-cycle changes.
func (s *Server) handleListPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.tracker.Prices(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"prices": prices,
	})
}

// handleGetPrice returns the current price for one asset.
func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	price, err := s.tracker.Price(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assetKey": key,
		"price":    price,
	})
}

// handleRefresh runs a fetch cycle immediately.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.tracker.RunCycle(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleGetHistory returns the stored price window for one asset,
// newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !s.tracker.Catalog().Has(key) {
		respondServiceError(w, apperrors.NewUnknownAssetError(key))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondServiceError(w, apperrors.NewInvalidParameterError("limit", "must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	points, err := s.tracker.History().Load(r.Context(), key, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assetKey": key,
		"points":   points,
	})
}

// handleNews returns market headlines.
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles": s.news.Fetch(r.Context()),
	})
}

// handleStatus reports poller and upstream breaker health.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{}
	if s.poller != nil {
		status["poller"] = s.poller.GetStatus()
	}
	if s.breaker != nil {
		status["breaker"] = s.breaker.GetStats()
	}
	respondJSON(w, http.StatusOK, status)
}

// handleVisibility switches the poller cadence based on UI visibility.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Visible bool `json:"visible"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "expected {\"visible\": bool}"))
		return
	}

	if s.poller != nil {
		s.poller.SetVisible(body.Visible)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"visible": body.Visible})
}
