package api

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/types"
)

// handleGetIndicators returns the full indicator set for an asset.
func (s *Server) handleGetIndicators(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	indicators, err := s.analytics.Indicators(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, indicators)
}

// handleGetPrediction estimates the next price for an asset. The method
// query parameter defaults to linear.
func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	method := types.PredictionMethod(r.URL.Query().Get("method"))
	if method == "" {
		method = types.PredictLinear
	}
	switch method {
	case types.PredictLinear, types.PredictMovingAverage, types.PredictExpSmoothing:
	default:
		respondServiceError(w, apperrors.NewInvalidParameterError("method", "must be linear, moving_average or exponential_smoothing"))
		return
	}

	prediction, err := s.analytics.Predict(r.Context(), key, method)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assetKey":   key,
		"prediction": prediction,
	})
}

// handleGetSentiment classifies the recent momentum of an asset.
func (s *Server) handleGetSentiment(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	sentiment, err := s.analytics.Sentiment(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assetKey":  key,
		"sentiment": sentiment,
	})
}
