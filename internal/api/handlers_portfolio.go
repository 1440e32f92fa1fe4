package api

import (
	"net/http"
	"strconv"

	apperrors "github.com/market-tracker/internal/errors"
)

// tradeRequest is the buy/sell payload. Quantity is required; when price is
// omitted the current snapshot price is used.
type tradeRequest struct {
	AssetKey string   `json:"assetKey"`
	Quantity float64  `json:"quantity"`
	Price    *float64 `json:"price,omitempty"`
}

func (s *Server) resolveTradePrice(r *http.Request, body *tradeRequest) (float64, error) {
	if !s.tracker.Catalog().Has(body.AssetKey) {
		return 0, apperrors.NewUnknownAssetError(body.AssetKey)
	}
	if body.Price != nil {
		return *body.Price, nil
	}
	return s.tracker.Price(r.Context(), body.AssetKey)
}

// handleGetPortfolio returns the portfolio valued at the current snapshot,
// with average cost basis per position.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap, err := s.currentSnapshot(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	valuation, err := s.ledger.Value(ctx, snap)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	basis := map[string]float64{}
	for _, pos := range valuation.Positions {
		if avg, ok, err := s.ledger.AverageCost(ctx, pos.AssetKey); err == nil && ok {
			basis[pos.AssetKey] = avg
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"valuation":   valuation,
		"averageCost": basis,
		"feeRate":     s.ledger.FeeRate(),
	})
}

func (s *Server) currentSnapshot(r *http.Request) (map[string]float64, error) {
	prices, err := s.tracker.Prices(r.Context())
	if err != nil {
		// No snapshot yet: value holdings at zero rather than failing
		if apperrors.Categorize(err).StatusCode == http.StatusNotFound {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	snap := make(map[string]float64, len(prices))
	for _, p := range prices {
		snap[p.Asset.Key] = p.Price
	}
	return snap, nil
}

// handleBuy executes a paper buy.
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed trade request"))
		return
	}

	price, err := s.resolveTradePrice(r, &body)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	order, err := s.ledger.Buy(r.Context(), body.AssetKey, body.Quantity, price)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// handleSell executes a paper sell.
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed trade request"))
		return
	}

	price, err := s.resolveTradePrice(r, &body)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	order, err := s.ledger.Sell(r.Context(), body.AssetKey, body.Quantity, price)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// handleResetPortfolio restores the starting cash, clears holdings and
// empties the order log.
func (s *Server) handleResetPortfolio(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Reset(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	if _, err := s.orders.DeleteAll(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}

	state, err := s.ledger.State(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// handleListOrders returns the order log, newest first.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	assetKey := r.URL.Query().Get("asset")
	if assetKey != "" && !s.tracker.Catalog().Has(assetKey) {
		respondServiceError(w, apperrors.NewUnknownAssetError(assetKey))
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

	orders, err := s.orders.List(r.Context(), assetKey, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
	})
}
