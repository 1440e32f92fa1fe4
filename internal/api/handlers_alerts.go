package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/types"
)

// createAlertRequest is the POST /api/alerts payload.
type createAlertRequest struct {
	AssetKey  string  `json:"assetKey"`
	Kind      string  `json:"kind"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// handleListAlerts returns every rule, armed or triggered.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	rules, err := s.alertRules.ListAll(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
	})
}

// handleCreateAlert creates a new armed rule.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var body createAlertRequest
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed alert rule"))
		return
	}

	if !s.tracker.Catalog().Has(body.AssetKey) {
		respondServiceError(w, apperrors.NewUnknownAssetError(body.AssetKey))
		return
	}
	kind := types.AlertKind(body.Kind)
	if !kind.Valid() {
		respondServiceError(w, apperrors.NewInvalidParameterError("kind", "must be above, below, pct_up or pct_down"))
		return
	}
	if body.Threshold <= 0 {
		respondServiceError(w, apperrors.NewInvalidParameterError("threshold", "must be positive"))
		return
	}

	rule := &types.AlertRule{
		ID:        uuid.New().String(),
		AssetKey:  body.AssetKey,
		Kind:      kind,
		Threshold: body.Threshold,
		Message:   body.Message,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.alertRules.Create(r.Context(), rule); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// handleDeleteAlert removes a rule.
func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	deleted, err := s.alertRules.Delete(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !deleted {
		respondServiceError(w, apperrors.NewNotFoundError("alert rule", id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// updateAlertRequest is the PUT /api/alerts/{id} payload.
type updateAlertRequest struct {
	Active *bool `json:"active"`
}

// handleUpdateAlert toggles a rule's active flag. The trigger state is
// untouched either way; clearing it takes an explicit rearm.
func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body updateAlertRequest
	if err := parseJSONBody(r, &body); err != nil || body.Active == nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("active", "must be true or false"))
		return
	}

	var (
		updated bool
		err     error
	)
	if *body.Active {
		updated, err = s.alertRules.Activate(r.Context(), id)
	} else {
		updated, err = s.alertRules.Deactivate(r.Context(), id)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !updated {
		respondServiceError(w, apperrors.NewNotFoundError("alert rule", id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"active": *body.Active,
	})
}

// handleRearmAlert clears a fired rule's trigger state and re-activates it.
func (s *Server) handleRearmAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rearmed, err := s.alertRules.Rearm(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !rearmed {
		respondServiceError(w, apperrors.NewNotFoundError("alert rule", id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"rearmed": id})
}

// handleResetAlerts removes every rule and clears the fired-alert history.
func (s *Server) handleResetAlerts(w http.ResponseWriter, r *http.Request) {
	removed, err := s.alertRules.DeleteAll(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.alertHistory.Clear(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// handleAlertHistory lists fired alerts, newest first.
func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondServiceError(w, apperrors.NewInvalidParameterError("limit", "must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	events, err := s.alertHistory.List(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
