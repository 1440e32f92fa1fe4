package api

import (
	"net/http"

	"github.com/market-tracker/internal/backup"
	apperrors "github.com/market-tracker/internal/errors"
)

// handleGetSettings returns the persisted settings document.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Settings(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// handlePutSettings replaces the settings document.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed settings document"))
		return
	}

	if err := s.settings.PutSettings(r.Context(), body); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

// handleGetSelectedAssets returns the tracked asset keys.
func (s *Server) handleGetSelectedAssets(w http.ResponseWriter, r *http.Request) {
	keys, err := s.tracker.SelectedAssets(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assets": keys,
	})
}

// handlePutSelectedAssets replaces the tracked asset selection.
func (s *Server) handlePutSelectedAssets(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Assets []string `json:"assets"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed asset selection"))
		return
	}

	if err := s.tracker.SelectAssets(r.Context(), body.Assets); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"assets": body.Assets,
	})
}

// handleGetCurrency returns the base display currency.
func (s *Server) handleGetCurrency(w http.ResponseWriter, r *http.Request) {
	currency, err := s.settings.BaseCurrency(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"currency": currency,
	})
}

// handlePutCurrency sets the base display currency.
func (s *Server) handlePutCurrency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Currency string `json:"currency"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed currency request"))
		return
	}

	if err := s.settings.SetBaseCurrency(r.Context(), body.Currency); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"currency": body.Currency,
	})
}

// handleGetTheme returns the UI theme.
func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.settings.Theme(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"theme": theme,
	})
}

// handlePutTheme sets the UI theme.
func (s *Server) handlePutTheme(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme string `json:"theme"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, apperrors.NewInvalidParameterError("body", "malformed theme request"))
		return
	}

	if err := s.settings.SetTheme(r.Context(), body.Theme); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"theme": body.Theme,
	})
}

// handleExport emits the full application state as a JSON bundle.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.backup.Export(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="market-tracker-export.json"`)
	respondJSON(w, http.StatusOK, bundle)
}

// handleImport replaces the full application state from a JSON bundle.
// The bundle is validated in full before any state is touched.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var bundle backup.Bundle
	if err := parseJSONBody(r, &bundle); err != nil {
		respondServiceError(w, apperrors.NewInvalidImportError("malformed bundle", err))
		return
	}

	if err := s.backup.Import(r.Context(), &bundle); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"imported":   true,
		"exportedAt": bundle.ExportedAt,
	})
}
