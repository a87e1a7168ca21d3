package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/fuomag9/camera-sentinel/internal/models"
)

// Engine is the monitoring engine as seen by the HTTP layer
type Engine interface {
	ReceiveHeartbeat(ctx context.Context, cameraID int) (*models.Camera, error)
	ResolveAlert(ctx context.Context, alertID int, reason string) (*models.Alert, error)
	ListOpenAlerts(ctx context.Context) ([]models.AlertView, error)
	ListResolvedAlerts(ctx context.Context, limit int) ([]models.AlertView, error)
}

// ResolveRequest is the body of a manual resolution
type ResolveRequest struct {
	Reason string `json:"reason"`
}

// HandleHeartbeat records a liveness signal from a camera
func HandleHeartbeat(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cameraID, ok := urlID(r, "id")
		if !ok {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid camera id"})
			return
		}

		camera, err := engine.ReceiveHeartbeat(r.Context(), cameraID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, camera)
	}
}

// HandleGetOpenAlerts returns all unresolved alerts, newest first
func HandleGetOpenAlerts(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := engine.ListOpenAlerts(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		if alerts == nil {
			alerts = []models.AlertView{}
		}
		respondJSON(w, http.StatusOK, alerts)
	}
}

// HandleGetResolvedAlerts returns the most recently resolved alerts.
// ?limit=N overrides the configured default.
func HandleGetResolvedAlerts(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				respondJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
				return
			}
			limit = n
		}

		alerts, err := engine.ListResolvedAlerts(r.Context(), limit)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if alerts == nil {
			alerts = []models.AlertView{}
		}
		respondJSON(w, http.StatusOK, alerts)
	}
}

// HandleResolveAlert closes an open alert with the operator's reason
func HandleResolveAlert(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alertID, ok := urlID(r, "id")
		if !ok {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid alert id"})
			return
		}

		var req ResolveRequest
		// an empty body is a missing reason, reported by the engine
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		alert, err := engine.ResolveAlert(r.Context(), alertID, req.Reason)
		if err != nil {
			respondError(w, r, err)
			return
		}

		if operator, ok := operatorFromContext(r.Context()); ok {
			hlog.FromRequest(r).Info().Str("operator", operator).Int("alert_id", alert.ID).Msg("Alert resolved by operator")
		}
		respondJSON(w, http.StatusOK, alert)
	}
}
