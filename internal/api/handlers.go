// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/broadcast"
	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/feedback"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/profile"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 500
)

var validate = validator.New()

// Handler serves the JSON API.
type Handler struct {
	cfg         *config.Config
	db          *database.DB
	registry    *profile.Registry
	sink        *feedback.Sink
	broadcaster *broadcast.Broadcaster
}

// HealthLive answers as soon as the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady answers once the database accepts queries.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListEvents returns the live radar board: non-terminal events ordered by
// plantao score.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	events, err := h.db.ActiveEvents(r.Context(), limit)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// eventDetail is the single-event read model.
type eventDetail struct {
	Event     *models.Event      `json:"event"`
	Score     *models.EventScore `json:"score,omitempty"`
	Anchors   []models.Anchor    `json:"anchors,omitempty"`
	DocCount  int                `json:"doc_count"`
	SourceCnt int                `json:"source_count"`
}

// GetEvent returns one event with its score and anchors. Merge tombstones
// resolve to the canonical event.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.db.ResolveCanonical(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "event not found")
			return
		}
		respondInternal(w, r, err)
		return
	}

	detail := eventDetail{Event: event}
	if score, err := h.db.GetEventScore(r.Context(), event.ID); err == nil {
		detail.Score = score
	} else if !errors.Is(err, database.ErrNotFound) {
		respondInternal(w, r, err)
		return
	}
	if detail.Anchors, err = h.db.AnchorsForEvent(r.Context(), event.ID); err != nil {
		respondInternal(w, r, err)
		return
	}
	if detail.DocCount, detail.SourceCnt, err = h.db.EventDocCounts(r.Context(), event.ID); err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// EventHistory returns the append-only transition records.
func (h *Handler) EventHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := h.db.StateHistory(r.Context(), id)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	if len(history) == 0 {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"event_id": id, "history": history})
}

// EventFeedback returns the editorial actions recorded against an event.
func (h *Handler) EventFeedback(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	feedbacks, err := h.db.FeedbackForEvent(r.Context(), id)
	if err != nil {
		respondInternal(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"event_id": id, "feedback": feedbacks})
}

type feedbackRequest struct {
	EventID string            `json:"event_id" validate:"required"`
	Action  string            `json:"action" validate:"required"`
	Payload map[string]string `json:"payload"`
}

// PostFeedback applies one editorial action and pushes the outcome onto the
// live stream.
func (h *Handler) PostFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "event_id and action are required")
		return
	}

	res, err := h.sink.Apply(r.Context(), req.EventID, models.FeedbackAction(req.Action), req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrUnknownAction), errors.Is(err, feedback.ErrMissingPayload):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, feedback.ErrActionNotAllowed):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "event not found")
		default:
			respondInternal(w, r, err)
		}
		return
	}

	h.streamFeedback(r, req.EventID, res)
	respondJSON(w, http.StatusOK, res)
}

// streamFeedback mirrors an applied action onto the websocket stream. Stream
// failures are logged, never surfaced: the action is already durable.
func (h *Handler) streamFeedback(r *http.Request, eventID string, res *feedback.Result) {
	ctx := r.Context()
	var err error
	switch {
	case res.TargetEventID != "":
		err = h.broadcaster.Merged(ctx, res.Feedback.EventID, res.TargetEventID, string(res.Feedback.Action))
	case res.NewEventID != "":
		if err = h.broadcaster.EventUpsert(ctx, res.NewEventID); err == nil {
			err = h.broadcaster.EventUpsert(ctx, res.Feedback.EventID)
		}
	default:
		err = h.broadcaster.EventUpsert(ctx, res.Feedback.EventID)
	}
	if err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Feedback stream update failed")
	}
}

// ListSources returns the loaded source profiles.
func (h *Handler) ListSources(w http.ResponseWriter, _ *http.Request) {
	profiles := h.registry.All()
	respondJSON(w, http.StatusOK, map[string]any{"sources": profiles, "count": len(profiles)})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Response encoding failed")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	logging.Error().Err(err).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("Request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

// requestLogger logs one line per request with latency and status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
