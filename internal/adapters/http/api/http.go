// Package api exposes the feed service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/pitch/internal/adapters/pagination"
	service "github.com/okian/pitch/internal/app"
	"github.com/okian/pitch/internal/domain/feed"
	"github.com/okian/pitch/internal/domain/similarity"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	FeedDependencies
	SocialDependencies
	ListDependencies
	ChangeDependencies
	StatsProvider
}

// Server wires HTTP routes for the feed API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	feedHandler    *FeedHandler
	socialHandler  *SocialHandler
	listHandler    *ListHandler
	changesHandler *ChangesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		feedHandler:    NewFeedHandler(deps),
		socialHandler:  NewSocialHandler(deps),
		listHandler:    NewListHandler(deps),
		changesHandler: NewChangesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/feed", MetricsMiddleware(s.feedHandler.HandleFeed, "feed"))
	mux.HandleFunc("/feed/next", MetricsMiddleware(s.feedHandler.HandleNext, "feed_next"))
	mux.HandleFunc("/similar", MetricsMiddleware(s.socialHandler.HandleSimilar, "similar"))
	mux.HandleFunc("/recommendations", MetricsMiddleware(s.socialHandler.HandleRecommendations, "recommendations"))
	mux.HandleFunc("/lists/", MetricsMiddleware(s.listHandler.HandleList, "lists"))
	mux.HandleFunc("/changes", MetricsMiddleware(s.changesHandler.HandlePostChange, "changes"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, similarity.ErrInvalidInput),
		errors.Is(err, feed.ErrInvalidInput),
		errors.Is(err, feed.ErrUnknownMode):
		writeError(w, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, service.ErrUnknownFeed):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrNoSubject):
		writeError(w, http.StatusConflict, "no_subject", err)
	case errors.Is(err, pagination.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded", err)
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", errors.Join(ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_started", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
