package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	service "github.com/okian/pitch/internal/app"
)

// ChangeDependencies accepts collection change notices.
type ChangeDependencies interface {
	NotifyChanged(ctx context.Context, collection, docID, eventID string) (string, error)
}

// ChangesHandler handles change notices.
type ChangesHandler struct {
	deps ChangeDependencies
}

// NewChangesHandler creates a new changes handler.
func NewChangesHandler(deps ChangeDependencies) *ChangesHandler {
	return &ChangesHandler{deps: deps}
}

type changeRequest struct {
	EventID    string `json:"event_id"`
	Collection string `json:"collection"`
	DocID      string `json:"doc_id"`
}

func (c changeRequest) validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return errors.New("missing collection")
	}
	return nil
}

type ackResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

// HandlePostChange handles POST /changes requests.
func (h *ChangesHandler) HandlePostChange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	id, err := h.deps.NotifyChanged(r.Context(), req.Collection, req.DocID, req.EventID)
	if errors.Is(err, service.ErrUnknownFeed) {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: id})
}
