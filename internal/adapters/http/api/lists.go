package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/pitch/internal/app"
)

// ListDependencies defines access to the secondary feeds.
type ListDependencies interface {
	List(ctx context.Context, name string, next bool) (service.ListView, error)
}

// ListHandler handles list requests.
type ListHandler struct {
	deps ListDependencies
}

// NewListHandler creates a new list handler.
func NewListHandler(deps ListDependencies) *ListHandler {
	return &ListHandler{deps: deps}
}

// HandleList handles GET /lists/{feed}?next=true requests.
func (h *ListHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/lists/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	next := false
	if s := r.URL.Query().Get("next"); s != "" {
		var err error
		if next, err = strconv.ParseBool(s); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
	}
	view, err := h.deps.List(r.Context(), name, next)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
