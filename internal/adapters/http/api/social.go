package api

import (
	"context"
	"net/http"

	service "github.com/okian/pitch/internal/app"
)

// SocialDependencies defines the people-oriented operations.
type SocialDependencies interface {
	SimilarUsers(ctx context.Context) ([]service.SimilarUser, error)
	Recommendations(ctx context.Context) ([]service.Recommendation, error)
}

// SocialHandler handles similar user and recommendation requests.
type SocialHandler struct {
	deps SocialDependencies
}

// NewSocialHandler creates a new social handler.
func NewSocialHandler(deps SocialDependencies) *SocialHandler {
	return &SocialHandler{deps: deps}
}

// HandleSimilar handles GET /similar requests.
func (h *SocialHandler) HandleSimilar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	users, err := h.deps.SimilarUsers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if users == nil {
		users = []service.SimilarUser{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleRecommendations handles GET /recommendations requests.
func (h *SocialHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	recs, err := h.deps.Recommendations(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []service.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}
