package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/pitch/internal/app"
	"github.com/okian/pitch/internal/domain/feed"
	"github.com/okian/pitch/internal/domain/geo"
)

// FeedDependencies defines the experiences feed operations.
type FeedDependencies interface {
	Feed(ctx context.Context, req service.FeedRequest) (service.FeedView, error)
	NextPage(ctx context.Context, req service.FeedRequest) (service.FeedView, error)
}

// FeedHandler handles feed requests.
type FeedHandler struct {
	deps FeedDependencies
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies) *FeedHandler {
	return &FeedHandler{deps: deps}
}

// HandleFeed handles GET /feed?mode=&q=&lat=&lng=&radius= requests.
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.deps.Feed)
}

// HandleNext handles GET /feed/next with the same parameters as /feed.
func (h *FeedHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.deps.NextPage)
}

func (h *FeedHandler) serve(w http.ResponseWriter, r *http.Request, load func(context.Context, service.FeedRequest) (service.FeedView, error)) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	req, err := parseFeedRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	view, err := load(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func parseFeedRequest(r *http.Request) (service.FeedRequest, error) {
	q := r.URL.Query()

	mode, err := feed.ParseMode(q.Get("mode"))
	if err != nil {
		return service.FeedRequest{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	req := service.FeedRequest{Mode: mode, Search: q.Get("q")}

	lat, lng := q.Get("lat"), q.Get("lng")
	switch {
	case lat == "" && lng == "":
	case lat == "" || lng == "":
		return service.FeedRequest{}, fmt.Errorf("%w: lat and lng must be given together", ErrBadRequest)
	default:
		var p geo.Point
		if p.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
			return service.FeedRequest{}, fmt.Errorf("%w: lat: %w", ErrBadRequest, err)
		}
		if p.Lng, err = strconv.ParseFloat(lng, 64); err != nil {
			return service.FeedRequest{}, fmt.Errorf("%w: lng: %w", ErrBadRequest, err)
		}
		if err := p.Validate(); err != nil {
			return service.FeedRequest{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		req.Origin = &p
	}

	if s := q.Get("radius"); s != "" {
		radius, err := strconv.ParseFloat(s, 64)
		if err != nil || radius <= 0 {
			return service.FeedRequest{}, fmt.Errorf("%w: radius must be a positive number", ErrBadRequest)
		}
		req.RadiusKm = radius
	}
	return req, nil
}
