// Package feed assembles the ordered, filtered view of a paginated
// experience list for a subject.
package feed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/pitch/internal/domain/geo"
	"github.com/okian/pitch/internal/domain/model"
	"github.com/okian/pitch/internal/domain/similarity"
	"github.com/okian/pitch/pkg/metrics"
)

// DefaultRadiusKm is the nearby radius used when the context sets none.
const DefaultRadiusKm = 50.0

// Context carries what the subject-dependent modes need.
type Context struct {
	Subject *model.Subject
	// AuthorFactors maps author IDs to adjustment factors. Authors missing
	// from the map are treated as unknown.
	AuthorFactors map[string]float64
	// Search is matched case-insensitively against name, category and location.
	Search string
	// Origin overrides the subject's location for nearby.
	Origin *geo.Point
	// Radius in km; 0 uses the assembler default.
	Radius float64
	// Threshold for similar; nil uses the scorer threshold.
	Threshold *float64
}

// Entry is one experience with whatever the mode derived for it.
type Entry struct {
	Experience model.Experience       `json:"experience"`
	Similarity *float64               `json:"similarity,omitempty"`
	Predicted  *similarity.Prediction `json:"predicted,omitempty"`
	DistanceKm *float64               `json:"distanceKm,omitempty"`
}

// Assembler derives display lists from loaded experiences.
type Assembler struct {
	scorer *similarity.Scorer
	radius float64
}

// NewAssembler creates an Assembler over scorer.
func NewAssembler(scorer *similarity.Scorer, opts ...Option) *Assembler {
	a := &Assembler{scorer: scorer, radius: DefaultRadiusKm}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply filters and orders items for mode. items is never modified.
func (a *Assembler) Apply(items []model.Experience, mode Mode, fc Context) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAssembleLatency(string(mode), float64(time.Since(start).Microseconds())/1000)
	}()

	entries := make([]Entry, 0, len(items))
	term := strings.ToLower(strings.TrimSpace(fc.Search))
	for _, it := range items {
		if term == "" || matches(it, term) {
			entries = append(entries, Entry{Experience: it})
		}
	}

	var (
		out []Entry
		err error
	)
	switch mode {
	case ModeAll:
		out = entries
		sortByRecency(out)
	case ModeSimilar:
		out, err = a.similar(entries, fc)
	case ModeTopRated:
		out, err = a.topRated(entries, fc)
	case ModeRecent:
		out, err = recent(entries, fc)
	case ModeNearby:
		out, err = a.nearby(entries, fc)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if err != nil {
		return nil, err
	}

	metrics.UpdateAssembleResultSize(string(mode), len(out))
	return out, nil
}

func (a *Assembler) similar(entries []Entry, fc Context) ([]Entry, error) {
	subject, factor, err := requireFactor(fc)
	if err != nil {
		return nil, err
	}
	threshold := a.scorer.Threshold()
	if fc.Threshold != nil {
		threshold = *fc.Threshold
	}

	out := entries[:0]
	for _, e := range entries {
		if e.Experience.UserID == subject.ID {
			out = append(out, e)
			continue
		}
		af, ok := fc.AuthorFactors[e.Experience.UserID]
		if !ok {
			continue
		}
		score, err := a.scorer.Similarity(factor, af)
		if err != nil {
			return nil, fmt.Errorf("%w: author %s: %w", ErrInvalidInput, e.Experience.UserID, err)
		}
		if similarity.AtLeast(score, threshold) {
			e.Similarity = &score
			out = append(out, e)
		}
	}
	sortByRecency(out)
	return out, nil
}

func (a *Assembler) topRated(entries []Entry, fc Context) ([]Entry, error) {
	subject, factor, err := requireFactor(fc)
	if err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		af, ok := fc.AuthorFactors[e.Experience.UserID]
		if !ok && e.Experience.UserID == subject.ID {
			af, ok = factor, true
		}
		if !ok {
			continue
		}
		p, err := a.scorer.PredictRating(factor, af, e.Experience.Rating, e.Experience.SocialIntensity)
		if err != nil {
			return nil, fmt.Errorf("%w: experience %s: %w", ErrInvalidInput, e.Experience.ID, err)
		}
		e.Predicted = &p
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Predicted.Prediction, out[j].Predicted.Prediction
		if pi != pj {
			return pi > pj
		}
		return newer(out[i].Experience, out[j].Experience)
	})
	return out, nil
}

func recent(entries []Entry, fc Context) ([]Entry, error) {
	if fc.Subject == nil || fc.Subject.ID == "" {
		return nil, fmt.Errorf("%w: recent requires a subject", ErrInvalidInput)
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Experience.UserID == fc.Subject.ID {
			out = append(out, e)
		}
	}
	sortByRecency(out)
	return out, nil
}

func (a *Assembler) nearby(entries []Entry, fc Context) ([]Entry, error) {
	origin := fc.Origin
	if origin == nil && fc.Subject != nil {
		origin = fc.Subject.Location
	}
	if origin == nil {
		return nil, fmt.Errorf("%w: nearby requires an origin", ErrInvalidInput)
	}
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	radius := fc.Radius
	if radius <= 0 {
		radius = a.radius
	}

	out := entries[:0]
	for _, e := range entries {
		c := e.Experience.Coordinates
		if c == nil || c.Validate() != nil {
			continue
		}
		d := geo.Distance(*origin, *c)
		if d <= radius {
			e.DistanceKm = &d
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := *out[i].DistanceKm, *out[j].DistanceKm
		if di != dj {
			return di < dj
		}
		return newer(out[i].Experience, out[j].Experience)
	})
	return out, nil
}

func requireFactor(fc Context) (*model.Subject, float64, error) {
	if fc.Subject == nil {
		return nil, 0, fmt.Errorf("%w: mode requires a subject", ErrInvalidInput)
	}
	if fc.Subject.AdjustmentFactor == nil {
		return nil, 0, fmt.Errorf("%w: subject %s has no adjustment factor", ErrInvalidInput, fc.Subject.ID)
	}
	return fc.Subject, *fc.Subject.AdjustmentFactor, nil
}

func matches(e model.Experience, term string) bool {
	return strings.Contains(strings.ToLower(e.Name), term) ||
		strings.Contains(strings.ToLower(e.Category), term) ||
		strings.Contains(strings.ToLower(e.Location), term)
}

// newer orders by creation time descending, then id descending, the same
// order the document store pages in.
func newer(a, b model.Experience) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortByRecency(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return newer(entries[i].Experience, entries[j].Experience)
	})
}
