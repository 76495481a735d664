// Package similarity scores how alike two users are from their adjustment
// factors and predicts how a user would rate an experience.
//
// All functions are pure: identical inputs always produce identical outputs.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/pitch/pkg/metrics"
)

// Defaults.
const (
	DefaultThreshold = 0.1
	DefaultMinFactor = -1.0
	DefaultMaxFactor = 1.0

	// Scores are compared in fixed point so that values that differ only by
	// float rounding (0.30000000000000004 vs 0.29999999999999993) tie.
	scoreScale = 1_000_000_000_000

	minRating     = 1.0
	maxRating     = 10.0
	minConfidence = 0.1
	shiftPerUnit  = 0.2
)

// Candidate is a user considered for ranking.
type Candidate struct {
	ID     string
	Factor float64
}

// Ranked is a candidate with its similarity to the subject.
type Ranked struct {
	Candidate
	Score float64
}

// Prediction is a rating adjusted for the reader's personality.
type Prediction struct {
	Prediction float64 `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Scorer holds the scoring policy. The zero value is not usable; call NewScorer.
type Scorer struct {
	threshold float64
	minFactor float64
	maxFactor float64
}

// NewScorer creates a Scorer with the given options.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		threshold: DefaultThreshold,
		minFactor: DefaultMinFactor,
		maxFactor: DefaultMaxFactor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the configured minimum similarity.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Similarity returns 1 - |a - b|. The score is not clamped: factors at
// opposite ends of the range produce -1.
func (s *Scorer) Similarity(a, b float64) (float64, error) {
	if err := s.checkFactor("subject", a); err != nil {
		metrics.RecordScorerRejection("similarity")
		return 0, err
	}
	if err := s.checkFactor("candidate", b); err != nil {
		metrics.RecordScorerRejection("similarity")
		return 0, err
	}
	return 1 - math.Abs(a-b), nil
}

// RankCandidates returns candidates whose similarity to subject meets the
// threshold, best first. Equal scores are ordered by candidate ID.
func (s *Scorer) RankCandidates(subject float64, candidates []Candidate) ([]Ranked, error) {
	if err := s.checkFactor("subject", subject); err != nil {
		metrics.RecordScorerRejection("rank")
		return nil, err
	}

	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if err := s.checkFactor("candidate "+c.ID, c.Factor); err != nil {
			metrics.RecordScorerRejection("rank")
			return nil, err
		}
		score := 1 - math.Abs(subject-c.Factor)
		if AtLeast(score, s.threshold) {
			out = append(out, Ranked{Candidate: c, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := toFixedPoint(out[i].Score), toFixedPoint(out[j].Score)
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PredictRating shifts base by the personality difference between the
// subject and the rating's author. Authors more introverted than the
// subject push the prediction up, more extroverted ones push it down.
// The result is clamped to [1, 10].
func (s *Scorer) PredictRating(subject, author, base, intensity float64) (Prediction, error) {
	if err := s.checkFactor("subject", subject); err != nil {
		metrics.RecordScorerRejection("predict")
		return Prediction{}, err
	}
	if err := s.checkFactor("author", author); err != nil {
		metrics.RecordScorerRejection("predict")
		return Prediction{}, err
	}
	if !isFinite(base) {
		metrics.RecordScorerRejection("predict")
		return Prediction{}, fmt.Errorf("%w: base rating %v", ErrInvalidInput, base)
	}
	if !isFinite(intensity) || intensity < 0 {
		metrics.RecordScorerRejection("predict")
		return Prediction{}, fmt.Errorf("%w: intensity %v", ErrInvalidInput, intensity)
	}

	diff := math.Abs(author - subject)
	shift := diff * intensity * shiftPerUnit

	p := base - shift
	if author < subject {
		p = base + shift
	}

	return Prediction{
		Prediction: clamp(p, minRating, maxRating),
		Confidence: math.Max(minConfidence, 1-diff/2),
	}, nil
}

// AtLeast reports whether score >= threshold after fixed-point rounding.
func AtLeast(score, threshold float64) bool {
	return toFixedPoint(score) >= toFixedPoint(threshold)
}

// ValidateFactor returns ErrInvalidInput when v is not a usable adjustment factor.
func (s *Scorer) ValidateFactor(v float64) error { return s.checkFactor("adjustment", v) }

func (s *Scorer) checkFactor(name string, v float64) error {
	if !isFinite(v) {
		return fmt.Errorf("%w: %s factor %v is not finite", ErrInvalidInput, name, v)
	}
	if v < s.minFactor || v > s.maxFactor {
		return fmt.Errorf("%w: %s factor %v outside [%v, %v]", ErrInvalidInput, name, v, s.minFactor, s.maxFactor)
	}
	return nil
}

func toFixedPoint(x float64) int64 {
	scaled := x * scoreScale
	if scaled > math.MaxInt64 {
		return math.MaxInt64
	}
	if scaled < math.MinInt64 {
		return math.MinInt64
	}
	return int64(math.Round(scaled))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func isNaN(v float64) bool { return math.IsNaN(v) }
