package similarity

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThreshold sets the minimum similarity a candidate needs to be ranked.
func WithThreshold(threshold float64) Option {
	return func(s *Scorer) {
		if isFinite(threshold) {
			s.threshold = threshold
		}
	}
}

// WithFactorRange sets the accepted adjustment factor range (inclusive).
func WithFactorRange(lo, hi float64) Option {
	return func(s *Scorer) {
		if !isNaN(lo) && !isNaN(hi) && lo <= hi {
			s.minFactor = lo
			s.maxFactor = hi
		}
	}
}
