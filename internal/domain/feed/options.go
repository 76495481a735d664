package feed

// Option applies a configuration option to the Assembler.
type Option func(*Assembler)

// WithRadius sets the default nearby radius in kilometers.
func WithRadius(km float64) Option {
	return func(a *Assembler) {
		if km > 0 {
			a.radius = km
		}
	}
}
