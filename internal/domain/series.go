package domain

// PricePoint is one day's price sample for a token.
type PricePoint struct {
	Day   int64 // UTC midnight, epoch seconds
	Price float64
}

// TokenPriceSeries is an ordered sequence of one-per-day price samples for a
// single (chain, token address) pair. It is provided by the external price
// source, read-only within a run, and cached but never persisted by the
// engine.
type TokenPriceSeries struct {
	Points []PricePoint
}

// Empty reports whether the series holds no samples.
func (s TokenPriceSeries) Empty() bool {
	return len(s.Points) == 0
}

// PriceOn returns the sample for the given day bucket, if one exists.
func (s TokenPriceSeries) PriceOn(day int64) (float64, bool) {
	for _, p := range s.Points {
		if p.Day == day {
			return p.Price, true
		}
	}
	return 0, false
}
