package extraction

import "time"

// PricePoint is one daily closing observation.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries holds the resolved symbol and its daily closes in
// ascending date order. ResolvedSymbol may differ from the requested
// ticker when the fallback suffix was needed.
type PriceSeries struct {
	Ticker         string       `json:"ticker"`
	ResolvedSymbol string       `json:"resolved_symbol"`
	Points         []PricePoint `json:"points"`
}

// Closes returns the closing prices in date order.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Returns computes simple daily returns from consecutive closes.
// A series with fewer than two points yields an empty slice.
func (s *PriceSeries) Returns() []float64 {
	if len(s.Points) < 2 {
		return []float64{}
	}
	out := make([]float64, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		prev := s.Points[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, s.Points[i].Close/prev-1)
	}
	return out
}

// WithForecast returns a copy of the series extended with a synthetic
// next-day observation at the forecasted close. The receiver is left
// untouched.
func (s *PriceSeries) WithForecast(close float64) *PriceSeries {
	points := make([]PricePoint, len(s.Points), len(s.Points)+1)
	copy(points, s.Points)
	points = append(points, PricePoint{Date: s.LastDate().AddDate(0, 0, 1), Close: close})
	return &PriceSeries{
		Ticker:         s.Ticker,
		ResolvedSymbol: s.ResolvedSymbol,
		Points:         points,
	}
}

// LastClose returns the most recent closing price, or 0 for an empty series.
func (s *PriceSeries) LastClose() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].Close
}

// LastDate returns the date of the most recent observation.
func (s *PriceSeries) LastDate() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}
