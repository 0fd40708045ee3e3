package results

// AllocationResult is one pipeline run ready for persistence. Maps are
// keyed by ticker; a ticker present in Weights but absent from
// Predictions is stored with a zero prediction.
type AllocationResult struct {
	Date             string               `json:"date"` // YYYY-MM-DD, may be empty
	Predictions      map[string]float64   `json:"predictions"`
	PredictedReturns map[string]float64   `json:"predicted_returns"`
	Weights          map[string]float64   `json:"weights"`
	RecentHistory    map[string][]float64 `json:"recent_history,omitempty"`
}

// Row is one stored ticker record.
type Row struct {
	ID               string    `json:"id"`
	CreatedAt        int64     `json:"created_at"`
	RunID            string    `json:"run_id"`
	Date             string    `json:"date"`
	Ticker           string    `json:"ticker"`
	PredictedPrice   float64   `json:"predicted_price"`
	PredictedReturn  float64   `json:"predicted_return"`
	RecentHistory    []float64 `json:"recent_history,omitempty"`
	PortfolioWeight  float64   `json:"portfolio_weight"`
}
