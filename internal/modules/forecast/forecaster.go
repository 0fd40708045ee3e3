// Package forecast produces next-price predictions from daily history.
package forecast

import "github.com/aristath/folio/internal/modules/extraction"

// Params toggles the seasonal components of a forecast. A nil field
// means "use the forecaster's default".
type Params struct {
	Yearly *bool `json:"yearly,omitempty"`
	Weekly *bool `json:"weekly,omitempty"`
	Daily  *bool `json:"daily,omitempty"`
}

// Prediction is the forecast output for one ticker.
type Prediction struct {
	Ticker          string  `json:"ticker"`
	LastClose       float64 `json:"last_close"`
	PredictedPrice  float64 `json:"predicted_price"`
	PredictedReturn float64 `json:"predicted_return"`
}

// Forecaster predicts the next closing price of a series.
type Forecaster interface {
	Predict(series *extraction.PriceSeries, params Params) (*Prediction, error)
}

func enabled(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}
