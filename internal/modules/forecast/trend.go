package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/extraction"
)

const (
	// tsfPeriod is the linear regression window for the trend component.
	tsfPeriod = 14

	// yearlyMinObservations gates the yearly component; monthly factors
	// estimated on less than ~1.5 years of data are noise.
	yearlyMinObservations = 378
)

// TrendForecaster projects the next close from a rolling linear
// regression (time series forecast), optionally adjusted by weekly and
// yearly seasonal factors estimated from the residuals. The weekly and
// yearly components default on, the daily bias correction defaults off.
type TrendForecaster struct {
	log zerolog.Logger
}

// NewTrendForecaster creates a trend forecaster.
func NewTrendForecaster(log zerolog.Logger) *TrendForecaster {
	return &TrendForecaster{
		log: log.With().Str("module", "forecast").Logger(),
	}
}

// Predict forecasts the next closing price of the series.
func (f *TrendForecaster) Predict(series *extraction.PriceSeries, params Params) (*Prediction, error) {
	if series == nil || len(series.Points) < tsfPeriod+1 {
		n := 0
		if series != nil {
			n = len(series.Points)
		}
		return nil, fmt.Errorf("insufficient history for forecast: %d observations, need %d", n, tsfPeriod+1)
	}

	closes := series.Closes()
	tsf := talib.Tsf(closes, tsfPeriod)

	last := len(tsf) - 1
	// Tsf is the regression line endpoint at each bar; projecting one
	// step ahead adds the latest slope.
	slope := tsf[last] - tsf[last-1]
	predicted := tsf[last] + slope

	residuals, dates := f.residuals(series, tsf)

	if enabled(params.Weekly, true) {
		predicted *= 1 + weekdayFactor(residuals, dates, nextTradingDay(series.LastDate()))
	}
	if enabled(params.Yearly, true) && len(residuals) >= yearlyMinObservations {
		predicted *= 1 + monthFactor(residuals, dates, nextTradingDay(series.LastDate()).Month())
	}
	if enabled(params.Daily, false) {
		predicted *= 1 + meanResidual(residuals)
	}

	lastClose := series.LastClose()
	if math.IsNaN(predicted) || predicted <= 0 {
		f.log.Warn().
			Str("ticker", series.Ticker).
			Float64("predicted", predicted).
			Msg("Forecast collapsed, falling back to last close")
		predicted = lastClose
	}

	return &Prediction{
		Ticker:          series.Ticker,
		LastClose:       lastClose,
		PredictedPrice:  predicted,
		PredictedReturn: predicted/lastClose - 1,
	}, nil
}

// residuals returns close/trend - 1 for every bar the regression
// covers, paired with the bar dates.
func (f *TrendForecaster) residuals(series *extraction.PriceSeries, tsf []float64) ([]float64, []time.Time) {
	residuals := make([]float64, 0, len(tsf))
	dates := make([]time.Time, 0, len(tsf))
	for i := tsfPeriod - 1; i < len(tsf); i++ {
		if tsf[i] == 0 || math.IsNaN(tsf[i]) {
			continue
		}
		residuals = append(residuals, series.Points[i].Close/tsf[i]-1)
		dates = append(dates, series.Points[i].Date)
	}
	return residuals, dates
}

// weekdayFactor is the mean residual of bars sharing the target weekday.
func weekdayFactor(residuals []float64, dates []time.Time, target time.Time) float64 {
	sum := 0.0
	count := 0
	for i, d := range dates {
		if d.Weekday() == target.Weekday() {
			sum += residuals[i]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// monthFactor is the mean residual of bars in the target month.
func monthFactor(residuals []float64, dates []time.Time, target time.Month) float64 {
	sum := 0.0
	count := 0
	for i, d := range dates {
		if d.Month() == target {
			sum += residuals[i]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func meanResidual(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range residuals {
		sum += r
	}
	return sum / float64(len(residuals))
}

// nextTradingDay advances one calendar day, skipping weekends.
func nextTradingDay(from time.Time) time.Time {
	next := from.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
