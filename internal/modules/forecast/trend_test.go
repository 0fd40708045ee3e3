package forecast

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/modules/extraction"
)

func boolPtr(b bool) *bool { return &b }

func linearSeries(ticker string, start, step float64, n int) *extraction.PriceSeries {
	points := make([]extraction.PricePoint, n)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}
		points[i] = extraction.PricePoint{Date: date, Close: start + step*float64(i)}
		date = date.AddDate(0, 0, 1)
	}
	return &extraction.PriceSeries{Ticker: ticker, ResolvedSymbol: ticker, Points: points}
}

func TestPredict_FollowsLinearTrend(t *testing.T) {
	// Prices rise by exactly 1 per session, so the regression projects
	// last close + 1 and all residuals are zero.
	series := linearSeries("AAPL", 100, 1, 60)

	fc := NewTrendForecaster(zerolog.Nop())
	pred, err := fc.Predict(series, Params{})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", pred.Ticker)
	assert.InDelta(t, 160.0, pred.PredictedPrice, 1e-6)
	assert.InDelta(t, 160.0/159.0-1, pred.PredictedReturn, 1e-9)
	assert.Greater(t, pred.PredictedReturn, 0.0)
}

func TestPredict_DowntrendGivesNegativeReturn(t *testing.T) {
	series := linearSeries("AAPL", 200, -1, 60)

	fc := NewTrendForecaster(zerolog.Nop())
	pred, err := fc.Predict(series, Params{})
	require.NoError(t, err)
	assert.Less(t, pred.PredictedReturn, 0.0)
}

func TestPredict_InsufficientHistory(t *testing.T) {
	series := linearSeries("AAPL", 100, 1, tsfPeriod)

	fc := NewTrendForecaster(zerolog.Nop())
	_, err := fc.Predict(series, Params{})
	assert.Error(t, err)
}

func TestPredict_NilSeries(t *testing.T) {
	fc := NewTrendForecaster(zerolog.Nop())
	_, err := fc.Predict(nil, Params{})
	assert.Error(t, err)
}

func TestPredict_SeasonalTogglesChangeNothingOnCleanTrend(t *testing.T) {
	// Zero residuals mean seasonal factors are zero, so toggles must
	// not move the forecast.
	series := linearSeries("AAPL", 100, 1, 60)
	fc := NewTrendForecaster(zerolog.Nop())

	on, err := fc.Predict(series, Params{Weekly: boolPtr(true), Daily: boolPtr(true)})
	require.NoError(t, err)
	off, err := fc.Predict(series, Params{Weekly: boolPtr(false), Daily: boolPtr(false)})
	require.NoError(t, err)

	assert.InDelta(t, off.PredictedPrice, on.PredictedPrice, 1e-9)
}

func TestNextTradingDay_SkipsWeekend(t *testing.T) {
	friday := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Monday, nextTradingDay(friday).Weekday())

	wednesday := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Thursday, nextTradingDay(wednesday).Weekday())
}
