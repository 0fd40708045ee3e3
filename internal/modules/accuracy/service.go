// Package accuracy scores stored predictions against realized prices.
package accuracy

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/results"
)

// Score is the graded outcome for one ticker of a run.
type Score struct {
	Ticker         string  `json:"ticker"`
	Date           string  `json:"date"`
	PredictedPrice float64 `json:"predicted_price"`
	ActualPrice    float64 `json:"actual_price"`
	Accuracy       float64 `json:"accuracy"`
}

// PriceLookup fetches the closing price of each symbol on a day.
type PriceLookup interface {
	CloseOn(ctx context.Context, symbols []string, date time.Time) (map[string]float64, error)
}

// RunSource provides the stored run to grade.
type RunSource interface {
	LatestDated(cutoff string) ([]results.Row, error)
}

// Service grades the most recent scoreable run. The contract is
// best-effort: no stored runs, a future-only history, or an
// unreachable price source all yield an empty result, never an error
// surfaced to callers.
type Service struct {
	runs   RunSource
	prices PriceLookup
	log    zerolog.Logger
}

// NewService creates an accuracy service.
func NewService(runs RunSource, prices PriceLookup, log zerolog.Logger) *Service {
	return &Service{
		runs:   runs,
		prices: prices,
		log:    log.With().Str("module", "accuracy").Logger(),
	}
}

// Evaluate scores the latest run dated on or before today. Tickers
// without a realized price on the run date are omitted. Scores come
// back sorted by ticker.
func (s *Service) Evaluate(ctx context.Context) []Score {
	today := time.Now().UTC().Format("2006-01-02")

	rows, err := s.runs.LatestDated(today)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to load run for accuracy scoring")
		return []Score{}
	}
	if len(rows) == 0 {
		s.log.Debug().Msg("No scoreable run found")
		return []Score{}
	}

	// Rows span every run stored for the date and arrive in insertion
	// order; for tickers predicted more than once the newest row wins.
	latest := make(map[string]results.Row, len(rows))
	for _, row := range rows {
		latest[row.Ticker] = row
	}

	date := rows[0].Date
	runDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("Stored run has unparseable date")
		return []Score{}
	}

	tickers := make([]string, 0, len(latest))
	for ticker := range latest {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	actuals, err := s.prices.CloseOn(ctx, tickers, runDate)
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("Failed to fetch realized prices")
		return []Score{}
	}

	scores := make([]Score, 0, len(tickers))
	for _, ticker := range tickers {
		actual, ok := actuals[ticker]
		if !ok {
			s.log.Debug().Str("ticker", ticker).Str("date", date).Msg("No realized price, skipping ticker")
			continue
		}

		row := latest[ticker]
		scores = append(scores, Score{
			Ticker:         ticker,
			Date:           date,
			PredictedPrice: row.PredictedPrice,
			ActualPrice:    actual,
			Accuracy:       scoreAccuracy(row.PredictedPrice, actual),
		})
	}

	s.log.Info().
		Str("date", date).
		Int("scored", len(scores)).
		Int("requested", len(tickers)).
		Msg("Scored prediction accuracy")

	return scores
}

// scoreAccuracy maps relative prediction error to a 0-100 grade. A
// perfect prediction scores 100; an error of 100% or more scores 0.
func scoreAccuracy(predicted, actual float64) float64 {
	if actual == 0 {
		return 0
	}
	score := 100 * (1 - math.Abs(predicted-actual)/math.Abs(actual))
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
