// Package pipeline runs the full allocation flow: extract prices,
// forecast, estimate risk, optimize, persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/extraction"
	"github.com/aristath/folio/internal/modules/forecast"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/modules/results"
	"github.com/aristath/folio/internal/modules/riskmodel"
)

// ErrNoData terminates a run before the optimizer when no ticker
// produced usable history.
var ErrNoData = errors.New("no usable price data for any ticker")

// recentHistoryDays is the trailing close window stored with each run.
const recentHistoryDays = 30

// Extractor fetches price series for a universe.
type Extractor interface {
	FetchAll(ctx context.Context, tickers []string, start, end time.Time) (map[string]*extraction.PriceSeries, error)
}

// Estimator builds the risk model.
type Estimator interface {
	Estimate(series map[string]*extraction.PriceSeries, lookbackDays int) (*riskmodel.Model, error)
}

// Optimizer solves for weights.
type Optimizer interface {
	Optimize(expectedReturns map[string]float64, covMatrix [][]float64, tickers []string, cons optimization.Constraints) (map[string]float64, error)
}

// Store persists a finished run.
type Store interface {
	Save(result *results.AllocationResult) (string, error)
}

// RunRequest parameterizes one pipeline execution.
type RunRequest struct {
	Tickers      []string
	StartDate    string // YYYY-MM-DD
	EndDate      string // YYYY-MM-DD
	LookbackDays int
	Constraints  optimization.Constraints
	Forecast     forecast.Params
}

// RunResult is the outcome of one execution. Saved is false when the
// run computed weights but persistence failed or was skipped.
type RunResult struct {
	RunID            string               `json:"run_id,omitempty"`
	Date             string               `json:"date"`
	Weights          map[string]float64   `json:"weights"`
	Predictions      map[string]float64   `json:"predictions"`
	PredictedReturns map[string]float64   `json:"predicted_returns"`
	Skipped          []string             `json:"skipped,omitempty"`
	Saved            bool                 `json:"saved"`
}

// Service wires the pipeline stages together.
type Service struct {
	extractor  Extractor
	forecaster forecast.Forecaster
	estimator  Estimator
	optimizer  Optimizer
	store      Store
	log        zerolog.Logger
}

// NewService creates a pipeline service.
func NewService(
	extractor Extractor,
	forecaster forecast.Forecaster,
	estimator Estimator,
	optimizer Optimizer,
	store Store,
	log zerolog.Logger,
) *Service {
	return &Service{
		extractor:  extractor,
		forecaster: forecaster,
		estimator:  estimator,
		optimizer:  optimizer,
		store:      store,
		log:        log.With().Str("module", "pipeline").Logger(),
	}
}

// Run executes the pipeline end to end. Tickers that fail extraction
// or forecasting are dropped and reported in Skipped; if every ticker
// drops, the run terminates with ErrNoData before the optimizer. A
// persistence failure does not discard the computed result: the
// RunResult comes back with Saved false alongside the error.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if len(req.Tickers) == 0 {
		return nil, fmt.Errorf("%w: empty ticker list", ErrNoData)
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", req.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", req.EndDate, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s precedes start date %s", req.EndDate, req.StartDate)
	}

	s.log.Info().
		Strs("tickers", req.Tickers).
		Str("start", req.StartDate).
		Str("end", req.EndDate).
		Msg("Starting allocation run")

	series, err := s.extractor.FetchAll(ctx, req.Tickers, start, end)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}
	if len(series) == 0 {
		return nil, ErrNoData
	}

	var skipped []string
	for _, ticker := range req.Tickers {
		if _, ok := series[ticker]; !ok {
			skipped = append(skipped, ticker)
		}
	}

	predictions := make(map[string]float64, len(series))
	predictedReturns := make(map[string]float64, len(series))
	augmented := make(map[string]*extraction.PriceSeries, len(series))
	for ticker, ps := range series {
		pred, err := s.forecaster.Predict(ps, req.Forecast)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Forecast failed, dropping ticker")
			skipped = append(skipped, ticker)
			delete(series, ticker)
			continue
		}
		predictions[ticker] = pred.PredictedPrice
		predictedReturns[ticker] = pred.PredictedReturn
		// The forecast enters estimation as one extra observation, so
		// the mean-return vector already reflects the predicted move.
		augmented[ticker] = ps.WithForecast(pred.PredictedPrice)
	}
	if len(predictions) == 0 {
		return nil, ErrNoData
	}

	model, err := s.estimator.Estimate(augmented, req.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("risk estimation failed: %w", err)
	}

	weights, err := s.optimizer.Optimize(model.MeanReturns, model.Covariance, model.Tickers, req.Constraints)
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	result := &RunResult{
		Date:             asOfDate(series),
		Weights:          weights,
		Predictions:      predictions,
		PredictedReturns: predictedReturns,
		Skipped:          skipped,
	}

	runID, err := s.store.Save(&results.AllocationResult{
		Date:             result.Date,
		Predictions:      predictions,
		PredictedReturns: predictedReturns,
		Weights:          weights,
		RecentHistory:    recentHistory(series),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Run computed but persistence failed")
		return result, fmt.Errorf("result computed but not saved: %w", err)
	}
	result.RunID = runID
	result.Saved = runID != ""

	s.log.Info().
		Str("run_id", runID).
		Str("date", result.Date).
		Int("allocated", len(weights)).
		Int("skipped", len(skipped)).
		Msg("Allocation run complete")

	return result, nil
}

// asOfDate is the most recent observation date across all series.
func asOfDate(series map[string]*extraction.PriceSeries) string {
	var latest time.Time
	for _, ps := range series {
		if d := ps.LastDate(); d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return ""
	}
	return latest.Format("2006-01-02")
}

// recentHistory snapshots the trailing closes of each series.
func recentHistory(series map[string]*extraction.PriceSeries) map[string][]float64 {
	out := make(map[string][]float64, len(series))
	for ticker, ps := range series {
		closes := ps.Closes()
		if len(closes) > recentHistoryDays {
			closes = closes[len(closes)-recentHistoryDays:]
		}
		out[ticker] = closes
	}
	return out
}
