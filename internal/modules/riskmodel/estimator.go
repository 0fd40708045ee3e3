// Package riskmodel estimates expected returns and the covariance
// matrix from trailing daily price history.
package riskmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/folio/internal/modules/extraction"
)

// DefaultLookbackDays is one year of trading sessions.
const DefaultLookbackDays = 252

// Model holds the estimation inputs the optimizer consumes. Covariance
// rows and columns follow the order of Tickers.
type Model struct {
	Tickers     []string             `msgpack:"tickers"`
	MeanReturns map[string]float64   `msgpack:"mean_returns"`
	Covariance  [][]float64          `msgpack:"covariance"`
	Returns     map[string][]float64 `msgpack:"returns"`
}

// Estimator builds risk models from extracted price series.
type Estimator struct {
	cache *Cache
	log   zerolog.Logger
}

// NewEstimator creates a new estimator.
func NewEstimator(log zerolog.Logger) *Estimator {
	return &Estimator{
		log: log.With().Str("module", "riskmodel").Logger(),
	}
}

// SetCache enables result caching. Optional; without it every call
// estimates fresh.
func (e *Estimator) SetCache(cache *Cache) {
	e.cache = cache
}

// cacheKey is deterministic over the ticker set, the lookback, and the
// most recent observation date of each series.
func cacheKey(series map[string]*extraction.PriceSeries, tickers []string, lookbackDays int) string {
	parts := make([]string, 0, len(tickers)+1)
	for _, t := range tickers {
		parts = append(parts, t+"@"+series[t].LastDate().Format("2006-01-02"))
	}
	parts = append(parts, fmt.Sprintf("lb=%d", lookbackDays))
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "riskmodel:" + hex.EncodeToString(h[:16])
}

// Estimate computes mean daily returns and the sample covariance matrix
// over the trailing lookback window. A series shorter than the window
// contributes its full history instead. Tickers are ordered
// alphabetically so the matrix layout is deterministic.
func (e *Estimator) Estimate(series map[string]*extraction.PriceSeries, lookbackDays int) (*Model, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no price series provided")
	}

	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	key := cacheKey(series, tickers, lookbackDays)
	if e.cache != nil {
		var cached Model
		if e.cache.Get(key, &cached) {
			e.log.Debug().Str("key", key).Msg("Using cached risk model")
			return &cached, nil
		}
	}

	returns := make(map[string][]float64, len(tickers))
	means := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		full := series[t].Returns()
		if len(full) < 2 {
			return nil, fmt.Errorf("insufficient history for %s: %d return observations", t, len(full))
		}
		windowed := full
		if len(full) > lookbackDays {
			windowed = full[len(full)-lookbackDays:]
		}
		returns[t] = windowed
		means[t] = stat.Mean(windowed, nil)
	}

	cov := pairwiseCovariance(returns, tickers)

	model := &Model{
		Tickers:     tickers,
		MeanReturns: means,
		Covariance:  cov,
		Returns:     returns,
	}

	if e.cache != nil {
		if err := e.cache.Set(key, model, DefaultTTL); err != nil {
			e.log.Warn().Err(err).Msg("Failed to cache risk model")
		}
	}

	e.log.Info().
		Int("tickers", len(tickers)).
		Int("lookback_days", lookbackDays).
		Msg("Estimated risk model")

	return model, nil
}

// pairwiseCovariance computes the sample covariance matrix. Series may
// have different lengths; each pair uses its last min(len_i, len_j)
// observations so every entry is estimated on overlapping data.
func pairwiseCovariance(returns map[string][]float64, tickers []string) [][]float64 {
	n := len(tickers)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		ri := returns[tickers[i]]
		for j := i; j < n; j++ {
			rj := returns[tickers[j]]

			m := len(ri)
			if len(rj) < m {
				m = len(rj)
			}

			c := stat.Covariance(ri[len(ri)-m:], rj[len(rj)-m:], nil)
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	return cov
}
