// Package extraction fetches daily price history for a portfolio
// universe and resolves tickers that need an exchange suffix.
package extraction

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/clients/yahoo"
)

// nseSuffix is retried when a bare ticker returns no data. Covers
// portfolios that mix US tickers with National Stock Exchange listings.
const nseSuffix = ".NS"

// PriceSource fetches daily bars for a symbol.
type PriceSource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]yahoo.Bar, error)
}

// Service resolves tickers and extracts their price history.
type Service struct {
	source PriceSource
	log    zerolog.Logger
}

// NewService creates a new extraction service.
func NewService(source PriceSource, log zerolog.Logger) *Service {
	return &Service{
		source: source,
		log:    log.With().Str("module", "extraction").Logger(),
	}
}

// Fetch extracts the price series for one ticker. Resolution is
// two-stage: the literal symbol first, then the symbol with the NSE
// suffix when the literal lookup comes back empty. A ticker that fails
// both stages returns (nil, nil) so callers can skip it.
func (s *Service) Fetch(ctx context.Context, ticker string, start, end time.Time) (*PriceSeries, error) {
	bars, err := s.source.History(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	resolved := ticker
	if len(bars) == 0 && !strings.HasSuffix(ticker, nseSuffix) {
		resolved = ticker + nseSuffix
		s.log.Debug().
			Str("ticker", ticker).
			Str("retry_symbol", resolved).
			Msg("No data for literal symbol, retrying with exchange suffix")

		bars, err = s.source.History(ctx, resolved, start, end)
		if err != nil {
			return nil, err
		}
	}

	if len(bars) == 0 {
		s.log.Warn().Str("ticker", ticker).Msg("No price data found, skipping ticker")
		return nil, nil
	}

	points := make([]PricePoint, len(bars))
	for i, b := range bars {
		points[i] = PricePoint{Date: b.Date, Close: b.Close}
	}

	return &PriceSeries{
		Ticker:         ticker,
		ResolvedSymbol: resolved,
		Points:         points,
	}, nil
}

// FetchAll extracts price series for every ticker in the universe.
// Unresolvable tickers are omitted from the result; a transport error
// on one ticker does not abort the batch. The returned map is keyed by
// the requested ticker, not the resolved symbol.
func (s *Service) FetchAll(ctx context.Context, tickers []string, start, end time.Time) (map[string]*PriceSeries, error) {
	series := make(map[string]*PriceSeries, len(tickers))

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ps, err := s.Fetch(ctx, ticker, start, end)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to fetch price history, skipping ticker")
			continue
		}
		if ps == nil {
			continue
		}
		series[ticker] = ps
	}

	s.log.Info().
		Int("requested", len(tickers)).
		Int("resolved", len(series)).
		Msg("Extracted price history")

	return series, nil
}
