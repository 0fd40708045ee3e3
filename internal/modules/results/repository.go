// Package results persists and reads back allocation runs.
package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/database"
)

// Repository stores allocation results, one row per (run, ticker).
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a results repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("module", "results").Logger(),
	}
}

// Save writes one row per predicted ticker inside a single
// transaction; either the whole run lands or none of it. A result with
// no predictions is a warning no-op, not an error. Returns the run id
// assigned to the stored rows.
func (r *Repository) Save(result *AllocationResult) (string, error) {
	if result == nil || len(result.Predictions) == 0 {
		r.log.Warn().Msg("No predictions to save, skipping persistence")
		return "", nil
	}

	runID := uuid.New().String()
	createdAt := time.Now().Unix()

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO optimization_results
				(id, created_at, run_id, as_of_date, ticker, predicted_price, predicted_return, actual_prices_last_month, portfolio_weight)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for ticker, price := range result.Predictions {
			var date interface{}
			if result.Date != "" {
				date = result.Date
			}

			var history interface{}
			if recent, ok := result.RecentHistory[ticker]; ok && len(recent) > 0 {
				encoded, err := json.Marshal(recent)
				if err != nil {
					return fmt.Errorf("failed to encode recent history for %s: %w", ticker, err)
				}
				history = string(encoded)
			}

			_, err := stmt.Exec(
				uuid.New().String(),
				createdAt,
				runID,
				date,
				ticker,
				price,
				result.PredictedReturns[ticker],
				history,
				result.Weights[ticker],
			)
			if err != nil {
				return fmt.Errorf("failed to insert row for %s: %w", ticker, err)
			}
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	r.log.Info().
		Str("run_id", runID).
		Str("date", result.Date).
		Int("tickers", len(result.Predictions)).
		Msg("Saved allocation result")

	return runID, nil
}

// Latest returns all rows of the most recent run, ordered by ticker.
// Returns (nil, nil) when nothing has been stored yet.
func (r *Repository) Latest() ([]Row, error) {
	var runID string
	err := r.db.QueryRow(`
		SELECT run_id FROM optimization_results
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest run: %w", err)
	}

	return r.rowsForQuery(`
		SELECT id, created_at, run_id, COALESCE(as_of_date, ''), ticker,
		       predicted_price, predicted_return, actual_prices_last_month, portfolio_weight
		FROM optimization_results
		WHERE run_id = ?
		ORDER BY ticker ASC`, runID)
}

// History returns stored rows ordered by run date, newest first,
// capped at limit. A zero or negative limit returns everything.
// Undated rows sort last.
func (r *Repository) History(limit int) ([]Row, error) {
	query := `
		SELECT id, created_at, run_id, COALESCE(as_of_date, ''), ticker,
		       predicted_price, predicted_return, actual_prices_last_month, portfolio_weight
		FROM optimization_results
		ORDER BY as_of_date DESC, created_at DESC, ticker ASC`

	if limit > 0 {
		return r.rowsForQuery(query+" LIMIT ?", limit)
	}
	return r.rowsForQuery(query)
}

// LatestDated returns every row sharing the most recent run date not
// after cutoff, across all runs for that date, in insertion order.
// Used by accuracy scoring, which de-duplicates by ticker with the
// last-seen row winning, so a rerun refines earlier predictions
// without hiding tickers only present in an earlier run.
func (r *Repository) LatestDated(cutoff string) ([]Row, error) {
	var date string
	err := r.db.QueryRow(`
		SELECT as_of_date FROM optimization_results
		WHERE as_of_date IS NOT NULL AND as_of_date <= ?
		ORDER BY as_of_date DESC
		LIMIT 1`, cutoff).Scan(&date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest dated run: %w", err)
	}

	return r.rowsForQuery(`
		SELECT id, created_at, run_id, COALESCE(as_of_date, ''), ticker,
		       predicted_price, predicted_return, actual_prices_last_month, portfolio_weight
		FROM optimization_results
		WHERE as_of_date = ?
		ORDER BY created_at ASC, rowid ASC`, date)
}

func (r *Repository) rowsForQuery(query string, args ...interface{}) ([]Row, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var history sql.NullString
		err := rows.Scan(
			&row.ID, &row.CreatedAt, &row.RunID, &row.Date, &row.Ticker,
			&row.PredictedPrice, &row.PredictedReturn, &history, &row.PortfolioWeight,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		if history.Valid && history.String != "" {
			if err := json.Unmarshal([]byte(history.String), &row.RecentHistory); err != nil {
				r.log.Warn().Err(err).Str("id", row.ID).Msg("Failed to decode recent history column")
			}
		}

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return out, nil
}
