package database

// schema is the single source of truth for the results database.
//
// One row per (run, ticker). Rows for the same pipeline execution share a
// run_id; rows for the same as_of_date may belong to different runs
// (reruns append, they never replace). No uniqueness constraint exists on
// (ticker, as_of_date) - readers that need one prediction per ticker must
// deduplicate.
const schema = `
CREATE TABLE IF NOT EXISTS optimization_results (
    id                       TEXT PRIMARY KEY,
    created_at               INTEGER NOT NULL,
    run_id                   TEXT NOT NULL,
    as_of_date               TEXT,
    ticker                   TEXT NOT NULL,
    predicted_price          REAL NOT NULL,
    predicted_return         REAL NOT NULL,
    actual_prices_last_month TEXT,
    portfolio_weight         REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_run_id ON optimization_results(run_id);
CREATE INDEX IF NOT EXISTS idx_results_as_of_date ON optimization_results(as_of_date);

CREATE TABLE IF NOT EXISTS calc_cache (
    cache_key  TEXT PRIMARY KEY,
    payload    BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);
`
