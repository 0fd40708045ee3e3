package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 252, cfg.LookbackDays)
	assert.Equal(t, 1.0, cfg.RiskAversion)
	assert.Equal(t, 0.0, cfg.MinAllocation)
	assert.Equal(t, 0.4, cfg.MaxAllocation)
	assert.NotEmpty(t, cfg.Tickers)
	assert.Empty(t, cfg.Backup.Bucket, "backups disabled by default")
}

func TestLoad_TickerList(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("PORTFOLIO_TICKERS", "AAPL, MSFT ,INFY,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "INFY"}, cfg.Tickers)
}

func TestValidate_RejectsInvertedBounds(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("MINIMUM_ALLOCATION", "0.5")
	t.Setenv("MAXIMUM_ALLOCATION", "0.1")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RejectsNegativeRiskAversion(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("RISK_AVERSION", "-2")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_RejectsBadDates(t *testing.T) {
	t.Setenv("FOLIO_DATA_DIR", t.TempDir())
	t.Setenv("START_DATE", "01/02/2024")

	_, err := Load()
	assert.Error(t, err)
}
