package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/modules/accuracy"
	"github.com/aristath/folio/internal/modules/market"
	"github.com/aristath/folio/internal/modules/results"
	"github.com/aristath/folio/internal/pipeline"
)

type stubRunner struct {
	result *pipeline.RunResult
	err    error
	called chan pipeline.RunRequest
}

func (s *stubRunner) Run(_ context.Context, req pipeline.RunRequest) (*pipeline.RunResult, error) {
	if s.called != nil {
		s.called <- req
	}
	return s.result, s.err
}

type stubResults struct {
	latest  []results.Row
	history []results.Row
	err     error
}

func (s *stubResults) Latest() ([]results.Row, error)      { return s.latest, s.err }
func (s *stubResults) History(int) ([]results.Row, error)  { return s.history, s.err }

type stubAccuracy struct {
	scores []accuracy.Score
}

func (s *stubAccuracy) Evaluate(context.Context) []accuracy.Score { return s.scores }

func newTestServer(t *testing.T, runner Runner, reader ResultsReader) *Server {
	t.Helper()

	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "results.db"),
		Name: "results",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	if runner == nil {
		runner = &stubRunner{result: &pipeline.RunResult{Saved: true}}
	}
	if reader == nil {
		reader = &stubResults{}
	}

	return New(Config{
		Log: zerolog.Nop(),
		Cfg: &config.Config{
			Tickers:       []string{"AAPL", "MSFT"},
			StartDate:     "2024-01-01",
			EndDate:       "2024-06-01",
			LookbackDays:  252,
			RiskAversion:  1.0,
			MinAllocation: 0.0,
			MaxAllocation: 0.4,
		},
		DB:       db,
		Pipeline: runner,
		Results:  reader,
		Accuracy: &stubAccuracy{},
		Market:   market.NewService(zerolog.Nop()),
		Port:     0,
	})
}

func TestHandleRun_Success(t *testing.T) {
	runner := &stubRunner{
		result: &pipeline.RunResult{
			RunID:   "run-1",
			Date:    "2024-06-01",
			Weights: map[string]float64{"AAPL": 0.6, "MSFT": 0.4},
			Saved:   true,
		},
		called: make(chan pipeline.RunRequest, 1),
	}
	srv := newTestServer(t, runner, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimization/run", strings.NewReader(`{}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)

	sent := <-runner.called
	assert.Equal(t, []string{"AAPL", "MSFT"}, sent.Tickers, "config defaults apply when body is empty")
	assert.Equal(t, 0.4, sent.Constraints.MaxAllocation)
}

func TestHandleRun_BodyOverridesDefaults(t *testing.T) {
	runner := &stubRunner{
		result: &pipeline.RunResult{Saved: true},
		called: make(chan pipeline.RunRequest, 1),
	}
	srv := newTestServer(t, runner, nil)

	body := `{"tickers":["TCS"],"risk_aversion":3.5,"lookback_days":60}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimization/run", strings.NewReader(body))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	sent := <-runner.called
	assert.Equal(t, []string{"TCS"}, sent.Tickers)
	assert.Equal(t, 3.5, sent.Constraints.RiskAversion)
	assert.Equal(t, 60, sent.LookbackDays)
}

func TestHandleRun_Async(t *testing.T) {
	runner := &stubRunner{
		result: &pipeline.RunResult{Saved: true},
		called: make(chan pipeline.RunRequest, 1),
	}
	srv := newTestServer(t, runner, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimization/run", strings.NewReader(`{"async":true}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	// The run still executes in the background.
	<-runner.called
}

func TestHandleRun_NoDataIsUnprocessable(t *testing.T) {
	srv := newTestServer(t, &stubRunner{err: pipeline.ErrNoData}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimization/run", strings.NewReader(`{}`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleRun_BadBody(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/optimization/run", strings.NewReader(`{not json`))
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLatest_Empty(t *testing.T) {
	srv := newTestServer(t, nil, &stubResults{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/historical/latest", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Nil(t, resp.Data)
}

func TestHandleLatest_WithRows(t *testing.T) {
	reader := &stubResults{latest: []results.Row{
		{RunID: "run-1", Date: "2024-06-01", Ticker: "AAPL", PredictedPrice: 190, PortfolioWeight: 1},
	}}
	srv := newTestServer(t, nil, reader)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/historical/latest", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/historical/all?limit=banana", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAccuracy(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/accuracy", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}

func TestHandleMarketStatus(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/market/status", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NYSE")
	assert.Contains(t, rec.Body.String(), "NSE")
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)
}

func TestHandleBackup_UnconfiguredIsUnavailable(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/system/backup", nil)
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
