package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/folio/internal/modules/accuracy"
	"github.com/aristath/folio/internal/modules/forecast"
	"github.com/aristath/folio/internal/modules/market"
	"github.com/aristath/folio/internal/modules/optimization"
	"github.com/aristath/folio/internal/modules/results"
	"github.com/aristath/folio/internal/pipeline"
)

// Runner executes allocation runs.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunResult, error)
}

// ResultsReader reads back stored runs.
type ResultsReader interface {
	Latest() ([]results.Row, error)
	History(limit int) ([]results.Row, error)
}

// AccuracyEvaluator grades stored predictions.
type AccuracyEvaluator interface {
	Evaluate(ctx context.Context) []accuracy.Score
}

// MarketReporter reports exchange session status.
type MarketReporter interface {
	Statuses() []market.Status
}

// BackupTrigger runs an on-demand database snapshot.
type BackupTrigger interface {
	Backup(ctx context.Context) (string, error)
}

// runRequest is the POST /api/optimization/run body. Every field is
// optional; missing values fall back to the configured defaults.
type runRequest struct {
	Tickers       []string `json:"tickers,omitempty"`
	StartDate     string   `json:"start_date,omitempty"`
	EndDate       string   `json:"end_date,omitempty"`
	LookbackDays  int      `json:"lookback_days,omitempty"`
	RiskAversion  *float64 `json:"risk_aversion,omitempty"`
	MinAllocation *float64 `json:"min_allocation,omitempty"`
	MaxAllocation *float64 `json:"max_allocation,omitempty"`
	Yearly        *bool    `json:"yearly,omitempty"`
	Weekly        *bool    `json:"weekly,omitempty"`
	Daily         *bool    `json:"daily,omitempty"`
	Async         bool     `json:"async,omitempty"`
}

type apiResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Status: "error", Message: message})
}

// buildRunRequest merges the request body with configured defaults.
func (s *Server) buildRunRequest(req runRequest) pipeline.RunRequest {
	out := pipeline.RunRequest{
		Tickers:      s.cfg.Tickers,
		StartDate:    s.cfg.StartDate,
		EndDate:      s.cfg.EndDate,
		LookbackDays: s.cfg.LookbackDays,
		Constraints: optimization.Constraints{
			MinAllocation: s.cfg.MinAllocation,
			MaxAllocation: s.cfg.MaxAllocation,
			RiskAversion:  s.cfg.RiskAversion,
		},
		Forecast: forecast.Params{
			Yearly: req.Yearly,
			Weekly: req.Weekly,
			Daily:  req.Daily,
		},
	}

	if len(req.Tickers) > 0 {
		out.Tickers = req.Tickers
	}
	if req.StartDate != "" {
		out.StartDate = req.StartDate
	}
	if req.EndDate != "" {
		out.EndDate = req.EndDate
	}
	if req.LookbackDays > 0 {
		out.LookbackDays = req.LookbackDays
	}
	if req.RiskAversion != nil {
		out.Constraints.RiskAversion = *req.RiskAversion
	}
	if req.MinAllocation != nil {
		out.Constraints.MinAllocation = *req.MinAllocation
	}
	if req.MaxAllocation != nil {
		out.Constraints.MaxAllocation = *req.MaxAllocation
	}

	return out
}

// handleRun triggers an allocation run. With async true the run is
// started in the background and the response is an immediate 202.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	runReq := s.buildRunRequest(req)

	if req.Async {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if _, err := s.pipeline.Run(ctx, runReq); err != nil {
				s.log.Error().Err(err).Msg("Background allocation run failed")
			}
		}()
		writeJSON(w, http.StatusAccepted, apiResponse{
			Status:  "accepted",
			Message: "Optimization run started",
		})
		return
	}

	result, err := s.pipeline.Run(r.Context(), runReq)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoData) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		// A run that computed weights but failed to persist still
		// returns them to the caller.
		if result != nil {
			writeJSON(w, http.StatusInternalServerError, apiResponse{
				Status:  "error",
				Message: err.Error(),
				Data:    result,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Optimization completed",
		Data:    result,
	})
}

// handleLatest returns the most recent stored run.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.results.Latest()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusOK, apiResponse{Status: "success", Message: "No data found"})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status: "success",
		Data: map[string]interface{}{
			"run_id":  rows[0].RunID,
			"date":    rows[0].Date,
			"results": rows,
		},
	})
}

// handleHistory returns stored rows, newest first. limit defaults to
// 100; limit=0 returns everything.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	rows, err := s.results.History(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Status: "success",
		Data: map[string]interface{}{
			"count":   len(rows),
			"results": rows,
		},
	})
}

// handleAccuracy grades the latest scoreable run. Always 200; scoring
// is best-effort and an empty list means nothing could be graded.
func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	scores := s.accuracy.Evaluate(r.Context())
	writeJSON(w, http.StatusOK, apiResponse{
		Status: "success",
		Data: map[string]interface{}{
			"count":  len(scores),
			"scores": scores,
		},
	})
}

// handleMarketStatus reports exchange session state.
func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{
		Status: "success",
		Data:   s.market.Statuses(),
	})
}

// handleBackup triggers an on-demand database snapshot.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if s.backup == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	key, err := s.backup.Backup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "Backup uploaded",
		Data:    map[string]string{"key": key},
	})
}

// handleHealth reports process and database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "ok"
	healthy := true
	if err := s.db.QuickCheck(ctx); err != nil {
		dbStatus = err.Error()
		healthy = false
	}

	payload := map[string]interface{}{
		"status":   "ok",
		"database": dbStatus,
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		payload["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["memory_percent"] = vm.UsedPercent
	}

	status := http.StatusOK
	if !healthy {
		payload["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, payload)
}
