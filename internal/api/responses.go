package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"example.com/healthsync/internal/domain"
)

// SyncResponse is returned by POST /v1/fit/sync.
type SyncResponse struct {
	Success       bool `json:"success"`
	ActivityCount int  `json:"activityCount"`
	WeightCount   int  `json:"weightCount"`
}

// ConnectResponse carries the consent URL and the state bound to it.
type ConnectResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// CallbackResponse reports a completed connect flow. Offline is false when
// Google did not issue a refresh token.
type CallbackResponse struct {
	Connected bool `json:"connected"`
	Offline   bool `json:"offline"`
}

// HealthScoreResponse is the wire form of domain.HealthScoreResult.
type HealthScoreResponse struct {
	Score     int               `json:"score"`
	Breakdown ScoreBreakdownDTO `json:"breakdown"`
	Metrics   ScoreMetricsDTO   `json:"metrics"`
	Tips      []string          `json:"tips"`
}

type ScoreBreakdownDTO struct {
	Activity    int `json:"activity"`
	Consistency int `json:"consistency"`
	Trend       int `json:"trend"`
}

type ScoreMetricsDTO struct {
	TotalSteps       int64   `json:"totalSteps"`
	TotalHeartPoints float64 `json:"totalHeartPoints"`
	WeightLogs       int     `json:"weightLogs"`
	PhotoLogs        int     `json:"photoLogs"`
}

// LogWeightRequest is the payload for POST /v1/weight. Date defaults to today (UTC).
type LogWeightRequest struct {
	Weight float64 `json:"weight"`
	Date   string  `json:"date,omitempty"`
}

type WeightView struct {
	Date   string  `json:"date"`
	Weight float64 `json:"weight"`
	Source string  `json:"source"`
}

type WeightListResponse struct {
	Items []WeightView `json:"items"`
}

type ActivityView struct {
	Date          string  `json:"date"`
	Steps         int64   `json:"steps"`
	Calories      float64 `json:"calories"`
	ActiveMinutes float64 `json:"activeMinutes"`
	HeartMinutes  float64 `json:"heartMinutes"`
}

type ActivityListResponse struct {
	Items []ActivityView `json:"items"`
}

func toScoreResponse(result domain.HealthScoreResult) HealthScoreResponse {
	tips := result.Tips
	if tips == nil {
		tips = []string{}
	}
	return HealthScoreResponse{
		Score: result.Score,
		Breakdown: ScoreBreakdownDTO{
			Activity:    result.Breakdown.Activity,
			Consistency: result.Breakdown.Consistency,
			Trend:       result.Breakdown.Trend,
		},
		Metrics: ScoreMetricsDTO{
			TotalSteps:       result.Metrics.TotalSteps,
			TotalHeartPoints: result.Metrics.TotalHeartPoints,
			WeightLogs:       result.Metrics.WeightLogs,
			PhotoLogs:        result.Metrics.PhotoLogs,
		},
		Tips: tips,
	}
}

func toWeightView(entry domain.WeightLog) WeightView {
	return WeightView{
		Date:   domain.FormatDate(entry.Date),
		Weight: entry.Weight,
		Source: string(entry.Source),
	}
}

func toActivityView(row domain.DailyActivity) ActivityView {
	return ActivityView{
		Date:          domain.FormatDate(row.Date),
		Steps:         row.Steps,
		Calories:      row.Calories,
		ActiveMinutes: row.ActiveMinutes,
		HeartMinutes:  row.HeartMinutes,
	}
}

// errorStatus maps pipeline and domain errors onto an HTTP status and error type.
// Upstream bodies are logged, never echoed to the client.
func errorStatus(err error) (int, string, string) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusBadRequest, "not_connected", "connect Google Fit first"
	case errors.Is(err, domain.ErrReauthRequired):
		return http.StatusUnauthorized, "reauth_required", "Google Fit access expired, reconnect to continue"
	case errors.Is(err, domain.ErrRefreshFailed):
		return http.StatusUnauthorized, "refresh_failed", "unable to refresh Google Fit access"
	case errors.Is(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response", "unexpected response from Google Fit"
	case errors.As(err, &upstream):
		return http.StatusBadGateway, "upstream_error", fmt.Sprintf("Google Fit returned status %d", upstream.StatusCode)
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream_error", "Google Fit request failed"
	case errors.Is(err, domain.ErrStore):
		return http.StatusInternalServerError, "store_error", "unable to save synced data"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "validation_failed", err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "server_error", "internal error"
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status, code, detail := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "type", code, "err", err)
	}
	writeError(w, status, code, detail)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
