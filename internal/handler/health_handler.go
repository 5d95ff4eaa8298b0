package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// healthTimeout は1回のヘルスチェック全体の上限時間。
const healthTimeout = 3 * time.Second

// HealthCheck は依存先1つの疎通確認。
// Criticalな確認が失敗した場合のみ503を返す。
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler は依存先の疎通を確認するハンドラー。
type HealthHandler struct {
	checks []HealthCheck
	logger *slog.Logger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(logger *slog.Logger, checks ...HealthCheck) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checks: checks, logger: logger}
}

// Health は各依存先を確認して結果をJSONで返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("health check failed",
				slog.String("check", c.Name),
				slog.String("error", err.Error()),
			)
			resp.Checks[c.Name] = "error"
			if c.Critical {
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
